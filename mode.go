package canctrl

import "strings"

// Controller mode flags. Flags can be combined, subject to the capabilities
// reported by the backend.
type Mode uint32

const (
	ModeNormal         Mode = 0
	ModeLoopback       Mode = 1 << 0 // Controller receives its own frames
	ModeListenOnly     Mode = 1 << 1 // Controller is not allowed to send dominant bits
	ModeFD             Mode = 1 << 2 // Controller allows CAN FD frames
	ModeOneShot        Mode = 1 << 3 // No retransmission on lost arbitration or missing ACK
	ModeTripleSampling Mode = 1 << 4 // Controller samples each bit three times
	ModeManualRecovery Mode = 1 << 5 // Bus-off recovery must be requested explicitly
)

var modeNames = []struct {
	flag Mode
	name string
}{
	{ModeLoopback, "loopback"},
	{ModeListenOnly, "listen-only"},
	{ModeFD, "fd"},
	{ModeOneShot, "one-shot"},
	{ModeTripleSampling, "triple-sampling"},
	{ModeManualRecovery, "manual-recovery"},
}

func (mode Mode) Has(flags Mode) bool {
	return mode&flags == flags
}

func (mode Mode) String() string {
	if mode == ModeNormal {
		return "normal"
	}
	var names []string
	for _, entry := range modeNames {
		if mode.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, ",")
}
