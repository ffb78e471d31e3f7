package canctrl

// Controller states
type State uint8

const (
	StateErrorActive  State = iota // Error counters below 96
	StateErrorWarning              // Error counters below 128
	StateErrorPassive              // Error counters below 256
	StateBusOff                    // Transmit error counter reached 256
	StateStopped                   // Controller does not participate in communication
)

var stateNames = map[State]string{
	StateErrorActive:  "ERROR-ACTIVE",
	StateErrorWarning: "ERROR-WARNING",
	StateErrorPassive: "ERROR-PASSIVE",
	StateBusOff:       "BUS-OFF",
	StateStopped:      "STOPPED",
}

func (state State) String() string {
	name, ok := stateNames[state]
	if !ok {
		return "UNKNOWN"
	}
	return name
}

// Error counter thresholds separating the controller states
const (
	ErrorWarningThreshold uint16 = 96
	ErrorPassiveThreshold uint16 = 128
	BusOffThreshold       uint16 = 256
)

// Transmit and receive error counters as reported by the backend.
// Values saturate at 255 by convention.
type ErrorCounters struct {
	Tx uint8
	Rx uint8
}
