// Package canctrl defines the data model and hardware abstraction of a CAN
// controller driver: frames, receive filters, bit timing parameters, mode
// flags, controller states and the Backend interface implemented by
// concrete hardware backends. The driver logic itself lives in
// pkg/controller.
package canctrl

import (
	"fmt"
	"strings"
)

// Bit mask for a standard (11-bit) CAN identifier
const StdIDMask uint32 = 0x7FF

// Bit mask for an extended (29-bit) CAN identifier
const ExtIDMask uint32 = 0x1FFFFFFF

const (
	// Maximum data length code for classic CAN
	MaxDLC uint8 = 8
	// Maximum data length code for CAN FD
	MaxFDDLC uint8 = 15
	// Maximum payload size in bytes for classic CAN
	MaxClassicDataLength uint8 = 8
	// Maximum payload size in bytes for CAN FD
	MaxDataLength uint8 = 64
)

// CAN frame flags
type FrameFlags uint8

const (
	FrameExtended FrameFlags = 1 << 0 // Frame uses an extended (29-bit) identifier
	FrameRemote   FrameFlags = 1 << 1 // Frame is a remote transmission request
	FrameFD       FrameFlags = 1 << 2 // Frame uses the CAN FD format
	FrameBRS      FrameFlags = 1 << 3 // CAN FD baud rate switch, only valid together with FrameFD
	FrameESI      FrameFlags = 1 << 4 // CAN FD error state indicator, only valid together with FrameFD
)

// A CAN frame
// Data holds up to 64 bytes, the effective payload length is given by the DLC
type Frame struct {
	ID        uint32
	DLC       uint8
	Flags     FrameFlags
	Timestamp uint16
	Data      [MaxDataLength]byte
}

// Create a standard (11-bit) identifier frame from raw data
func NewFrame(id uint32, data []byte) Frame {
	frame := Frame{ID: id & StdIDMask, DLC: BytesToDLC(uint8(len(data)))}
	copy(frame.Data[:], data)
	return frame
}

// Create an extended (29-bit) identifier frame from raw data
func NewExtendedFrame(id uint32, data []byte) Frame {
	frame := NewFrame(0, data)
	frame.ID = id & ExtIDMask
	frame.Flags |= FrameExtended
	return frame
}

func (frame *Frame) IsExtended() bool {
	return frame.Flags&FrameExtended != 0
}

func (frame *Frame) IsRemote() bool {
	return frame.Flags&FrameRemote != 0
}

func (frame *Frame) IsFD() bool {
	return frame.Flags&FrameFD != 0
}

// Payload length in bytes, derived from the DLC
func (frame *Frame) Length() uint8 {
	return DLCToBytes(frame.DLC)
}

// Effective payload slice, empty for remote frames
func (frame *Frame) Payload() []byte {
	if frame.IsRemote() {
		return nil
	}
	return frame.Data[:frame.Length()]
}

func (frame *Frame) String() string {
	var out strings.Builder
	if frame.IsExtended() {
		out.WriteString(fmt.Sprintf("%08X", frame.ID&ExtIDMask))
	} else {
		out.WriteString(fmt.Sprintf("%03X", frame.ID&StdIDMask))
	}
	if frame.IsRemote() {
		out.WriteString(fmt.Sprintf(" [%d] remote request", frame.Length()))
		return out.String()
	}
	out.WriteString(fmt.Sprintf(" [%d]", frame.Length()))
	for _, b := range frame.Payload() {
		out.WriteString(fmt.Sprintf(" %02X", b))
	}
	return out.String()
}

// Check that the frame is well formed and allowed in the given controller mode.
// Returns ErrInvalidArgument for a malformed frame and ErrUnsupported for a
// frame that needs a feature the current mode does not provide.
func (frame *Frame) Validate(mode Mode) error {
	if frame.IsExtended() {
		if frame.ID > ExtIDMask {
			return ErrInvalidArgument
		}
	} else if frame.ID > StdIDMask {
		return ErrInvalidArgument
	}
	if frame.IsFD() {
		if !mode.Has(ModeFD) {
			return ErrUnsupported
		}
		if frame.IsRemote() {
			// CAN FD has no remote frames
			return ErrInvalidArgument
		}
		if frame.DLC > MaxFDDLC {
			return ErrInvalidArgument
		}
		return nil
	}
	if frame.Flags&(FrameBRS|FrameESI) != 0 {
		// Only meaningful in the CAN FD frame format
		return ErrInvalidArgument
	}
	if frame.DLC > MaxDLC {
		return ErrInvalidArgument
	}
	return nil
}

var dlcToBytes = [16]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// Convert a data length code to the number of payload bytes
func DLCToBytes(dlc uint8) uint8 {
	if dlc > MaxFDDLC {
		dlc = MaxFDDLC
	}
	return dlcToBytes[dlc]
}

// Convert a number of payload bytes to the smallest data length code able to
// hold it
func BytesToDLC(numBytes uint8) uint8 {
	switch {
	case numBytes <= MaxClassicDataLength:
		return numBytes
	case numBytes <= 12:
		return 9
	case numBytes <= 16:
		return 10
	case numBytes <= 20:
		return 11
	case numBytes <= 24:
		return 12
	case numBytes <= 32:
		return 13
	case numBytes <= 48:
		return 14
	default:
		return 15
	}
}
