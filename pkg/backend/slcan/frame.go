package slcan

import (
	"fmt"
	"strconv"
	"strings"

	canctrl "github.com/gocandev/canctrl"
)

// Serial line bitrate presets understood by Lawicel compatible adapters
var bitratePresets = map[uint32]byte{
	10_000:    '0',
	20_000:    '1',
	50_000:    '2',
	100_000:   '3',
	125_000:   '4',
	250_000:   '5',
	500_000:   '6',
	800_000:   '7',
	1_000_000: '8',
}

// EncodeFrame converts a frame into the ASCII record the adapter expects:
// a type character (t/T for data, r/R for remote, upper case for extended
// identifiers), the hex identifier, the DLC digit, the hex payload and a
// terminating carriage return.
func EncodeFrame(frame *canctrl.Frame) string {
	var builder strings.Builder
	switch {
	case frame.IsRemote() && frame.IsExtended():
		builder.WriteByte('R')
	case frame.IsRemote():
		builder.WriteByte('r')
	case frame.IsExtended():
		builder.WriteByte('T')
	default:
		builder.WriteByte('t')
	}

	if frame.IsExtended() {
		builder.WriteString(fmt.Sprintf("%08X", frame.ID&canctrl.ExtIDMask))
	} else {
		builder.WriteString(fmt.Sprintf("%03X", frame.ID&canctrl.StdIDMask))
	}

	builder.WriteByte('0' + frame.DLC&0x0F)

	if !frame.IsRemote() {
		for _, b := range frame.Payload() {
			builder.WriteString(fmt.Sprintf("%02X", b))
		}
	}

	builder.WriteByte('\r')
	return builder.String()
}

// DecodeFrame parses one ASCII record (without the terminating carriage
// return) into a frame. Records that are not frame records return
// ErrInvalidArgument.
func DecodeFrame(record []byte) (canctrl.Frame, error) {
	var frame canctrl.Frame
	if len(record) == 0 {
		return frame, canctrl.ErrInvalidArgument
	}

	idDigits := 3
	switch record[0] {
	case 'T', 'R':
		frame.Flags |= canctrl.FrameExtended
		idDigits = 8
	case 't', 'r':
	default:
		return frame, canctrl.ErrInvalidArgument
	}
	if record[0] == 'r' || record[0] == 'R' {
		frame.Flags |= canctrl.FrameRemote
	}

	if len(record) < 1+idDigits+1 {
		return frame, canctrl.ErrInvalidArgument
	}
	id, err := strconv.ParseUint(string(record[1:1+idDigits]), 16, 32)
	if err != nil {
		return frame, canctrl.ErrInvalidArgument
	}
	frame.ID = uint32(id)
	if frame.IsExtended() {
		frame.ID &= canctrl.ExtIDMask
	} else {
		frame.ID &= canctrl.StdIDMask
	}

	dlc := record[1+idDigits] - '0'
	if dlc > canctrl.MaxDLC {
		return frame, canctrl.ErrInvalidArgument
	}
	frame.DLC = dlc

	if frame.IsRemote() {
		return frame, nil
	}
	payload := record[1+idDigits+1:]
	if len(payload) < int(dlc)*2 {
		return frame, canctrl.ErrInvalidArgument
	}
	for i := 0; i < int(dlc); i++ {
		value, err := strconv.ParseUint(string(payload[i*2:i*2+2]), 16, 8)
		if err != nil {
			return frame, canctrl.ErrInvalidArgument
		}
		frame.Data[i] = byte(value)
	}
	return frame, nil
}
