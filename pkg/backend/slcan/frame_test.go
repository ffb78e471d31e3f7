package slcan

import (
	"testing"

	canctrl "github.com/gocandev/canctrl"
	"github.com/stretchr/testify/assert"
)

func TestEncodeFrame(t *testing.T) {
	frame := canctrl.NewFrame(0x123, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	assert.Equal(t, "t1234DEADBEEF\r", EncodeFrame(&frame))

	frame = canctrl.NewExtendedFrame(0x1ABCDEF0, []byte{0x01})
	assert.Equal(t, "T1ABCDEF0101\r", EncodeFrame(&frame))

	frame = canctrl.NewFrame(0x7FF, nil)
	frame.Flags |= canctrl.FrameRemote
	frame.DLC = 2
	assert.Equal(t, "r7FF2\r", EncodeFrame(&frame))

	frame = canctrl.NewExtendedFrame(0x42, nil)
	frame.Flags |= canctrl.FrameRemote
	assert.Equal(t, "R000000420\r", EncodeFrame(&frame))
}

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte("t1234DEADBEEF"))
	assert.Nil(t, err)
	assert.EqualValues(t, 0x123, frame.ID)
	assert.False(t, frame.IsExtended())
	assert.EqualValues(t, 4, frame.DLC)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, frame.Payload())

	frame, err = DecodeFrame([]byte("T1ABCDEF0101"))
	assert.Nil(t, err)
	assert.EqualValues(t, 0x1ABCDEF0, frame.ID)
	assert.True(t, frame.IsExtended())
	assert.Equal(t, []byte{0x01}, frame.Payload())

	frame, err = DecodeFrame([]byte("r7FF2"))
	assert.Nil(t, err)
	assert.EqualValues(t, 0x7FF, frame.ID)
	assert.True(t, frame.IsRemote())
	assert.EqualValues(t, 2, frame.DLC)
	assert.Nil(t, frame.Payload())
}

func TestDecodeFrameRoundTrip(t *testing.T) {
	frames := []canctrl.Frame{
		canctrl.NewFrame(0x001, []byte{0xFF}),
		canctrl.NewFrame(0x456, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		canctrl.NewExtendedFrame(0x1FFFFFFF, nil),
	}
	for _, frame := range frames {
		record := EncodeFrame(&frame)
		decoded, err := DecodeFrame([]byte(record[:len(record)-1]))
		assert.Nil(t, err)
		assert.Equal(t, frame, decoded)
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	for _, record := range []string{
		"",            // empty
		"z",           // ack, not a frame record
		"t123",        // missing dlc
		"t1239",       // dlc out of range
		"t1232AB",     // payload shorter than dlc
		"t12X2ABCD",   // bad identifier digit
		"T1234567",    // extended identifier truncated
		"t1232ZZZZ",   // bad payload digit
	} {
		_, err := DecodeFrame([]byte(record))
		assert.Equal(t, canctrl.ErrInvalidArgument, err, "record %q", record)
	}
}

func TestBitratePresets(t *testing.T) {
	assert.EqualValues(t, '0', bitratePresets[10_000])
	assert.EqualValues(t, '6', bitratePresets[500_000])
	assert.EqualValues(t, '8', bitratePresets[1_000_000])
	_, known := bitratePresets[300_000]
	assert.False(t, known)
}
