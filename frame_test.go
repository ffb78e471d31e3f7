package canctrl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDLCToBytes(t *testing.T) {
	expected := []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}
	for dlc, length := range expected {
		assert.EqualValues(t, length, DLCToBytes(uint8(dlc)))
	}
	// Out of range DLCs clamp to the largest entry
	assert.EqualValues(t, 64, DLCToBytes(20))
}

func TestBytesToDLCRoundTrip(t *testing.T) {
	// Below 9 bytes the mapping is exact in both directions
	for dlc := uint8(0); dlc <= 8; dlc++ {
		assert.Equal(t, dlc, BytesToDLC(DLCToBytes(dlc)))
	}
	// Above 8 the table is injective, every canonical length round trips
	for dlc := uint8(9); dlc <= 15; dlc++ {
		assert.Equal(t, dlc, BytesToDLC(DLCToBytes(dlc)))
	}
	// Intermediate lengths round up to the next canonical DLC
	assert.EqualValues(t, 9, BytesToDLC(9))
	assert.EqualValues(t, 10, BytesToDLC(13))
	assert.EqualValues(t, 15, BytesToDLC(49))
}

func TestFrameValidate(t *testing.T) {
	frame := NewFrame(0x123, []byte{1, 2, 3})
	assert.Nil(t, frame.Validate(ModeNormal))

	// Identifier out of range for the standard width
	frame = Frame{ID: 0x800}
	assert.Equal(t, ErrInvalidArgument, frame.Validate(ModeNormal))
	frame = Frame{ID: 0x2000_0000, Flags: FrameExtended}
	assert.Equal(t, ErrInvalidArgument, frame.Validate(ModeNormal))

	// FD frames need FD mode
	frame = Frame{ID: 0x100, Flags: FrameFD, DLC: 15}
	assert.Equal(t, ErrUnsupported, frame.Validate(ModeNormal))
	assert.Nil(t, frame.Validate(ModeFD))

	// BRS and ESI are only meaningful together with the FD format
	frame = Frame{ID: 0x100, Flags: FrameBRS}
	assert.Equal(t, ErrInvalidArgument, frame.Validate(ModeFD))
	frame = Frame{ID: 0x100, Flags: FrameFD | FrameBRS | FrameESI}
	assert.Nil(t, frame.Validate(ModeFD))

	// No remote frames in the FD format
	frame = Frame{ID: 0x100, Flags: FrameFD | FrameRemote}
	assert.Equal(t, ErrInvalidArgument, frame.Validate(ModeFD))

	// Classic frames carry at most 8 bytes
	frame = Frame{ID: 0x100, DLC: 9}
	assert.Equal(t, ErrInvalidArgument, frame.Validate(ModeNormal))
}

func TestFramePayload(t *testing.T) {
	frame := NewExtendedFrame(0x1ABCDE, []byte{0xDE, 0xAD})
	assert.True(t, frame.IsExtended())
	assert.EqualValues(t, 2, frame.Length())
	assert.Equal(t, []byte{0xDE, 0xAD}, frame.Payload())

	frame.Flags |= FrameRemote
	assert.Nil(t, frame.Payload())
}

func TestFilterMatches(t *testing.T) {
	filter := NewFilter(0x123)
	frame := NewFrame(0x123, nil)
	assert.True(t, filter.Matches(&frame))

	frame = NewFrame(0x124, nil)
	assert.False(t, filter.Matches(&frame))

	// Identifier width must agree regardless of id and mask values
	extended := NewExtendedFrame(0x123, nil)
	assert.False(t, filter.Matches(&extended))
	extendedFilter := NewExtendedFilter(0x123)
	standard := NewFrame(0x123, nil)
	assert.False(t, extendedFilter.Matches(&standard))
	assert.True(t, extendedFilter.Matches(&extended))

	// Mask bits set to zero are don't cares
	filter = Filter{ID: 0x120, Mask: 0x7F0}
	for id := uint32(0x120); id <= 0x12F; id++ {
		frame := NewFrame(id, nil)
		assert.True(t, filter.Matches(&frame))
	}
	frame = NewFrame(0x130, nil)
	assert.False(t, filter.Matches(&frame))

	// An empty mask matches everything of the same width
	filter = Filter{}
	frame = NewFrame(0x7FF, nil)
	assert.True(t, filter.Matches(&frame))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "normal", ModeNormal.String())
	assert.Equal(t, "fd,one-shot", (ModeFD | ModeOneShot).String())
	assert.True(t, (ModeFD | ModeOneShot).Has(ModeFD))
	assert.False(t, ModeFD.Has(ModeOneShot))
}

func TestTimingHelpers(t *testing.T) {
	timing := Timing{SJW: 1, PropSeg: 7, PhaseSeg1: 6, PhaseSeg2: 2, Prescaler: 1}
	assert.EqualValues(t, 16, timing.TimeQuanta())
	assert.EqualValues(t, 500_000, timing.Bitrate(8_000_000))
	assert.EqualValues(t, 875, timing.SamplePointPermille())

	bounds := TimingBounds{
		Min: Timing{SJW: 1, PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, Prescaler: 1},
		Max: Timing{SJW: 4, PropSeg: 8, PhaseSeg1: 8, PhaseSeg2: 8, Prescaler: 32},
	}
	assert.True(t, bounds.Contains(&timing))
	timing.Prescaler = 64
	assert.False(t, bounds.Contains(&timing))
}
