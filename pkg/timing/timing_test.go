package timing

import (
	"testing"

	canctrl "github.com/gocandev/canctrl"
	"github.com/stretchr/testify/assert"
)

var testBounds = canctrl.TimingBounds{
	Min: canctrl.Timing{SJW: 1, PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, Prescaler: 1},
	Max: canctrl.Timing{SJW: 16, PropSeg: 64, PhaseSeg1: 16, PhaseSeg2: 16, Prescaler: 1024},
}

func TestDefaultSamplePoint(t *testing.T) {
	assert.EqualValues(t, 875, DefaultSamplePoint(125_000))
	assert.EqualValues(t, 875, DefaultSamplePoint(500_000))
	assert.EqualValues(t, 800, DefaultSamplePoint(800_000))
	assert.EqualValues(t, 750, DefaultSamplePoint(1_000_000))
}

func TestCalc(t *testing.T) {
	timing, deviation, err := Calc(8_000_000, testBounds, 500_000, 875)
	assert.Nil(t, err)
	assert.Equal(t, 0, deviation)
	assert.EqualValues(t, 16, timing.TimeQuanta())
	assert.EqualValues(t, 1, timing.Prescaler)
	assert.EqualValues(t, 500_000, timing.Bitrate(8_000_000))
	assert.EqualValues(t, 875, timing.SamplePointPermille())
	assert.True(t, testBounds.Contains(&timing))

	// A zero sample point selects the default location
	timing, deviation, err = Calc(16_000_000, testBounds, 1_000_000, 0)
	assert.Nil(t, err)
	assert.Equal(t, 0, deviation)
	assert.EqualValues(t, 1_000_000, timing.Bitrate(16_000_000))
	assert.EqualValues(t, 750, timing.SamplePointPermille())
}

func TestCalcExactBitrates(t *testing.T) {
	// Every CiA recommended rate is reachable exactly from an 80 MHz clock
	for _, bitrate := range []uint32{10_000, 20_000, 50_000, 125_000, 250_000, 500_000, 800_000, 1_000_000} {
		timing, _, err := Calc(80_000_000, testBounds, bitrate, 0)
		assert.Nil(t, err, "bitrate %v", bitrate)
		assert.Equal(t, bitrate, timing.Bitrate(80_000_000), "bitrate %v", bitrate)
		assert.True(t, testBounds.Contains(&timing), "bitrate %v", bitrate)
	}
}

func TestCalcUnreachableBitrate(t *testing.T) {
	// 8 MHz has no factor of 3, 300 kbit/s cannot divide it exactly
	_, _, err := Calc(8_000_000, testBounds, 300_000, 875)
	assert.Equal(t, canctrl.ErrUnsupported, err)
}

func TestCalcBadArguments(t *testing.T) {
	_, _, err := Calc(0, testBounds, 500_000, 875)
	assert.Equal(t, canctrl.ErrUnavailable, err)

	_, _, err = Calc(8_000_000, testBounds, 0, 875)
	assert.Equal(t, canctrl.ErrInvalidArgument, err)

	_, _, err = Calc(8_000_000, testBounds, 500_000, 1000)
	assert.Equal(t, canctrl.ErrInvalidArgument, err)

	broken := testBounds
	broken.Max.Prescaler = 0
	_, _, err = Calc(8_000_000, broken, 500_000, 875)
	assert.Equal(t, canctrl.ErrInvalidArgument, err)
}

func TestCalcSJW(t *testing.T) {
	timing, _, err := Calc(8_000_000, testBounds, 500_000, 875)
	assert.Nil(t, err)
	assert.EqualValues(t, min16(timing.PhaseSeg1, timing.PhaseSeg2), timing.SJW)
	assert.True(t, timing.SJW >= testBounds.Min.SJW)
	assert.True(t, timing.SJW <= testBounds.Max.SJW)
}

func TestCalcPrescaler(t *testing.T) {
	timing := canctrl.Timing{SJW: 1, PropSeg: 7, PhaseSeg1: 6, PhaseSeg2: 2}
	errRate, err := CalcPrescaler(8_000_000, &timing, 500_000)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, errRate)
	assert.EqualValues(t, 1, timing.Prescaler)

	// An inexact division reports the remainder instead of failing
	timing = canctrl.Timing{SJW: 1, PropSeg: 7, PhaseSeg1: 6, PhaseSeg2: 2}
	errRate, err = CalcPrescaler(8_000_000, &timing, 480_000)
	assert.Nil(t, err)
	assert.EqualValues(t, 320_000, errRate)
	assert.EqualValues(t, 1, timing.Prescaler)

	_, err = CalcPrescaler(0, &timing, 500_000)
	assert.Equal(t, canctrl.ErrUnavailable, err)
	_, err = CalcPrescaler(8_000_000, nil, 500_000)
	assert.Equal(t, canctrl.ErrInvalidArgument, err)
	_, err = CalcPrescaler(8_000_000, &timing, 0)
	assert.Equal(t, canctrl.ErrInvalidArgument, err)
}

func TestCalcTDCO(t *testing.T) {
	timingData := canctrl.Timing{PropSeg: 1, PhaseSeg1: 2, PhaseSeg2: 2, Prescaler: 2}
	assert.EqualValues(t, 8, CalcTDCO(timingData, 0, 127))
	assert.EqualValues(t, 10, CalcTDCO(timingData, 10, 127))
	assert.EqualValues(t, 5, CalcTDCO(timingData, 0, 5))
}
