// Package timing derives discrete CAN bit timing parameters from a target
// bitrate and sample point, under the integer register constraints reported
// by a hardware backend. All routines are pure.
package timing

import (
	canctrl "github.com/gocandev/canctrl"
)

// DefaultSamplePoint returns the sample point location used when the caller
// does not request one: 75.0% for bitrates over 800 kbit/s, 80.0% over
// 500 kbit/s and 87.5% otherwise. These are the locations used by the Linux
// kernel and recommended by CiA 301 for the lower rates.
func DefaultSamplePoint(bitrate uint32) uint16 {
	switch {
	case bitrate > 800_000:
		return 750
	case bitrate > 500_000:
		return 800
	default:
		return 875
	}
}

// Calc computes timing parameters for the requested bitrate and sample point
// in permille (0 selects DefaultSamplePoint). The bitrate must be reachable
// exactly with an integer prescaler and quanta count within bounds, the
// sample point is matched as closely as the integer segments allow. The
// second return value is the signed sample point deviation in permille
// (achieved minus requested).
func Calc(coreClock uint32, bounds canctrl.TimingBounds, bitrate uint32, samplePoint uint16) (canctrl.Timing, int, error) {
	if coreClock == 0 {
		return canctrl.Timing{}, 0, canctrl.ErrUnavailable
	}
	if bitrate == 0 || samplePoint >= 1000 || !boundsSane(&bounds) {
		return canctrl.Timing{}, 0, canctrl.ErrInvalidArgument
	}
	if samplePoint == 0 {
		samplePoint = DefaultSamplePoint(bitrate)
	}

	maxQuanta := canctrl.SyncSeg + int(bounds.Max.PropSeg) + int(bounds.Max.PhaseSeg1) + int(bounds.Max.PhaseSeg2)
	minQuanta := canctrl.SyncSeg + int(bounds.Min.PropSeg) + int(bounds.Min.PhaseSeg1) + int(bounds.Min.PhaseSeg2)

	var best canctrl.Timing
	bestDeviation := 0
	found := false

	// Start at the smallest prescaler able to fit the bit into maxQuanta,
	// larger prescalers divide the bit into fewer quanta.
	prescaler := uint64(coreClock) / (uint64(maxQuanta) * uint64(bitrate))
	if prescaler < uint64(bounds.Min.Prescaler) {
		prescaler = uint64(bounds.Min.Prescaler)
	}
	if prescaler == 0 {
		prescaler = 1
	}
	for ; prescaler <= uint64(bounds.Max.Prescaler); prescaler++ {
		if uint64(coreClock)%(prescaler*uint64(bitrate)) != 0 {
			// No integer number of quanta for this prescaler
			continue
		}
		quanta := int(uint64(coreClock) / (prescaler * uint64(bitrate)))
		if quanta < minQuanta {
			break
		}
		if quanta > maxQuanta {
			continue
		}
		candidate, deviation, ok := splitSegments(quanta, int(samplePoint), &bounds)
		if !ok {
			continue
		}
		candidate.Prescaler = uint16(prescaler)
		if !found || abs(deviation) < abs(bestDeviation) {
			best = candidate
			bestDeviation = deviation
			found = true
		}
		if bestDeviation == 0 {
			break
		}
	}
	if !found {
		return canctrl.Timing{}, 0, canctrl.ErrUnsupported
	}
	best.SJW = clamp(min16(best.PhaseSeg1, best.PhaseSeg2), bounds.Min.SJW, bounds.Max.SJW)
	return best, bestDeviation, nil
}

// CalcPrescaler fills in the prescaler for a caller supplied segment split.
// Since the segments are fixed and only the prescaler is free, the achieved
// bitrate may not match exactly; the remainder of the clock division is
// returned as the bitrate error instead of failing.
func CalcPrescaler(coreClock uint32, timing *canctrl.Timing, bitrate uint32) (uint32, error) {
	if coreClock == 0 {
		return 0, canctrl.ErrUnavailable
	}
	if timing == nil || bitrate == 0 || timing.PhaseSeg1 == 0 || timing.PhaseSeg2 == 0 {
		return 0, canctrl.ErrInvalidArgument
	}
	divider := uint64(bitrate) * uint64(timing.TimeQuanta())
	prescaler := uint64(coreClock) / divider
	if prescaler == 0 || prescaler > 0xFFFF {
		return 0, canctrl.ErrInvalidArgument
	}
	timing.Prescaler = uint16(prescaler)
	return uint32(uint64(coreClock) % divider), nil
}

// CalcTDCO computes the transmitter delay compensation offset in minimum
// time quanta from a set of data phase timing parameters, clamped to the
// supported range. Only meaningful when the bitrate switch is in use.
func CalcTDCO(timingData canctrl.Timing, tdcoMin uint16, tdcoMax uint16) uint16 {
	tdco := (canctrl.SyncSeg + uint32(timingData.PropSeg) + uint32(timingData.PhaseSeg1)) * uint32(timingData.Prescaler)
	if tdco < uint32(tdcoMin) {
		return tdcoMin
	}
	if tdco > uint32(tdcoMax) {
		return tdcoMax
	}
	return uint16(tdco)
}

// Distribute a bit time of the given quanta count into segments so that the
// sample point lands as close as possible to the requested location.
func splitSegments(quanta int, samplePoint int, bounds *canctrl.TimingBounds) (canctrl.Timing, int, bool) {
	seg1Min := int(bounds.Min.PropSeg) + int(bounds.Min.PhaseSeg1)
	seg1Max := int(bounds.Max.PropSeg) + int(bounds.Max.PhaseSeg1)

	// Quanta after the sample point
	seg2 := quanta - quanta*samplePoint/1000
	seg2 = clampInt(seg2, int(bounds.Min.PhaseSeg2), int(bounds.Max.PhaseSeg2))
	seg1 := quanta - canctrl.SyncSeg - seg2
	if seg1 > seg1Max {
		seg1 = seg1Max
		seg2 = quanta - canctrl.SyncSeg - seg1
	} else if seg1 < seg1Min {
		seg1 = seg1Min
		seg2 = quanta - canctrl.SyncSeg - seg1
	}
	if seg2 < int(bounds.Min.PhaseSeg2) || seg2 > int(bounds.Max.PhaseSeg2) || seg1 <= 0 {
		return canctrl.Timing{}, 0, false
	}

	propSeg := clampInt(seg1/2, int(bounds.Min.PropSeg), int(bounds.Max.PropSeg))
	phaseSeg1 := seg1 - propSeg
	if phaseSeg1 > int(bounds.Max.PhaseSeg1) {
		propSeg += phaseSeg1 - int(bounds.Max.PhaseSeg1)
		phaseSeg1 = int(bounds.Max.PhaseSeg1)
	} else if phaseSeg1 < int(bounds.Min.PhaseSeg1) {
		propSeg -= int(bounds.Min.PhaseSeg1) - phaseSeg1
		phaseSeg1 = int(bounds.Min.PhaseSeg1)
	}
	if propSeg < int(bounds.Min.PropSeg) || propSeg > int(bounds.Max.PropSeg) {
		return canctrl.Timing{}, 0, false
	}

	achieved := (canctrl.SyncSeg + seg1) * 1000 / quanta
	return canctrl.Timing{
		PropSeg:   uint16(propSeg),
		PhaseSeg1: uint16(phaseSeg1),
		PhaseSeg2: uint16(seg2),
	}, achieved - samplePoint, true
}

func boundsSane(bounds *canctrl.TimingBounds) bool {
	switch {
	case bounds.Max.Prescaler == 0:
		return false
	case bounds.Min.Prescaler > bounds.Max.Prescaler:
		return false
	case bounds.Min.PropSeg > bounds.Max.PropSeg:
		return false
	case bounds.Min.PhaseSeg1 > bounds.Max.PhaseSeg1:
		return false
	case bounds.Min.PhaseSeg2 > bounds.Max.PhaseSeg2:
		return false
	case bounds.Min.SJW > bounds.Max.SJW:
		return false
	}
	return true
}

func abs(value int) int {
	if value < 0 {
		return -value
	}
	return value
}

func clampInt(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func clamp(value, low, high uint16) uint16 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func min16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}
