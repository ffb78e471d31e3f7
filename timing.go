package canctrl

// Length of the synchronization segment in time quanta, fixed by the CAN
// specification
const SyncSeg = 1

// Bus timing parameters. One time quantum lasts prescaler/coreClock seconds,
// a bit time is SyncSeg + PropSeg + PhaseSeg1 + PhaseSeg2 quanta:
//
//	+----------+----------+------------+------------+
//	| sync_seg | prop_seg | phase_seg1 | phase_seg2 |
//	+----------+----------+------------+------------+
//	                                   ^
//	                             sample point
type Timing struct {
	SJW       uint16
	PropSeg   uint16
	PhaseSeg1 uint16
	PhaseSeg2 uint16
	Prescaler uint16
}

// Total number of time quanta per bit
func (timing *Timing) TimeQuanta() uint32 {
	return SyncSeg + uint32(timing.PropSeg) + uint32(timing.PhaseSeg1) + uint32(timing.PhaseSeg2)
}

// Resulting bitrate for a given core clock, zero if the parameters are
// incomplete
func (timing *Timing) Bitrate(coreClock uint32) uint32 {
	tq := timing.TimeQuanta()
	if timing.Prescaler == 0 || tq == 0 {
		return 0
	}
	return coreClock / (uint32(timing.Prescaler) * tq)
}

// Sample point location in permille of the bit time
func (timing *Timing) SamplePointPermille() uint16 {
	tq := timing.TimeQuanta()
	if tq == 0 {
		return 0
	}
	return uint16((SyncSeg + uint32(timing.PropSeg) + uint32(timing.PhaseSeg1)) * 1000 / tq)
}

// Hardware specific minimum and maximum timing register values
type TimingBounds struct {
	Min Timing
	Max Timing
}

// Check that every field lies within the bounds
func (bounds *TimingBounds) Contains(timing *Timing) bool {
	switch {
	case timing.SJW < bounds.Min.SJW || timing.SJW > bounds.Max.SJW:
		return false
	case timing.PropSeg < bounds.Min.PropSeg || timing.PropSeg > bounds.Max.PropSeg:
		return false
	case timing.PhaseSeg1 < bounds.Min.PhaseSeg1 || timing.PhaseSeg1 > bounds.Max.PhaseSeg1:
		return false
	case timing.PhaseSeg2 < bounds.Min.PhaseSeg2 || timing.PhaseSeg2 > bounds.Max.PhaseSeg2:
		return false
	case timing.Prescaler < bounds.Min.Prescaler || timing.Prescaler > bounds.Max.Prescaler:
		return false
	}
	return true
}
