// Package virtual implements an in-process CAN backend used for testing and
// examples. It simulates a single transmit mailbox with asynchronous
// completions, local loopback delivery and injectable bus errors; no
// physical bus is involved.
package virtual

import (
	"sync"
	"time"

	canctrl "github.com/gocandev/canctrl"
	"github.com/gocandev/canctrl/pkg/backend"
)

func init() {
	backend.Register("virtual", New)
}

const coreClock = 80_000_000

var timingBounds = canctrl.TimingBounds{
	Min: canctrl.Timing{SJW: 1, PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, Prescaler: 1},
	Max: canctrl.Timing{SJW: 16, PropSeg: 64, PhaseSeg1: 16, PhaseSeg2: 16, Prescaler: 1024},
}

var timingDataBounds = canctrl.TimingBounds{
	Min: canctrl.Timing{SJW: 1, PropSeg: 0, PhaseSeg1: 1, PhaseSeg2: 1, Prescaler: 1},
	Max: canctrl.Timing{SJW: 8, PropSeg: 8, PhaseSeg1: 8, PhaseSeg2: 8, Prescaler: 32},
}

type Backend struct {
	mu            sync.Mutex
	sink          canctrl.EventSink
	mode          canctrl.Mode
	started       bool
	timing        canctrl.Timing
	timingData    canctrl.Timing
	txDelay       time.Duration
	recoveryDelay time.Duration
	nextTxFault   error
}

// Create a virtual backend. The channel is accepted for registry
// compatibility and ignored; timing comes from ConfigureTiming, so the
// bitrate hint is ignored as well.
func New(channel string, bitrate uint32) (canctrl.Backend, error) {
	return &Backend{}, nil
}

func (vb *Backend) Attach(sink canctrl.EventSink) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.sink = sink
}

func (vb *Backend) Start() error {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.started = true
	return nil
}

func (vb *Backend) Stop() error {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.started = false
	return nil
}

func (vb *Backend) Capabilities() canctrl.Mode {
	return canctrl.ModeLoopback | canctrl.ModeListenOnly | canctrl.ModeFD |
		canctrl.ModeOneShot | canctrl.ModeTripleSampling | canctrl.ModeManualRecovery
}

func (vb *Backend) SetMode(mode canctrl.Mode) error {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.mode = mode
	return nil
}

func (vb *Backend) ConfigureTiming(timing canctrl.Timing) error {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.timing = timing
	return nil
}

func (vb *Backend) ConfigureTimingData(timing canctrl.Timing) error {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.timingData = timing
	return nil
}

// Simulate a transmission: the completion fires from a separate goroutine
// like a hardware completion interrupt would, after the configured delay.
// With loopback mode active the frame is delivered back to the sink.
func (vb *Backend) EnqueueFrame(frame canctrl.Frame, completion func(err error)) error {
	vb.mu.Lock()
	if !vb.started {
		vb.mu.Unlock()
		return canctrl.ErrNetworkDown
	}
	fault := vb.nextTxFault
	vb.nextTxFault = nil
	mode := vb.mode
	sink := vb.sink
	delay := vb.txDelay
	vb.mu.Unlock()

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if fault != nil {
			completion(fault)
			return
		}
		completion(nil)
		if mode.Has(canctrl.ModeLoopback) && sink != nil {
			sink.OnFrameReceived(frame)
		}
	}()
	return nil
}

func (vb *Backend) CoreClock() (uint32, error) {
	return coreClock, nil
}

func (vb *Backend) TimingBounds() canctrl.TimingBounds {
	return timingBounds
}

func (vb *Backend) TimingDataBounds() (canctrl.TimingBounds, bool) {
	return timingDataBounds, true
}

func (vb *Backend) BitrateLimits() (uint32, uint32) {
	return 10_000, 8_000_000
}

func (vb *Backend) MaxFilters(extended bool) (int, error) {
	if extended {
		return 4, nil
	}
	return 8, nil
}

func (vb *Backend) RequestRecovery(timeout time.Duration) error {
	vb.mu.Lock()
	started := vb.started
	delay := vb.recoveryDelay
	vb.mu.Unlock()
	if !started {
		return canctrl.ErrNetworkDown
	}
	if timeout > 0 && delay > timeout {
		time.Sleep(timeout)
		return canctrl.ErrTimeout
	}
	time.Sleep(delay)
	return nil
}

// Simulated completion delay per transmitted frame
func (vb *Backend) SetTxDelay(delay time.Duration) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.txDelay = delay
}

// Duration of a simulated bus-off recovery sequence
func (vb *Backend) SetRecoveryDelay(delay time.Duration) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.recoveryDelay = delay
}

// Fail the next transmission with the given error, e.g. ErrResourceBusy to
// simulate lost arbitration in one-shot mode
func (vb *Backend) FailNextTransmit(fault error) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.nextTxFault = fault
}

// Deliver a frame to the attached sink as if it was received from the bus
func (vb *Backend) InjectFrame(frame canctrl.Frame) {
	vb.mu.Lock()
	sink := vb.sink
	vb.mu.Unlock()
	if sink != nil {
		sink.OnFrameReceived(frame)
	}
}

// Report bus error counters to the attached sink as if the hardware
// signalled a bus event
func (vb *Backend) InjectBusError(txErrors uint16, rxErrors uint16) {
	vb.mu.Lock()
	sink := vb.sink
	vb.mu.Unlock()
	if sink != nil {
		sink.OnBusEvent(txErrors, rxErrors)
	}
}
