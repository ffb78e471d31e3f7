// Package controller implements the CAN controller driver core: mode and
// state management, priority ordered transmission, filter based reception
// dispatch and bus-off recovery, on top of an abstract hardware backend.
package controller

import (
	"sync"
	"time"

	canctrl "github.com/gocandev/canctrl"
	"github.com/gocandev/canctrl/pkg/timing"
	log "github.com/sirupsen/logrus"
)

// Filter table capacity used when the backend does not report one
const DefaultFilterCapacity = 16

// Largest accepted sample point deviation for SetBitrate, in permille
const maxSamplePointDeviation = 50

type Option func(*options)

type options struct {
	mailboxes      int
	filterCapacity int
}

// Number of hardware transmit mailboxes the scheduler may fill at a time
func WithTxMailboxes(count int) Option {
	return func(opts *options) { opts.mailboxes = count }
}

// Override the filter table capacity, for backends that do not report one
func WithFilterCapacity(capacity int) Option {
	return func(opts *options) { opts.filterCapacity = capacity }
}

// A CAN controller instance. All configuration lives on the instance, there
// is no process wide state; multiple independent controllers can coexist.
type Controller struct {
	backend   canctrl.Backend
	scheduler *txScheduler
	filters   *filterTable
	machine   *stateMachine

	mu   sync.Mutex
	mode canctrl.Mode
}

// Create a controller around a hardware backend. The backend is injected
// here and attached immediately; it must not be shared between controllers.
func NewController(backend canctrl.Backend, opts ...Option) (*Controller, error) {
	if backend == nil {
		return nil, canctrl.ErrInvalidArgument
	}
	settings := options{mailboxes: 1}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.filterCapacity == 0 {
		settings.filterCapacity = filterCapacityFromBackend(backend)
	}

	ctrl := &Controller{
		backend: backend,
		filters: newFilterTable(settings.filterCapacity),
		machine: &stateMachine{},
	}
	ctrl.scheduler = newTxScheduler(settings.mailboxes, backend.EnqueueFrame)
	backend.Attach(ctrl)
	return ctrl, nil
}

func filterCapacityFromBackend(backend canctrl.Backend) int {
	capacity := 0
	if count, err := backend.MaxFilters(false); err == nil {
		capacity += count
	}
	if count, err := backend.MaxFilters(true); err == nil {
		capacity += count
	}
	if capacity == 0 {
		capacity = DefaultFilterCapacity
	}
	return capacity
}

// Start the controller. This resets the error counters and brings the
// controller out of stopped into error-active.
func (ctrl *Controller) Start() error {
	if ctrl.machine.isStarted() {
		return canctrl.ErrAlreadyInState
	}
	if err := ctrl.backend.Start(); err != nil {
		return err
	}
	ctrl.machine.onStart(ctrl.GetMode().Has(canctrl.ModeManualRecovery))
	log.Infof("[CAN] controller started (mode %v)", ctrl.GetMode())
	return nil
}

// Stop the controller from any state. Pending transmissions are aborted
// with ErrNetworkDown.
func (ctrl *Controller) Stop() error {
	if !ctrl.machine.isStarted() {
		return canctrl.ErrAlreadyInState
	}
	if err := ctrl.backend.Stop(); err != nil {
		return err
	}
	ctrl.scheduler.flush(canctrl.ErrNetworkDown)
	ctrl.machine.onStop()
	log.Info("[CAN] controller stopped")
	return nil
}

// Mode flags supported by the backend
func (ctrl *Controller) Capabilities() canctrl.Mode {
	return ctrl.backend.Capabilities()
}

// Change the controller mode, only accepted while stopped
func (ctrl *Controller) SetMode(mode canctrl.Mode) error {
	if ctrl.machine.isStarted() {
		return canctrl.ErrBusy
	}
	if mode&^ctrl.backend.Capabilities() != 0 {
		return canctrl.ErrUnsupported
	}
	if err := ctrl.backend.SetMode(mode); err != nil {
		return err
	}
	ctrl.mu.Lock()
	ctrl.mode = mode
	ctrl.mu.Unlock()
	return nil
}

func (ctrl *Controller) GetMode() canctrl.Mode {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	return ctrl.mode
}

// Configure the arbitration phase bus timing, only accepted while stopped
func (ctrl *Controller) SetTiming(params canctrl.Timing) error {
	if ctrl.machine.isStarted() {
		return canctrl.ErrBusy
	}
	bounds := ctrl.backend.TimingBounds()
	if !bounds.Contains(&params) {
		return canctrl.ErrUnsupported
	}
	return ctrl.backend.ConfigureTiming(params)
}

// Configure the data phase bus timing, CAN FD backends only
func (ctrl *Controller) SetTimingData(params canctrl.Timing) error {
	if ctrl.machine.isStarted() {
		return canctrl.ErrBusy
	}
	bounds, ok := ctrl.backend.TimingDataBounds()
	if !ok {
		return canctrl.ErrNotImplemented
	}
	if !bounds.Contains(&params) {
		return canctrl.ErrUnsupported
	}
	return ctrl.backend.ConfigureTimingData(params)
}

// Calculate arbitration phase timing parameters from a bitrate and sample
// point using the backend's core clock and register bounds
func (ctrl *Controller) CalcTiming(bitrate uint32, samplePoint uint16) (canctrl.Timing, int, error) {
	clock, err := ctrl.backend.CoreClock()
	if err != nil {
		return canctrl.Timing{}, 0, canctrl.ErrUnavailable
	}
	if err := ctrl.checkBitrate(bitrate); err != nil {
		return canctrl.Timing{}, 0, err
	}
	return timing.Calc(clock, ctrl.backend.TimingBounds(), bitrate, samplePoint)
}

// Like CalcTiming but for the data phase register bounds
func (ctrl *Controller) CalcTimingData(bitrate uint32, samplePoint uint16) (canctrl.Timing, int, error) {
	bounds, ok := ctrl.backend.TimingDataBounds()
	if !ok {
		return canctrl.Timing{}, 0, canctrl.ErrNotImplemented
	}
	clock, err := ctrl.backend.CoreClock()
	if err != nil {
		return canctrl.Timing{}, 0, canctrl.ErrUnavailable
	}
	if err := ctrl.checkBitrate(bitrate); err != nil {
		return canctrl.Timing{}, 0, err
	}
	return timing.Calc(clock, bounds, bitrate, samplePoint)
}

// Fill in the prescaler for a caller supplied segment split using the
// backend's core clock. Returns the achieved bitrate's rounding error.
func (ctrl *Controller) CalcPrescaler(params *canctrl.Timing, bitrate uint32) (uint32, error) {
	clock, err := ctrl.backend.CoreClock()
	if err != nil {
		return 0, canctrl.ErrUnavailable
	}
	return timing.CalcPrescaler(clock, params, bitrate)
}

// Calculate and configure the arbitration phase timing for a bitrate.
// Rejects configurations whose sample point misses the default location by
// more than ±5%.
func (ctrl *Controller) SetBitrate(bitrate uint32) error {
	params, deviation, err := ctrl.CalcTiming(bitrate, 0)
	if err != nil {
		return err
	}
	if deviation > maxSamplePointDeviation || deviation < -maxSamplePointDeviation {
		return canctrl.ErrInvalidArgument
	}
	return ctrl.SetTiming(params)
}

// Calculate and configure the data phase timing for a bitrate
func (ctrl *Controller) SetBitrateData(bitrate uint32) error {
	params, deviation, err := ctrl.CalcTimingData(bitrate, 0)
	if err != nil {
		return err
	}
	if deviation > maxSamplePointDeviation || deviation < -maxSamplePointDeviation {
		return canctrl.ErrInvalidArgument
	}
	return ctrl.SetTimingData(params)
}

// Queue a frame for transmission. Frames are handed to the backend in CAN
// arbitration priority order. With a nil callback the call blocks until the
// frame was sent or the queue-wait deadline passed; with a callback the
// outcome is delivered there instead. A timeout of zero waits forever for a
// free slot.
func (ctrl *Controller) Send(frame canctrl.Frame, timeout time.Duration, callback canctrl.TxCallback, userData any) error {
	mode := ctrl.GetMode()
	if err := frame.Validate(mode); err != nil {
		return err
	}
	if mode.Has(canctrl.ModeListenOnly) {
		return canctrl.ErrUnsupported
	}
	switch ctrl.machine.state() {
	case canctrl.StateStopped:
		return canctrl.ErrNetworkDown
	case canctrl.StateBusOff:
		return canctrl.ErrNetworkUnreachable
	}
	return ctrl.scheduler.submit(frame, timeout, callback, userData)
}

// Register a receive filter. The returned filter id identifies the
// registration until it is removed. When several registered filters match
// the same frame each callback fires once, in unspecified order.
func (ctrl *Controller) AddRxFilter(filter canctrl.Filter, callback canctrl.RxCallback, userData any) (int, error) {
	return ctrl.filters.add(filter, callback, userData)
}

// Remove a previously added receive filter
func (ctrl *Controller) RemoveRxFilter(filterID int) error {
	return ctrl.filters.remove(filterID)
}

// Maximum number of concurrent filters reported by the backend
func (ctrl *Controller) MaxFilters(extended bool) (int, error) {
	return ctrl.backend.MaxFilters(extended)
}

func (ctrl *Controller) State() canctrl.State {
	return ctrl.machine.state()
}

func (ctrl *Controller) ErrorCounters() canctrl.ErrorCounters {
	return ctrl.machine.errorCounters()
}

// Register the state change callback. Only one callback is registered at a
// time, setting a new one discards the previous registration.
func (ctrl *Controller) SetStateChangeCallback(callback canctrl.StateCallback, userData any) {
	ctrl.machine.setCallback(callback, userData)
}

// Manually recover from bus-off. Only available when the controller was
// configured with ModeManualRecovery; a no-op when not in bus-off.
func (ctrl *Controller) Recover(timeout time.Duration) error {
	if !ctrl.GetMode().Has(canctrl.ModeManualRecovery) {
		return canctrl.ErrUnsupported
	}
	if !ctrl.machine.isStarted() {
		return canctrl.ErrNetworkDown
	}
	if ctrl.machine.state() != canctrl.StateBusOff {
		return nil
	}
	if err := ctrl.backend.RequestRecovery(timeout); err != nil {
		return err
	}
	ctrl.machine.recovered()
	return nil
}

func (ctrl *Controller) CoreClock() (uint32, error) {
	return ctrl.backend.CoreClock()
}

func (ctrl *Controller) BitrateMin() uint32 {
	min, _ := ctrl.backend.BitrateLimits()
	return min
}

func (ctrl *Controller) BitrateMax() uint32 {
	_, max := ctrl.backend.BitrateLimits()
	return max
}

// OnFrameReceived implements canctrl.EventSink. Called from the backend
// reception path, must not block.
func (ctrl *Controller) OnFrameReceived(frame canctrl.Frame) {
	if !ctrl.machine.isStarted() {
		return
	}
	ctrl.filters.dispatch(frame)
}

// OnBusEvent implements canctrl.EventSink. Called from the backend
// reception path, must not block.
func (ctrl *Controller) OnBusEvent(txErrors uint16, rxErrors uint16) {
	state := ctrl.machine.update(txErrors, rxErrors)
	if state == canctrl.StateBusOff {
		log.Warnf("[CAN] bus-off (tx errors %d, rx errors %d)", txErrors, rxErrors)
		ctrl.scheduler.flush(canctrl.ErrNetworkUnreachable)
	}
}

func (ctrl *Controller) checkBitrate(bitrate uint32) error {
	min, max := ctrl.backend.BitrateLimits()
	if bitrate == 0 || (max > 0 && (bitrate < min || bitrate > max)) {
		return canctrl.ErrInvalidArgument
	}
	return nil
}
