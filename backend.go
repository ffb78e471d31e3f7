package canctrl

import "time"

// Callback invoked when a queued frame was sent or failed to send.
// err is nil on success or one of the driver errors.
type TxCallback func(err error, userData any)

// Callback invoked for every received frame matching a registered filter
type RxCallback func(frame Frame, userData any)

// Callback invoked on every controller state transition
type StateCallback func(state State, counters ErrorCounters, userData any)

// EventSink receives the asynchronous event streams of a backend. It is
// implemented by the controller and attached once at construction.
// Implementations must not block: both methods are called from the backend
// reception path.
type EventSink interface {
	// A frame passed hardware acceptance filtering
	OnFrameReceived(frame Frame)
	// The bus error counters changed. Counters are reported unclamped so
	// that the bus-off threshold of 256 is representable.
	OnBusEvent(txErrors uint16, rxErrors uint16)
}

// Backend is the abstract capability set this core requires from a concrete
// CAN controller, one implementation per hardware target. Optional
// capabilities report ErrNotImplemented.
type Backend interface {
	// Register the sink for received frames and bus events. Called once
	// before any other method.
	Attach(sink EventSink)

	Start() error
	Stop() error

	// Mode flags supported by this backend
	Capabilities() Mode
	SetMode(mode Mode) error

	ConfigureTiming(timing Timing) error
	// Data phase timing, CAN FD only
	ConfigureTimingData(timing Timing) error

	// Hand a frame to the hardware. completion is invoked exactly once per
	// accepted frame, from the backend's completion path.
	EnqueueFrame(frame Frame, completion func(err error)) error

	CoreClock() (uint32, error)
	TimingBounds() TimingBounds
	TimingDataBounds() (TimingBounds, bool)
	BitrateLimits() (min uint32, max uint32)

	// Maximum number of concurrent filters for the given identifier width
	MaxFilters(extended bool) (int, error)

	// Run the bus-off recovery sequence, manual recovery mode only
	RequestRecovery(timeout time.Duration) error
}
