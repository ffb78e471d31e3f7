// Package socketcan bridges the controller core to a Linux socketcan
// interface through github.com/brutella/can. Bit timing, error counters and
// hardware filters are managed by the kernel driver and are not reachable
// from user space, so the corresponding capabilities report
// ErrNotImplemented; frame transmission and reception work as usual.
package socketcan

import (
	"time"

	sockcan "github.com/brutella/can"
	canctrl "github.com/gocandev/canctrl"
	"github.com/gocandev/canctrl/pkg/backend"
)

func init() {
	backend.Register("socketcan", New)
}

// Identifier flags used by the kernel CAN frame layout
const (
	effFlag uint32 = 0x80000000
	rtrFlag uint32 = 0x40000000
)

type Backend struct {
	bus     *sockcan.Bus
	sink    canctrl.EventSink
	started bool
}

// Create a socketcan backend for an interface name, e.g. can0 or vcan0.
// The bitrate hint is ignored, the interface bitrate is configured through
// the kernel (ip link).
func New(channel string, bitrate uint32) (canctrl.Backend, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(channel)
	if err != nil {
		return nil, err
	}
	return &Backend{bus: bus}, nil
}

func (sc *Backend) Attach(sink canctrl.EventSink) {
	sc.sink = sink
	// brutella/can defines a "Handle" interface for received CAN frames
	sc.bus.Subscribe(sc)
}

func (sc *Backend) Start() error {
	sc.started = true
	go sc.bus.ConnectAndPublish()
	return nil
}

func (sc *Backend) Stop() error {
	sc.started = false
	return sc.bus.Disconnect()
}

func (sc *Backend) Capabilities() canctrl.Mode {
	return canctrl.ModeNormal
}

func (sc *Backend) SetMode(mode canctrl.Mode) error {
	if mode != canctrl.ModeNormal {
		return canctrl.ErrUnsupported
	}
	return nil
}

func (sc *Backend) ConfigureTiming(timing canctrl.Timing) error {
	return canctrl.ErrNotImplemented
}

func (sc *Backend) ConfigureTimingData(timing canctrl.Timing) error {
	return canctrl.ErrNotImplemented
}

// Publish the frame on the socket. The kernel queues internally, so the
// completion is synthesized as soon as the write succeeded.
func (sc *Backend) EnqueueFrame(frame canctrl.Frame, completion func(err error)) error {
	if frame.IsFD() {
		return canctrl.ErrUnsupported
	}
	id := frame.ID & canctrl.StdIDMask
	if frame.IsExtended() {
		id = (frame.ID & canctrl.ExtIDMask) | effFlag
	}
	if frame.IsRemote() {
		id |= rtrFlag
	}
	var data [8]byte
	copy(data[:], frame.Payload())
	err := sc.bus.Publish(sockcan.Frame{
		ID:     id,
		Length: frame.Length(),
		Data:   data,
	})
	if err != nil {
		return canctrl.ErrIo
	}
	completion(nil)
	return nil
}

// brutella/can specific "Handle" implementation, converts the kernel frame
// layout back into a core frame
func (sc *Backend) Handle(frame sockcan.Frame) {
	if sc.sink == nil {
		return
	}
	received := canctrl.Frame{DLC: canctrl.BytesToDLC(frame.Length)}
	if frame.ID&effFlag != 0 {
		received.ID = frame.ID & canctrl.ExtIDMask
		received.Flags |= canctrl.FrameExtended
	} else {
		received.ID = frame.ID & canctrl.StdIDMask
	}
	if frame.ID&rtrFlag != 0 {
		received.Flags |= canctrl.FrameRemote
	}
	copy(received.Data[:], frame.Data[:])
	sc.sink.OnFrameReceived(received)
}

func (sc *Backend) CoreClock() (uint32, error) {
	return 0, canctrl.ErrNotImplemented
}

func (sc *Backend) TimingBounds() canctrl.TimingBounds {
	return canctrl.TimingBounds{}
}

func (sc *Backend) TimingDataBounds() (canctrl.TimingBounds, bool) {
	return canctrl.TimingBounds{}, false
}

func (sc *Backend) BitrateLimits() (uint32, uint32) {
	return 0, 0
}

func (sc *Backend) MaxFilters(extended bool) (int, error) {
	return 0, canctrl.ErrNotImplemented
}

func (sc *Backend) RequestRecovery(timeout time.Duration) error {
	return canctrl.ErrNotImplemented
}
