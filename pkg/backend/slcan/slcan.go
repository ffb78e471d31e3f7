// Package slcan implements a backend for Lawicel compatible SLCAN adapters
// attached through a serial port. The adapter firmware owns the actual bit
// timing, selected through fixed bitrate presets, so segment level timing
// configuration reports ErrNotImplemented.
package slcan

import (
	"context"
	"fmt"
	"sync"
	"time"

	retry "github.com/avast/retry-go"
	canctrl "github.com/gocandev/canctrl"
	"github.com/gocandev/canctrl/internal/ring"
	"github.com/gocandev/canctrl/pkg/backend"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
)

func init() {
	backend.Register("slcan", New)
}

const (
	serialBaudrate = 115_200
	readBufferSize = 1024
	// Adapter error indication byte
	bell = 0x07
)

type Backend struct {
	mu       sync.Mutex
	portName string
	preset   byte
	port     serial.Port
	sink     canctrl.EventSink
	group    *errgroup.Group
	cancel   context.CancelFunc
	started  bool
	mode     canctrl.Mode
}

// Create an slcan backend for a serial port, e.g. /dev/ttyUSB0. The bitrate
// must match one of the adapter presets (10k to 1M); zero selects 500 kbit/s.
func New(channel string, bitrate uint32) (canctrl.Backend, error) {
	if bitrate == 0 {
		bitrate = 500_000
	}
	preset, ok := bitratePresets[bitrate]
	if !ok {
		return nil, fmt.Errorf("no slcan preset for bitrate %d: %w", bitrate, canctrl.ErrUnsupported)
	}
	return &Backend{portName: channel, preset: preset}, nil
}

func (sl *Backend) Attach(sink canctrl.EventSink) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.sink = sink
}

// Open the serial port and the CAN channel. Adapters frequently need a
// moment after plug-in before they answer, so the init sequence is retried.
func (sl *Backend) Start() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.started {
		return canctrl.ErrAlreadyInState
	}

	open := 'O'
	if sl.mode.Has(canctrl.ModeListenOnly) {
		open = 'L'
	}
	err := retry.Do(
		func() error { return sl.open(byte(open)) },
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("slcan open failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	sl.cancel = cancel
	sl.group = group
	group.Go(func() error { return sl.receiveLoop(ctx) })
	sl.started = true
	return nil
}

func (sl *Backend) open(openCommand byte) error {
	mode := &serial.Mode{
		BaudRate: serialBaudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(sl.portName, mode)
	if err != nil {
		return err
	}
	port.SetReadTimeout(10 * time.Millisecond)

	// Close a possibly open channel, disable timestamps, select the bitrate
	// preset and open the channel
	commands := []string{"C", "Z0", "S" + string(rune(sl.preset)), string(rune(openCommand))}
	for _, command := range commands {
		if _, err := port.Write([]byte(command + "\r")); err != nil {
			port.Close()
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
	port.ResetInputBuffer()
	sl.port = port
	return nil
}

// Close the CAN channel and the serial port
func (sl *Backend) Stop() error {
	sl.mu.Lock()
	if !sl.started {
		sl.mu.Unlock()
		return canctrl.ErrAlreadyInState
	}
	sl.started = false
	port := sl.port
	cancel := sl.cancel
	group := sl.group
	sl.mu.Unlock()

	port.Write([]byte("C\r"))
	cancel()
	group.Wait()
	return port.Close()
}

func (sl *Backend) Capabilities() canctrl.Mode {
	return canctrl.ModeListenOnly
}

func (sl *Backend) SetMode(mode canctrl.Mode) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.started {
		return canctrl.ErrBusy
	}
	sl.mode = mode
	return nil
}

func (sl *Backend) ConfigureTiming(timing canctrl.Timing) error {
	return canctrl.ErrNotImplemented
}

func (sl *Backend) ConfigureTimingData(timing canctrl.Timing) error {
	return canctrl.ErrNotImplemented
}

// Write the encoded frame to the adapter. The adapter firmware queues
// internally, the completion is synthesized after a successful write.
func (sl *Backend) EnqueueFrame(frame canctrl.Frame, completion func(err error)) error {
	if frame.IsFD() {
		return canctrl.ErrUnsupported
	}
	sl.mu.Lock()
	if !sl.started {
		sl.mu.Unlock()
		return canctrl.ErrNetworkDown
	}
	port := sl.port
	sl.mu.Unlock()

	if _, err := port.Write([]byte(EncodeFrame(&frame))); err != nil {
		return canctrl.ErrIo
	}
	completion(nil)
	return nil
}

// Read serial data and dispatch complete CR terminated records. Adapter
// error indications (BELL bytes) are stripped from the stream and logged.
func (sl *Backend) receiveLoop(ctx context.Context) error {
	buffer := make([]byte, readBufferSize)
	record := make([]byte, readBufferSize)
	incoming := ring.New(4 * readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := sl.port.Read(buffer)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			log.Errorf("[SLCAN] serial read failed: %v", err)
			return err
		}
		for _, b := range buffer[:n] {
			if b == bell {
				log.Warn("[SLCAN] adapter reported an error")
				continue
			}
			incoming.Write([]byte{b})
		}
		for {
			length, ok := incoming.ReadRecord('\r', record)
			if !ok {
				break
			}
			sl.handleRecord(record[:length])
		}
	}
}

func (sl *Backend) handleRecord(record []byte) {
	if len(record) == 0 {
		return
	}
	switch record[0] {
	case 't', 'T', 'r', 'R':
		frame, err := DecodeFrame(record)
		if err != nil {
			log.Warnf("[SLCAN] dropping malformed record %q", record)
			return
		}
		sl.mu.Lock()
		sink := sl.sink
		sl.mu.Unlock()
		if sink != nil {
			sink.OnFrameReceived(frame)
		}
	case 'z', 'Z':
		// Transmission acknowledgments, nothing to do
	default:
		log.Debugf("[SLCAN] ignoring record %q", record)
	}
}

func (sl *Backend) CoreClock() (uint32, error) {
	return 0, canctrl.ErrNotImplemented
}

func (sl *Backend) TimingBounds() canctrl.TimingBounds {
	return canctrl.TimingBounds{}
}

func (sl *Backend) TimingDataBounds() (canctrl.TimingBounds, bool) {
	return canctrl.TimingBounds{}, false
}

func (sl *Backend) BitrateLimits() (uint32, uint32) {
	return 10_000, 1_000_000
}

func (sl *Backend) MaxFilters(extended bool) (int, error) {
	return 0, canctrl.ErrNotImplemented
}

func (sl *Backend) RequestRecovery(timeout time.Duration) error {
	return canctrl.ErrNotImplemented
}
