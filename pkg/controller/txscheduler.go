package controller

import (
	"container/heap"
	"sync"
	"time"

	canctrl "github.com/gocandev/canctrl"
)

// A queued outbound frame. Owned by the scheduler from submission until the
// completion (or the queue-wait deadline) is delivered; delivery happens
// exactly once, either to the callback or to the blocking channel.
type pendingTx struct {
	frame     canctrl.Frame
	key       uint64
	seq       uint64
	callback  canctrl.TxCallback
	userData  any
	done      chan error
	timer     *time.Timer
	index     int
	delivered bool
}

// Arbitration priority key. Lower key wins bus arbitration: lower
// identifier first, data frames before remote requests of the same
// identifier, standard identifiers before extended identifiers sharing the
// same 11 base bits.
func priorityKey(frame *canctrl.Frame) uint64 {
	id := frame.ID & canctrl.ExtIDMask
	if !frame.IsExtended() {
		id = (frame.ID & canctrl.StdIDMask) << 18
	}
	key := uint64(id) << 2
	if frame.IsRemote() {
		key |= 2
	}
	if frame.IsExtended() {
		key |= 1
	}
	return key
}

type txQueue []*pendingTx

func (queue txQueue) Len() int { return len(queue) }

func (queue txQueue) Less(i, j int) bool {
	if queue[i].key != queue[j].key {
		return queue[i].key < queue[j].key
	}
	// Stable tie break, frames of equal priority keep submission order
	return queue[i].seq < queue[j].seq
}

func (queue txQueue) Swap(i, j int) {
	queue[i], queue[j] = queue[j], queue[i]
	queue[i].index = i
	queue[j].index = j
}

func (queue *txQueue) Push(item any) {
	pending := item.(*pendingTx)
	pending.index = len(*queue)
	*queue = append(*queue, pending)
}

func (queue *txQueue) Pop() any {
	old := *queue
	last := len(old) - 1
	pending := old[last]
	old[last] = nil
	pending.index = -1
	*queue = old[:last]
	return pending
}

type enqueueFunc func(frame canctrl.Frame, completion func(err error)) error

// Orders pending transmissions by CAN arbitration priority and hands them to
// the backend one mailbox slot at a time. Completions arrive from the
// backend's non-blocking path, so the lock is only ever held briefly and
// never across a backend call or a callback.
type txScheduler struct {
	mu       sync.Mutex
	queue    txQueue
	slots    int
	inFlight int
	seq      uint64
	enqueue  enqueueFunc
}

func newTxScheduler(slots int, enqueue enqueueFunc) *txScheduler {
	if slots < 1 {
		slots = 1
	}
	return &txScheduler{slots: slots, enqueue: enqueue}
}

// Queue a frame. With a callback the call returns immediately and the
// callback receives the outcome; without one the call blocks until the
// completion arrives or the queue-wait deadline passes. A timeout of zero
// waits forever for a free slot.
func (scheduler *txScheduler) submit(frame canctrl.Frame, timeout time.Duration, callback canctrl.TxCallback, userData any) error {
	pending := &pendingTx{
		frame:    frame,
		key:      priorityKey(&frame),
		callback: callback,
		userData: userData,
	}
	if callback == nil {
		pending.done = make(chan error, 1)
	}

	scheduler.mu.Lock()
	pending.seq = scheduler.seq
	scheduler.seq++
	heap.Push(&scheduler.queue, pending)
	if timeout > 0 {
		pending.timer = time.AfterFunc(timeout, func() { scheduler.expire(pending) })
	}
	scheduler.mu.Unlock()

	scheduler.pump()

	if pending.done != nil {
		return <-pending.done
	}
	return nil
}

// Hand queued frames to the backend while mailbox slots are free
func (scheduler *txScheduler) pump() {
	for {
		scheduler.mu.Lock()
		if scheduler.inFlight >= scheduler.slots || len(scheduler.queue) == 0 {
			scheduler.mu.Unlock()
			return
		}
		pending := heap.Pop(&scheduler.queue).(*pendingTx)
		scheduler.inFlight++
		scheduler.mu.Unlock()

		if err := scheduler.enqueue(pending.frame, func(err error) {
			scheduler.complete(pending, err)
		}); err != nil {
			// Backend rejected the frame, no completion will follow
			scheduler.complete(pending, err)
		}
	}
}

// Completion signal from the backend. A frame abandoned by a timed out
// blocking caller is dropped here instead of being delivered twice.
func (scheduler *txScheduler) complete(pending *pendingTx, err error) {
	scheduler.mu.Lock()
	scheduler.inFlight--
	if pending.delivered {
		scheduler.mu.Unlock()
		scheduler.pump()
		return
	}
	pending.delivered = true
	if pending.timer != nil {
		pending.timer.Stop()
	}
	scheduler.mu.Unlock()

	scheduler.deliver(pending, err)
	scheduler.pump()
}

// Queue-wait deadline passed. Only frames still waiting for a mailbox slot
// are cancelled; a frame already handed to the backend completes through
// the completion path.
func (scheduler *txScheduler) expire(pending *pendingTx) {
	scheduler.mu.Lock()
	if pending.delivered || pending.index < 0 {
		scheduler.mu.Unlock()
		return
	}
	heap.Remove(&scheduler.queue, pending.index)
	pending.delivered = true
	scheduler.mu.Unlock()

	scheduler.deliver(pending, canctrl.ErrTimeout)
}

// Abort every queued frame with the given error, used on stop and bus-off
func (scheduler *txScheduler) flush(err error) {
	scheduler.mu.Lock()
	aborted := make([]*pendingTx, 0, len(scheduler.queue))
	for len(scheduler.queue) > 0 {
		pending := heap.Pop(&scheduler.queue).(*pendingTx)
		if pending.delivered {
			continue
		}
		pending.delivered = true
		if pending.timer != nil {
			pending.timer.Stop()
		}
		aborted = append(aborted, pending)
	}
	scheduler.mu.Unlock()

	for _, pending := range aborted {
		scheduler.deliver(pending, err)
	}
}

func (scheduler *txScheduler) deliver(pending *pendingTx, err error) {
	if pending.done != nil {
		pending.done <- err
		return
	}
	if pending.callback != nil {
		pending.callback(err, pending.userData)
	}
}

func (scheduler *txScheduler) queued() int {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return len(scheduler.queue)
}
