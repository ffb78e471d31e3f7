package controller

import (
	"sync"

	canctrl "github.com/gocandev/canctrl"
)

// A registered receive filter with its callback
type rxRegistration struct {
	filter   canctrl.Filter
	callback canctrl.RxCallback
	userData any
}

// Fixed capacity filter table. The capacity mirrors the number of filter
// slots reported by the hardware backend; the filter id handed out is the
// slot index. Mutation and dispatch are mutually exclusive, callbacks run
// outside the lock.
type filterTable struct {
	mu    sync.Mutex
	slots []*rxRegistration
}

func newFilterTable(capacity int) *filterTable {
	return &filterTable{slots: make([]*rxRegistration, capacity)}
}

func (table *filterTable) add(filter canctrl.Filter, callback canctrl.RxCallback, userData any) (int, error) {
	if callback == nil {
		return 0, canctrl.ErrInvalidArgument
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	for id, slot := range table.slots {
		if slot == nil {
			table.slots[id] = &rxRegistration{filter: filter, callback: callback, userData: userData}
			return id, nil
		}
	}
	return 0, canctrl.ErrNoSpace
}

func (table *filterTable) remove(filterID int) error {
	table.mu.Lock()
	defer table.mu.Unlock()
	if filterID < 0 || filterID >= len(table.slots) || table.slots[filterID] == nil {
		return canctrl.ErrInvalidArgument
	}
	table.slots[filterID] = nil
	return nil
}

// Invoke the callback of every filter matching the frame. The order in which
// overlapping filters fire is unspecified.
func (table *filterTable) dispatch(frame canctrl.Frame) {
	table.mu.Lock()
	var matched []*rxRegistration
	for _, slot := range table.slots {
		if slot != nil && slot.filter.Matches(&frame) {
			matched = append(matched, slot)
		}
	}
	table.mu.Unlock()
	for _, registration := range matched {
		registration.callback(frame, registration.userData)
	}
}

func (table *filterTable) count() int {
	table.mu.Lock()
	defer table.mu.Unlock()
	registered := 0
	for _, slot := range table.slots {
		if slot != nil {
			registered++
		}
	}
	return registered
}
