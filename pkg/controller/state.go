package controller

import (
	"sync"

	canctrl "github.com/gocandev/canctrl"
	log "github.com/sirupsen/logrus"
)

// Controller state machine. The state is a pure function of the error
// counters reported by the backend, except for stopped (entered/exited only
// by start/stop) and bus-off, which latches until recovery. At most one
// state change callback is registered at a time; setting a new one discards
// the previous registration.
type stateMachine struct {
	mu       sync.Mutex
	started  bool
	busOff   bool
	manual   bool
	counters canctrl.ErrorCounters
	callback canctrl.StateCallback
	userData any
}

func (machine *stateMachine) state() canctrl.State {
	machine.mu.Lock()
	defer machine.mu.Unlock()
	return machine.stateLocked()
}

func (machine *stateMachine) stateLocked() canctrl.State {
	if !machine.started {
		return canctrl.StateStopped
	}
	if machine.busOff {
		return canctrl.StateBusOff
	}
	errors := uint16(machine.counters.Tx)
	if uint16(machine.counters.Rx) > errors {
		errors = uint16(machine.counters.Rx)
	}
	switch {
	case errors < canctrl.ErrorWarningThreshold:
		return canctrl.StateErrorActive
	case errors < canctrl.ErrorPassiveThreshold:
		return canctrl.StateErrorWarning
	default:
		return canctrl.StateErrorPassive
	}
}

func (machine *stateMachine) errorCounters() canctrl.ErrorCounters {
	machine.mu.Lock()
	defer machine.mu.Unlock()
	return machine.counters
}

func (machine *stateMachine) isStarted() bool {
	machine.mu.Lock()
	defer machine.mu.Unlock()
	return machine.started
}

func (machine *stateMachine) setCallback(callback canctrl.StateCallback, userData any) {
	machine.mu.Lock()
	defer machine.mu.Unlock()
	machine.callback = callback
	machine.userData = userData
}

func (machine *stateMachine) onStart(manualRecovery bool) {
	machine.mu.Lock()
	machine.started = true
	machine.busOff = false
	machine.manual = manualRecovery
	machine.counters = canctrl.ErrorCounters{}
	machine.notifyLocked()
}

func (machine *stateMachine) onStop() {
	machine.mu.Lock()
	machine.started = false
	machine.busOff = false
	machine.notifyLocked()
}

// Apply a bus event. Counter values arrive unclamped so that the bus-off
// threshold is representable; stored counters saturate at 255.
func (machine *stateMachine) update(txErrors uint16, rxErrors uint16) canctrl.State {
	machine.mu.Lock()
	previous := machine.stateLocked()
	machine.counters = canctrl.ErrorCounters{Tx: saturate(txErrors), Rx: saturate(rxErrors)}
	if machine.started {
		if txErrors >= canctrl.BusOffThreshold {
			machine.busOff = true
		} else if machine.busOff && !machine.manual && recoveredCounters(txErrors, rxErrors) {
			// The backend completed its recovery sequence and re-armed the
			// controller; intermediate counter reports keep the latch set
			machine.busOff = false
		}
	}
	current := machine.stateLocked()
	if current == previous {
		machine.mu.Unlock()
		return current
	}
	return machine.notifyLocked()
}

// Leave bus-off after a completed manual recovery sequence
func (machine *stateMachine) recovered() {
	machine.mu.Lock()
	if !machine.busOff {
		machine.mu.Unlock()
		return
	}
	machine.busOff = false
	machine.counters = canctrl.ErrorCounters{}
	machine.notifyLocked()
}

// Report the current state to the registered callback. Called with the lock
// held, releases it before invoking the callback.
func (machine *stateMachine) notifyLocked() canctrl.State {
	state := machine.stateLocked()
	counters := machine.counters
	callback := machine.callback
	userData := machine.userData
	machine.mu.Unlock()
	log.Debugf("[CAN] state %v (tx errors %d, rx errors %d)", state, counters.Tx, counters.Rx)
	if callback != nil {
		callback(state, counters, userData)
	}
	return state
}

// A controller leaving bus-off restarts as error-active, so a completed
// recovery sequence reports both counters back below the warning threshold
func recoveredCounters(txErrors uint16, rxErrors uint16) bool {
	return txErrors < canctrl.ErrorWarningThreshold && rxErrors < canctrl.ErrorWarningThreshold
}

func saturate(counter uint16) uint8 {
	if counter > 255 {
		return 255
	}
	return uint8(counter)
}
