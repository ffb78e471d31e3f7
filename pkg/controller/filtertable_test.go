package controller

import (
	"testing"

	canctrl "github.com/gocandev/canctrl"
	"github.com/stretchr/testify/assert"
)

func TestFilterTableAddRemove(t *testing.T) {
	table := newFilterTable(2)
	callback := func(frame canctrl.Frame, userData any) {}

	first, err := table.add(canctrl.NewFilter(0x100), callback, nil)
	assert.Nil(t, err)
	second, err := table.add(canctrl.NewFilter(0x200), callback, nil)
	assert.Nil(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, table.count())

	// Table is full, existing registrations are untouched
	_, err = table.add(canctrl.NewFilter(0x300), callback, nil)
	assert.Equal(t, canctrl.ErrNoSpace, err)
	assert.Equal(t, 2, table.count())

	// A freed slot is handed out again
	assert.Nil(t, table.remove(first))
	reused, err := table.add(canctrl.NewFilter(0x300), callback, nil)
	assert.Nil(t, err)
	assert.Equal(t, first, reused)

	assert.Equal(t, canctrl.ErrInvalidArgument, table.remove(-1))
	assert.Equal(t, canctrl.ErrInvalidArgument, table.remove(2))
	assert.Nil(t, table.remove(second))
	assert.Equal(t, canctrl.ErrInvalidArgument, table.remove(second))
}

func TestFilterTableNilCallback(t *testing.T) {
	table := newFilterTable(2)
	_, err := table.add(canctrl.NewFilter(0x100), nil, nil)
	assert.Equal(t, canctrl.ErrInvalidArgument, err)
}

func TestFilterTableDispatch(t *testing.T) {
	table := newFilterTable(4)
	hits := map[string]int{}
	record := func(name string) canctrl.RxCallback {
		return func(frame canctrl.Frame, userData any) { hits[name]++ }
	}

	_, err := table.add(canctrl.NewFilter(0x123), record("exact"), nil)
	assert.Nil(t, err)
	_, err = table.add(canctrl.Filter{ID: 0x120, Mask: 0x7F0}, record("range"), nil)
	assert.Nil(t, err)
	_, err = table.add(canctrl.NewFilter(0x456), record("other"), nil)
	assert.Nil(t, err)

	// Overlapping filters each fire once per frame
	table.dispatch(canctrl.NewFrame(0x123, nil))
	assert.Equal(t, 1, hits["exact"])
	assert.Equal(t, 1, hits["range"])
	assert.Equal(t, 0, hits["other"])

	table.dispatch(canctrl.NewFrame(0x12F, nil))
	assert.Equal(t, 1, hits["exact"])
	assert.Equal(t, 2, hits["range"])

	// No match, nothing fires
	table.dispatch(canctrl.NewFrame(0x700, nil))
	assert.Equal(t, 1, hits["exact"])
	assert.Equal(t, 2, hits["range"])
	assert.Equal(t, 0, hits["other"])
}
