package canctrl

// A receive filter. A mask bit set to 0 means the corresponding identifier
// bit is ignored when matching.
type Filter struct {
	ID       uint32
	Mask     uint32
	Extended bool
}

// Filter matching a single standard identifier exactly
func NewFilter(id uint32) Filter {
	return Filter{ID: id & StdIDMask, Mask: StdIDMask}
}

// Filter matching a single extended identifier exactly
func NewExtendedFilter(id uint32) Filter {
	return Filter{ID: id & ExtIDMask, Mask: ExtIDMask, Extended: true}
}

// Check if a frame matches the filter. A frame only ever matches a filter of
// the same identifier width.
func (filter *Filter) Matches(frame *Frame) bool {
	if frame.IsExtended() != filter.Extended {
		return false
	}
	return (frame.ID^filter.ID)&filter.Mask == 0
}
