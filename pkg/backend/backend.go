// Package backend holds the registry of concrete hardware backends.
// Backends register themselves from an init() function of their package,
// importing a backend package for side effects makes it available by name.
package backend

import (
	"fmt"
	"sort"

	canctrl "github.com/gocandev/canctrl"
)

type NewBackendFunc func(channel string, bitrate uint32) (canctrl.Backend, error)

var registry = make(map[string]NewBackendFunc)

// Register a backend constructor under a name. This should be called inside
// an init() function of the backend package.
func Register(name string, constructor NewBackendFunc) {
	registry[name] = constructor
}

// Create a backend by registered name. The bitrate is a hint for backends
// that cannot derive it from timing parameters (e.g. slcan presets);
// backends that can are free to ignore it.
func New(name string, channel string, bitrate uint32) (canctrl.Backend, error) {
	constructor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unsupported backend: %v", name)
	}
	return constructor(channel, bitrate)
}

// Names of all registered backends
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
