// Package config loads CAN interface profiles from ini files and applies
// them to a controller. A profile looks like:
//
//	[interface]
//	backend = slcan
//	channel = /dev/ttyUSB0
//	mode = fd,one-shot
//
//	[timing]
//	bitrate = 500000
//	sample_point = 875
//
//	[timing_data]
//	bitrate = 2000000
//	sample_point = 750
package config

import (
	"fmt"
	"strings"

	canctrl "github.com/gocandev/canctrl"
	"github.com/gocandev/canctrl/pkg/controller"
	"gopkg.in/ini.v1"
)

type Profile struct {
	Backend string
	Channel string
	Mode    canctrl.Mode

	Bitrate     uint32
	SamplePoint uint16

	BitrateData     uint32
	SamplePointData uint16
}

var modeFlags = map[string]canctrl.Mode{
	"loopback":        canctrl.ModeLoopback,
	"listen-only":     canctrl.ModeListenOnly,
	"fd":              canctrl.ModeFD,
	"one-shot":        canctrl.ModeOneShot,
	"triple-sampling": canctrl.ModeTripleSampling,
	"manual-recovery": canctrl.ModeManualRecovery,
}

// Load a profile from an ini file path
func Load(path string) (*Profile, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return parse(file)
}

// Load a profile from raw ini content
func LoadBytes(content []byte) (*Profile, error) {
	file, err := ini.Load(content)
	if err != nil {
		return nil, err
	}
	return parse(file)
}

func parse(file *ini.File) (*Profile, error) {
	profile := &Profile{}

	iface := file.Section("interface")
	profile.Backend = iface.Key("backend").String()
	profile.Channel = iface.Key("channel").String()
	mode, err := ParseMode(iface.Key("mode").String())
	if err != nil {
		return nil, err
	}
	profile.Mode = mode

	timing := file.Section("timing")
	bitrate, err := timing.Key("bitrate").Uint()
	if err != nil && timing.HasKey("bitrate") {
		return nil, fmt.Errorf("malformed bitrate: %w", canctrl.ErrInvalidArgument)
	}
	profile.Bitrate = uint32(bitrate)
	samplePoint, err := timing.Key("sample_point").Uint()
	if err != nil && timing.HasKey("sample_point") {
		return nil, fmt.Errorf("malformed sample_point: %w", canctrl.ErrInvalidArgument)
	}
	if samplePoint >= 1000 {
		return nil, fmt.Errorf("sample_point %d out of range: %w", samplePoint, canctrl.ErrInvalidArgument)
	}
	profile.SamplePoint = uint16(samplePoint)

	timingData := file.Section("timing_data")
	bitrateData, err := timingData.Key("bitrate").Uint()
	if err != nil && timingData.HasKey("bitrate") {
		return nil, fmt.Errorf("malformed data bitrate: %w", canctrl.ErrInvalidArgument)
	}
	profile.BitrateData = uint32(bitrateData)
	samplePointData, err := timingData.Key("sample_point").Uint()
	if err != nil && timingData.HasKey("sample_point") {
		return nil, fmt.Errorf("malformed data sample_point: %w", canctrl.ErrInvalidArgument)
	}
	profile.SamplePointData = uint16(samplePointData)

	return profile, nil
}

// ParseMode converts a comma separated flag list ("fd,one-shot") into mode
// flags. An empty string is normal mode.
func ParseMode(value string) (canctrl.Mode, error) {
	mode := canctrl.ModeNormal
	if value == "" || value == "normal" {
		return mode, nil
	}
	for _, name := range strings.Split(value, ",") {
		flag, ok := modeFlags[strings.TrimSpace(name)]
		if !ok {
			return 0, fmt.Errorf("unknown mode flag %q: %w", name, canctrl.ErrInvalidArgument)
		}
		mode |= flag
	}
	return mode, nil
}

// Apply the profile to a stopped controller: mode first, then arbitration
// and (if present) data phase timing.
func (profile *Profile) Apply(ctrl *controller.Controller) error {
	if err := ctrl.SetMode(profile.Mode); err != nil {
		return err
	}
	if profile.Bitrate != 0 {
		if profile.SamplePoint != 0 {
			params, _, err := ctrl.CalcTiming(profile.Bitrate, profile.SamplePoint)
			if err != nil {
				return err
			}
			if err := ctrl.SetTiming(params); err != nil {
				return err
			}
		} else if err := ctrl.SetBitrate(profile.Bitrate); err != nil {
			return err
		}
	}
	if profile.BitrateData != 0 {
		if profile.SamplePointData != 0 {
			params, _, err := ctrl.CalcTimingData(profile.BitrateData, profile.SamplePointData)
			if err != nil {
				return err
			}
			if err := ctrl.SetTimingData(params); err != nil {
				return err
			}
		} else if err := ctrl.SetBitrateData(profile.BitrateData); err != nil {
			return err
		}
	}
	return nil
}
