package config

import (
	"testing"

	canctrl "github.com/gocandev/canctrl"
	"github.com/gocandev/canctrl/pkg/backend/virtual"
	"github.com/gocandev/canctrl/pkg/controller"
	"github.com/stretchr/testify/assert"
)

func TestLoadBytes(t *testing.T) {
	profile, err := LoadBytes([]byte(`
[interface]
backend = slcan
channel = /dev/ttyUSB0
mode = fd,one-shot

[timing]
bitrate = 500000
sample_point = 875

[timing_data]
bitrate = 2000000
`))
	assert.Nil(t, err)
	assert.Equal(t, "slcan", profile.Backend)
	assert.Equal(t, "/dev/ttyUSB0", profile.Channel)
	assert.Equal(t, canctrl.ModeFD|canctrl.ModeOneShot, profile.Mode)
	assert.EqualValues(t, 500_000, profile.Bitrate)
	assert.EqualValues(t, 875, profile.SamplePoint)
	assert.EqualValues(t, 2_000_000, profile.BitrateData)
	assert.EqualValues(t, 0, profile.SamplePointData)
}

func TestLoadBytesDefaults(t *testing.T) {
	profile, err := LoadBytes([]byte(`
[interface]
backend = virtual
`))
	assert.Nil(t, err)
	assert.Equal(t, canctrl.ModeNormal, profile.Mode)
	assert.EqualValues(t, 0, profile.Bitrate)
}

func TestLoadBytesMalformed(t *testing.T) {
	_, err := LoadBytes([]byte("[interface]\nmode = warp-speed\n"))
	assert.ErrorIs(t, err, canctrl.ErrInvalidArgument)

	_, err = LoadBytes([]byte("[timing]\nbitrate = fast\n"))
	assert.ErrorIs(t, err, canctrl.ErrInvalidArgument)

	_, err = LoadBytes([]byte("[timing]\nsample_point = 1000\n"))
	assert.ErrorIs(t, err, canctrl.ErrInvalidArgument)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	assert.Nil(t, err)
	assert.Equal(t, canctrl.ModeNormal, mode)

	mode, err = ParseMode("loopback, listen-only")
	assert.Nil(t, err)
	assert.Equal(t, canctrl.ModeLoopback|canctrl.ModeListenOnly, mode)

	_, err = ParseMode("bogus")
	assert.ErrorIs(t, err, canctrl.ErrInvalidArgument)
}

func TestProfileApply(t *testing.T) {
	vb, err := virtual.New("", 0)
	assert.Nil(t, err)
	ctrl, err := controller.NewController(vb)
	assert.Nil(t, err)

	profile, err := LoadBytes([]byte(`
[interface]
backend = virtual
mode = loopback

[timing]
bitrate = 500000
sample_point = 875

[timing_data]
bitrate = 4000000
`))
	assert.Nil(t, err)
	assert.Nil(t, profile.Apply(ctrl))
	assert.Equal(t, canctrl.ModeLoopback, ctrl.GetMode())
}
