package main

import (
	"encoding/hex"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	canctrl "github.com/gocandev/canctrl"
	"github.com/gocandev/canctrl/pkg/backend"
	_ "github.com/gocandev/canctrl/pkg/backend/slcan"
	_ "github.com/gocandev/canctrl/pkg/backend/socketcan"
	_ "github.com/gocandev/canctrl/pkg/backend/virtual"
	"github.com/gocandev/canctrl/pkg/config"
	"github.com/gocandev/canctrl/pkg/controller"
	log "github.com/sirupsen/logrus"
)

const sendTimeout = 2 * time.Second

func main() {
	profilePath := flag.String("p", "", "interface profile (ini file)")
	backendName := flag.String("b", "socketcan", "backend: "+strings.Join(backend.Available(), ","))
	channel := flag.String("c", "can0", "channel, e.g. can0 or /dev/ttyUSB0")
	bitrate := flag.Uint("r", 500000, "bitrate in bits/s")
	send := flag.String("send", "", "send a single frame, format id#hexdata")
	extended := flag.Bool("ext", false, "use an extended identifier when sending")
	remote := flag.Bool("rtr", false, "send a remote request")
	filterID := flag.Uint("id", 0, "monitor filter identifier")
	filterMask := flag.Uint("mask", 0, "monitor filter mask (0 accepts everything)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	profile := &config.Profile{Backend: *backendName, Channel: *channel, Bitrate: uint32(*bitrate)}
	if *profilePath != "" {
		loaded, err := config.Load(*profilePath)
		if err != nil {
			log.Fatalf("loading profile failed: %v", err)
		}
		profile = loaded
	}

	dev, err := backend.New(profile.Backend, profile.Channel, profile.Bitrate)
	if err != nil {
		log.Fatalf("creating backend failed: %v", err)
	}
	ctrl, err := controller.NewController(dev)
	if err != nil {
		log.Fatalf("creating controller failed: %v", err)
	}
	if err := profile.Apply(ctrl); err != nil && err != canctrl.ErrUnavailable {
		log.Fatalf("applying profile failed: %v", err)
	}

	ctrl.SetStateChangeCallback(func(state canctrl.State, counters canctrl.ErrorCounters, userData any) {
		log.Infof("state %v (tx errors %d, rx errors %d)", state, counters.Tx, counters.Rx)
	}, nil)

	if err := ctrl.Start(); err != nil {
		log.Fatalf("starting controller failed: %v", err)
	}
	defer ctrl.Stop()

	if *send != "" {
		frame, err := parseFrame(*send, *extended, *remote)
		if err != nil {
			log.Fatalf("malformed frame %q: %v", *send, err)
		}
		if err := ctrl.Send(frame, sendTimeout, nil, nil); err != nil {
			log.Fatalf("send failed: %v", err)
		}
		log.Infof("sent %v", &frame)
		return
	}

	monitor(ctrl, uint32(*filterID), uint32(*filterMask), *extended)
}

func monitor(ctrl *controller.Controller, id uint32, mask uint32, extended bool) {
	filter := canctrl.Filter{ID: id, Mask: mask, Extended: extended}
	_, err := ctrl.AddRxFilter(filter, func(frame canctrl.Frame, userData any) {
		log.Infof("recv %v", &frame)
	}, nil)
	if err != nil {
		log.Fatalf("adding filter failed: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
}

// Parse "123#DEADBEEF" into a frame. The identifier is hex; the payload may
// be empty.
func parseFrame(value string, extended bool, remote bool) (canctrl.Frame, error) {
	parts := strings.SplitN(value, "#", 2)
	id, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return canctrl.Frame{}, canctrl.ErrInvalidArgument
	}
	var data []byte
	if len(parts) == 2 && parts[1] != "" {
		data, err = hex.DecodeString(parts[1])
		if err != nil {
			return canctrl.Frame{}, canctrl.ErrInvalidArgument
		}
	}
	frame := canctrl.NewFrame(uint32(id), data)
	if extended {
		frame = canctrl.NewExtendedFrame(uint32(id), data)
	}
	if remote {
		frame.Flags |= canctrl.FrameRemote
	}
	return frame, nil
}
