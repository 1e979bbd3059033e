// Package message assembles outbound GSPro requests from launch monitor
// state.
package message

import (
	"sync/atomic"

	"github.com/life-stream-dev/gspro-osp-relay/internal/device"
	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
)

// MetersPerSecondToMph converts launch monitor speeds to GSPro units.
const MetersPerSecondToMph = 2.23694

const DefaultDeviceID = "GsPro4Osp"

// ShotCounter is the shot sequence. Only the shot event handler increments
// it; it is never reset.
type ShotCounter struct {
	n atomic.Int64
}

func (c *ShotCounter) Inc() int {
	return int(c.n.Add(1))
}

func (c *ShotCounter) Current() int {
	return int(c.n.Load())
}

type Builder struct {
	deviceID string
	counter  *ShotCounter
}

func NewBuilder(deviceID string, counter *ShotCounter) *Builder {
	if deviceID == "" {
		deviceID = DefaultDeviceID
	}
	if counter == nil {
		counter = &ShotCounter{}
	}
	return &Builder{deviceID: deviceID, counter: counter}
}

func (b *Builder) Counter() *ShotCounter {
	return b.counter
}

func (b *Builder) envelope() gspro.Request {
	return gspro.Request{
		APIVersion: gspro.APIVersion,
		DeviceID:   b.deviceID,
		Units:      gspro.UnitsYards,
		ShotNumber: b.counter.Current(),
	}
}

// Heartbeat announces readiness without shot data.
func (b *Builder) Heartbeat(ready bool) gspro.Request {
	request := b.envelope()
	request.ShotDataOptions = gspro.ShotDataOptions{
		LaunchMonitorIsReady: gspro.Bool(ready),
		IsHeartBeat:          gspro.Bool(true),
	}
	return request
}

func (b *Builder) Status(ready bool) gspro.Request {
	request := b.envelope()
	request.ShotDataOptions = gspro.ShotDataOptions{
		LaunchMonitorIsReady: gspro.Bool(ready),
		IsHeartBeat:          gspro.Bool(false),
	}
	return request
}

func (b *Builder) Shot(shot device.Shot) gspro.Request {
	request := b.envelope()
	request.ClubData = &gspro.ClubData{
		Speed: ToMph(shot.Club.HeadSpeed),
	}
	request.BallData = &gspro.BallData{
		Speed:     ToMph(shot.Launch.TotalSpeed),
		HLA:       copyOf(shot.Launch.HorizontalAngle),
		VLA:       copyOf(shot.Launch.LaunchAngle),
		BackSpin:  copyOf(shot.Spin.Backspin),
		SideSpin:  copyOf(shot.Spin.SideSpin),
		TotalSpin: copyOf(shot.Spin.TotalSpin),
		SpinAxis:  copyOf(shot.Spin.SpinAxis),
	}
	if shot.Launch.TotalSpeed != nil {
		logger.DebugF("Adjusting shot speed from %vm/s to %vmph", *shot.Launch.TotalSpeed, *request.BallData.Speed)
	}
	request.ShotDataOptions = gspro.ShotDataOptions{
		ContainsBallData: true,
		ContainsClubData: true,
		IsHeartBeat:      gspro.Bool(false),
	}
	return request
}

// ToMph converts a speed in m/s, keeping nil as nil.
func ToMph(metersPerSecond *float64) *float64 {
	if metersPerSecond == nil {
		return nil
	}
	return gspro.Float(*metersPerSecond * MetersPerSecondToMph)
}

func copyOf(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return gspro.Float(*v)
}

// Kind names a request for logs and metrics.
func Kind(request gspro.Request) string {
	options := request.ShotDataOptions
	switch {
	case options.ContainsBallData || options.ContainsClubData:
		return "shot"
	case options.IsHeartBeat != nil && *options.IsHeartBeat:
		return "heartbeat"
	default:
		return "status"
	}
}
