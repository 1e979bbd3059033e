// Package relay forwards launch monitor activity to GSPro: every shot
// becomes a shot request and every readiness change a status request.
package relay

import (
	"context"
	"errors"

	"github.com/life-stream-dev/gspro-osp-relay/internal/device"
	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
	"github.com/life-stream-dev/gspro-osp-relay/internal/message"
)

var errNoShot = errors.New("launch monitor reported a shot without data")

// Sender is satisfied by *connection.Session.
type Sender interface {
	Send(request gspro.Request)
}

// Relay is the only writer of the builder's shot counter.
type Relay struct {
	monitor device.Monitor
	builder *message.Builder
	sender  Sender
}

func New(monitor device.Monitor, builder *message.Builder, sender Sender) *Relay {
	return &Relay{monitor: monitor, builder: builder, sender: sender}
}

// Run handles monitor events until the stream closes or ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	events := r.monitor.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				logger.Debug("Launch monitor event stream closed")
				return nil
			}
			r.Handle(event)
		}
	}
}

func (r *Relay) Handle(event device.Event) {
	switch event.Kind {
	case device.EventShot:
		r.HandleShot(event.Shot)
	case device.EventReady:
		r.HandleStatus(r.monitor.IsConnected(), true)
	case device.EventNotReady:
		r.HandleStatus(r.monitor.IsConnected(), false)
	case device.EventConnected:
		r.HandleStatus(true, r.monitor.IsReady())
	case device.EventDisconnected:
		r.HandleStatus(false, r.monitor.IsReady())
	default:
		logger.DebugF("Ignoring launch monitor event %v", event.Kind)
	}
}

// HandleStatus tells GSPro the monitor is ready only when it is both
// connected and ready.
func (r *Relay) HandleStatus(connected, ready bool) {
	defer func() {
		if err := recover(); err != nil {
			logger.WarnF("Problem with setting ready/connected state\n%v", err)
		}
	}()
	r.sender.Send(r.builder.Status(connected && ready))
}

// HandleShot sends captured, or the monitor's latest shot when the event
// carried no telemetry.
func (r *Relay) HandleShot(captured *device.Shot) {
	defer func() {
		if err := recover(); err != nil {
			logger.WarnF("Failed to process the incoming Shot from the monitor:\n%v", err)
		}
	}()

	var shot device.Shot
	if captured != nil {
		shot = *captured
	} else {
		latest, ok := r.monitor.LastShot()
		if !ok {
			logger.WarnF("Failed to process the incoming Shot from the monitor:\n%v", errNoShot)
			return
		}
		shot = latest
	}
	number := r.builder.Counter().Inc()
	logger.InfoF("Sending shot #%d to GSPro", number)
	r.sender.Send(r.builder.Shot(shot))
}
