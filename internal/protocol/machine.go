// Package protocol interprets GSPro responses: it tracks whether a match is
// in progress and drives the launch monitor's shot mode and readiness.
package protocol

import (
	"context"
	"sync/atomic"

	"github.com/life-stream-dev/gspro-osp-relay/internal/connection"
	"github.com/life-stream-dev/gspro-osp-relay/internal/device"
	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
	"github.com/life-stream-dev/gspro-osp-relay/internal/metrics"
	"github.com/life-stream-dev/gspro-osp-relay/internal/putting"
)

// Machine is the only writer of the in-match flag.
type Machine struct {
	monitor device.Controller
	policy  putting.Policy
	metrics *metrics.Metrics

	inMatch atomic.Bool
}

func NewMachine(monitor device.Controller, policy putting.Policy, m *metrics.Metrics) *Machine {
	if m == nil {
		m = metrics.New()
	}
	return &Machine{
		monitor: monitor,
		policy:  policy,
		metrics: m,
	}
}

func (m *Machine) InMatch() bool {
	return m.inMatch.Load()
}

func (m *Machine) setInMatch(inMatch bool) {
	if m.inMatch.Swap(inMatch) != inMatch {
		logger.DebugF("Match in progress: %t", inMatch)
	}
	m.metrics.SetInMatch(inMatch)
}

// Run consumes session events until events is closed or ctx is cancelled.
func (m *Machine) Run(ctx context.Context, events <-chan connection.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			m.Handle(event)
		}
	}
}

func (m *Machine) Handle(event connection.Event) {
	switch event.Kind {
	case connection.EventConnected:
		m.HandleConnected()
	case connection.EventResponse:
		m.HandleResponse(event.Response)
	case connection.EventDisconnected:
		logger.Debug("GSPro session closed")
	case connection.EventGivenUp:
		logger.Debug("GSPro session gave up reconnecting")
	}
}

// HandleResponse applies one response. Failures, panics included, are
// logged and swallowed so the next response is still processed.
func (m *Machine) HandleResponse(response gspro.Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.DebugF("Failed when processing response:\n%v", r)
		}
	}()

	code := response.StatusCode()
	switch {
	case code == gspro.CodePlayerInfo:
		m.handlePlayer(response)
	case code == gspro.CodeReady:
		m.setInMatch(true)
	case code == gspro.CodeRoundEnded:
		if response.Text() == gspro.RoundEndedMessage {
			m.setInMatch(false)
		}
	case code.IsFailure():
		logger.WarnF("Received a failure response from GSPro:\nCode: %d\nMessage: %s", code, response.Text())
	default:
		logger.DebugF("Ignoring GSPro response %v", code)
	}
}

func (m *Machine) handlePlayer(response gspro.Response) {
	distance := response.DistanceToTarget()
	if distance == 0 {
		return
	}
	m.updateShotMode(response.Club(), distance)
	if err := m.monitor.ReadyForNextShot(); err != nil {
		logger.DebugF("Failed to signal ready for next shot: %v", err)
	}
}

func (m *Machine) updateShotMode(club string, distance float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.DebugF("Calculate putting mode failed:\n%v", r)
		}
	}()

	current := m.monitor.ShotMode()
	decision := m.policy.Decide(club, distance, current)
	if decision == putting.NoChange {
		return
	}
	logger.InfoF("Club %s at %.1f yards, %v", club, distance, decision)
	if err := putting.Apply(decision, m.monitor); err != nil {
		logger.DebugF("Calculate putting mode failed:\n%v", err)
	}
}

// HandleConnected re-arms the monitor when the socket came back mid-match.
func (m *Machine) HandleConnected() {
	if !m.InMatch() {
		return
	}
	if err := m.monitor.ReadyForNextShot(); err != nil {
		logger.DebugF("Failed to signal ready for next shot: %v", err)
	}
}
