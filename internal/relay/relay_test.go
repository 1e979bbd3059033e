package relay

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/life-stream-dev/gspro-osp-relay/internal/device"
	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/message"
)

type recordingSender struct {
	mu       sync.Mutex
	requests []gspro.Request
}

func (s *recordingSender) Send(request gspro.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, request)
}

func (s *recordingSender) Requests() []gspro.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gspro.Request(nil), s.requests...)
}

type panickingSender struct{}

func (panickingSender) Send(gspro.Request) { panic("socket on fire") }

func readyFlag(t *testing.T, request gspro.Request) bool {
	t.Helper()
	options := request.ShotDataOptions
	if options.IsHeartBeat == nil || *options.IsHeartBeat {
		t.Fatalf("expected a status request, got %+v", options)
	}
	if options.LaunchMonitorIsReady == nil {
		t.Fatal("status without ready flag")
	}
	return *options.LaunchMonitorIsReady
}

func TestRunRelaysFeed(t *testing.T) {
	replay := device.NewReplay()
	sender := &recordingSender{}
	relay := New(replay, message.NewBuilder("", nil), sender)

	feed := strings.Join([]string{
		`{"event": "ready"}`,
		`{"event": "connected"}`,
		`{"shot": {"club": {"head_speed": 40}, "launch": {"total_speed": 60}}}`,
		`{"shot": {"launch": {"total_speed": 30}}}`,
		`{"event": "disconnected"}`,
	}, "\n")
	if err := replay.Play(context.Background(), strings.NewReader(feed)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	replay.Close()

	done := make(chan error, 1)
	go func() { done <- relay.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	requests := sender.Requests()
	if len(requests) != 5 {
		t.Fatalf("sent %d requests, want 5", len(requests))
	}
	// Ready arrives before the monitor is connected.
	if readyFlag(t, requests[0]) {
		t.Error("ready while disconnected should report not ready")
	}
	if !readyFlag(t, requests[1]) {
		t.Error("connected and ready should report ready")
	}
	for i, want := range []int{1, 2} {
		shot := requests[2+i]
		if !shot.ShotDataOptions.ContainsBallData || shot.ShotNumber != want {
			t.Errorf("shot %d = number %d, options %+v", i, shot.ShotNumber, shot.ShotDataOptions)
		}
	}
	if readyFlag(t, requests[4]) {
		t.Error("disconnected should report not ready")
	}
}

func TestQueuedShotsKeepTheirOwnData(t *testing.T) {
	replay := device.NewReplay()
	sender := &recordingSender{}
	relay := New(replay, message.NewBuilder("", nil), sender)

	feed := `{"shot": {"launch": {"launch_angle": 11}}}` + "\n" + `{"shot": {"launch": {"launch_angle": 22}}}`
	if err := replay.Play(context.Background(), strings.NewReader(feed)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	replay.Close()
	if err := relay.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	requests := sender.Requests()
	if len(requests) != 2 {
		t.Fatalf("sent %d requests, want 2", len(requests))
	}
	for i, want := range []float64{11, 22} {
		ball := requests[i].BallData
		if ball == nil || ball.VLA == nil || *ball.VLA != want {
			t.Errorf("shot #%d VLA = %v, want %v", i+1, ball, want)
		}
		if requests[i].ShotNumber != i+1 {
			t.Errorf("shot #%d numbered %d", i+1, requests[i].ShotNumber)
		}
	}
}

func TestHandleShotFallsBackToLastShot(t *testing.T) {
	replay := device.NewReplay()
	if err := replay.Play(context.Background(), strings.NewReader(`{"shot": {"launch": {"launch_angle": 9}}}`)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	sender := &recordingSender{}
	New(replay, message.NewBuilder("", nil), sender).HandleShot(nil)

	requests := sender.Requests()
	if len(requests) != 1 || *requests[0].BallData.VLA != 9 {
		t.Errorf("requests = %+v", requests)
	}
}

func TestHandleShotWithoutData(t *testing.T) {
	replay := device.NewReplay()
	sender := &recordingSender{}
	builder := message.NewBuilder("", nil)
	New(replay, builder, sender).HandleShot(nil)

	if len(sender.Requests()) != 0 {
		t.Error("nothing should be sent without shot data")
	}
	if builder.Counter().Current() != 0 {
		t.Error("shot counter advanced without a shot")
	}
}

func TestHandleRecoversFromPanics(t *testing.T) {
	replay := device.NewReplay()
	relay := New(replay, message.NewBuilder("", nil), panickingSender{})

	relay.Handle(device.Event{Kind: device.EventReady})
	relay.HandleStatus(true, true)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	relay := New(device.NewReplay(), message.NewBuilder("", nil), &recordingSender{})
	if err := relay.Run(ctx); err == nil {
		t.Error("Run should report the cancellation")
	}
}
