package device

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

const feed = `
# warm up
{"event": "connected"}
{"event": "ready"}
{"shot": {"club": {"head_speed": 40}, "launch": {"total_speed": 60, "launch_angle": 12.5}, "spin": {"backspin": 2500}}}
{"wait": "1ms"}
{"event": "not-ready"}
`

func drain(t *testing.T, events <-chan Event) []EventKind {
	t.Helper()
	var kinds []EventKind
	for event := range events {
		kinds = append(kinds, event.Kind)
		if (event.Kind == EventShot) != (event.Shot != nil) {
			t.Errorf("%v event with shot payload %v", event.Kind, event.Shot)
		}
	}
	return kinds
}

func TestReplayPlay(t *testing.T) {
	replay := NewReplay()
	if _, ok := replay.LastShot(); ok {
		t.Fatal("no shot expected before playing")
	}

	if err := replay.Play(context.Background(), strings.NewReader(feed)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	replay.Close()

	want := []EventKind{EventConnected, EventReady, EventShot, EventNotReady}
	if got := drain(t, replay.Events()); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if !replay.IsConnected() || replay.IsReady() {
		t.Errorf("connected = %t, ready = %t", replay.IsConnected(), replay.IsReady())
	}

	shot, ok := replay.LastShot()
	if !ok {
		t.Fatal("shot not recorded")
	}
	if *shot.Club.HeadSpeed != 40 || *shot.Launch.LaunchAngle != 12.5 || *shot.Spin.Backspin != 2500 {
		t.Errorf("shot = %+v", shot)
	}
	if shot.Launch.HorizontalAngle != nil {
		t.Error("unmeasured field should stay nil")
	}
}

func TestReplayRejectsBadLines(t *testing.T) {
	tests := []struct {
		name string
		feed string
	}{
		{"not json", "{\"event\": \"ready\"}\nhello\n"},
		{"unknown event", `{"event": "teleport"}`},
		{"shot as event", `{"event": "shot"}`},
		{"bad wait", `{"wait": "soon"}`},
		{"empty", `{}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := NewReplay().Play(context.Background(), strings.NewReader(test.feed))
			if err == nil || !strings.Contains(err.Error(), "feed line") {
				t.Errorf("Play() = %v, want a feed line error", err)
			}
		})
	}
}

func TestReplayWaitHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewReplay().Play(ctx, strings.NewReader(`{"wait": "1h"}`))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Play() = %v, want context.Canceled", err)
	}
}

func TestReplayCommands(t *testing.T) {
	replay := NewReplay()
	_ = replay.SetPuttingMode()
	if replay.ShotMode() != ModePutting {
		t.Errorf("mode = %v", replay.ShotMode())
	}
	_ = replay.ReadyForNextShot()
	_ = replay.SetNormalMode()
	if replay.ShotMode() != ModeNormal {
		t.Errorf("mode = %v", replay.ShotMode())
	}
	if got := replay.Commands(); !slices.Equal(got, []string{"putting", "ready", "normal"}) {
		t.Errorf("commands = %v", got)
	}

	replay.Close()
	replay.Close()
}

func TestParseEventKind(t *testing.T) {
	for _, kind := range []EventKind{EventShot, EventReady, EventNotReady, EventConnected, EventDisconnected} {
		parsed, ok := ParseEventKind(kind.String())
		if !ok || parsed != kind {
			t.Errorf("ParseEventKind(%q) = %v, %t", kind.String(), parsed, ok)
		}
	}
	if _, ok := ParseEventKind("unknown"); ok {
		t.Error("unknown should not parse")
	}
}
