package protocol

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/life-stream-dev/gspro-osp-relay/internal/connection"
	"github.com/life-stream-dev/gspro-osp-relay/internal/device"
	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/metrics"
	"github.com/life-stream-dev/gspro-osp-relay/internal/putting"
)

type fakeMonitor struct {
	mu       sync.Mutex
	mode     device.ShotMode
	calls    []string
	panicOn  string
	failWith error
}

func (f *fakeMonitor) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if call == f.panicOn {
		panic("monitor exploded")
	}
	f.calls = append(f.calls, call)
	switch call {
	case "putting":
		f.mode = device.ModePutting
	case "normal":
		f.mode = device.ModeNormal
	}
	return f.failWith
}

func (f *fakeMonitor) ShotMode() device.ShotMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "mode" {
		panic("mode unavailable")
	}
	return f.mode
}

func (f *fakeMonitor) SetPuttingMode() error   { return f.record("putting") }
func (f *fakeMonitor) SetNormalMode() error    { return f.record("normal") }
func (f *fakeMonitor) ReadyForNextShot() error { return f.record("ready") }

func (f *fakeMonitor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func playerInfo(club string, distance float64) gspro.Response {
	response := gspro.NewResponse(gspro.CodePlayerInfo, "GSPro Player Information")
	response.Player = &gspro.Player{Club: gspro.String(club), DistanceToTarget: gspro.Float(distance)}
	return response
}

func TestHandlePlayerInfo(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		mode      device.ShotMode
		response  gspro.Response
		want      []string
	}{
		{"club based putter", putting.ClubBased, device.ModeNormal, playerInfo("PT", 12), []string{"putting", "ready"}},
		{"club based driver while putting", putting.ClubBased, device.ModePutting, playerInfo("DR", 400), []string{"normal", "ready"}},
		{"disabled", putting.Disabled, device.ModeNormal, playerInfo("PT", 3), []string{"ready"}},
		{"inside threshold", 10, device.ModeNormal, playerInfo("7I", 8), []string{"putting", "ready"}},
		{"already putting", 10, device.ModePutting, playerInfo("PT", 8), []string{"ready"}},
		{"zero distance", 10, device.ModeNormal, playerInfo("PT", 0), nil},
		{"no player", 10, device.ModeNormal, gspro.NewResponse(gspro.CodePlayerInfo, ""), nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			monitor := &fakeMonitor{mode: test.mode}
			machine := NewMachine(monitor, putting.NewPolicy(test.threshold, []string{"PT"}), nil)
			machine.HandleResponse(test.response)
			if got := monitor.Calls(); !slices.Equal(got, test.want) {
				t.Errorf("calls = %v, want %v", got, test.want)
			}
		})
	}
}

func TestMatchState(t *testing.T) {
	m := metrics.New()
	machine := NewMachine(&fakeMonitor{}, putting.NewPolicy(putting.Disabled, nil), m)

	if machine.InMatch() {
		t.Fatal("new machine should not be in a match")
	}
	machine.HandleResponse(gspro.NewResponse(gspro.CodeReady, gspro.ReadyMessage))
	if !machine.InMatch() {
		t.Fatal("202 should start a match")
	}
	if got := testutil.ToFloat64(m.InMatch); got != 1 {
		t.Errorf("in_match gauge = %v", got)
	}

	machine.HandleResponse(gspro.NewResponse(gspro.CodeRoundEnded, "GSPro Round Ended"))
	if !machine.InMatch() {
		t.Error("203 with other text must not end the match")
	}
	machine.HandleResponse(gspro.NewResponse(gspro.CodeFailure, "boom"))
	machine.HandleResponse(gspro.Response{})
	if !machine.InMatch() {
		t.Error("failure and empty responses must not change the match state")
	}

	machine.HandleResponse(gspro.NewResponse(gspro.CodeRoundEnded, gspro.RoundEndedMessage))
	if machine.InMatch() {
		t.Error("203 round ended should end the match")
	}
	if got := testutil.ToFloat64(m.InMatch); got != 0 {
		t.Errorf("in_match gauge = %v", got)
	}
}

func TestHandleConnected(t *testing.T) {
	monitor := &fakeMonitor{}
	machine := NewMachine(monitor, putting.NewPolicy(putting.Disabled, nil), nil)

	machine.HandleConnected()
	if len(monitor.Calls()) != 0 {
		t.Fatalf("calls outside a match = %v", monitor.Calls())
	}

	machine.HandleResponse(gspro.NewResponse(gspro.CodeReady, gspro.ReadyMessage))
	machine.HandleConnected()
	if got := monitor.Calls(); !slices.Equal(got, []string{"ready"}) {
		t.Errorf("calls = %v, want exactly one ready", got)
	}
}

func TestPanicsAreContained(t *testing.T) {
	monitor := &fakeMonitor{panicOn: "mode"}
	machine := NewMachine(monitor, putting.NewPolicy(putting.ClubBased, nil), nil)

	machine.HandleResponse(playerInfo("PT", 5))
	if got := monitor.Calls(); !slices.Equal(got, []string{"ready"}) {
		t.Errorf("mode failure should still signal ready, calls = %v", got)
	}

	monitor = &fakeMonitor{panicOn: "ready"}
	machine = NewMachine(monitor, putting.NewPolicy(putting.Disabled, nil), nil)
	machine.HandleResponse(playerInfo("PT", 5))
	machine.HandleResponse(gspro.NewResponse(gspro.CodeReady, gspro.ReadyMessage))
	if !machine.InMatch() {
		t.Error("machine stopped processing after a panic")
	}
}

func TestMonitorErrorsAreSwallowed(t *testing.T) {
	monitor := &fakeMonitor{failWith: errors.New("device busy")}
	machine := NewMachine(monitor, putting.NewPolicy(putting.ClubBased, nil), nil)

	machine.HandleResponse(playerInfo("PT", 5))
	if got := monitor.Calls(); !slices.Equal(got, []string{"putting", "ready"}) {
		t.Errorf("calls = %v", got)
	}
}

func TestRunProcessesEventsInOrder(t *testing.T) {
	monitor := &fakeMonitor{}
	machine := NewMachine(monitor, putting.NewPolicy(putting.ClubBased, nil), nil)
	events := make(chan connection.Event, 8)

	events <- connection.Event{Kind: connection.EventResponse, Response: gspro.NewResponse(gspro.CodeReady, gspro.ReadyMessage)}
	events <- connection.Event{Kind: connection.EventDisconnected}
	events <- connection.Event{Kind: connection.EventConnected}
	events <- connection.Event{Kind: connection.EventResponse, Response: playerInfo("PT", 3)}
	close(events)

	done := make(chan error, 1)
	go func() { done <- machine.Run(context.Background(), events) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after events closed")
	}

	if got := monitor.Calls(); !slices.Equal(got, []string{"ready", "putting", "ready"}) {
		t.Errorf("calls = %v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	machine := NewMachine(&fakeMonitor{}, putting.NewPolicy(putting.Disabled, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := machine.Run(ctx, make(chan connection.Event)); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v", err)
	}
}
