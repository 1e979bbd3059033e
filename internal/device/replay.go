package device

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
	"github.com/life-stream-dev/gspro-osp-relay/internal/utils"
)

const replayEventBuffer = 64

// replayLine is one line of a feed. Exactly one field is expected:
//
//	{"event": "ready"}
//	{"wait": "2s"}
//	{"shot": {"club": {"head_speed": 40}, "launch": {"total_speed": 60}}}
type replayLine struct {
	Event string `json:"event,omitempty"`
	Wait  string `json:"wait,omitempty"`
	Shot  *Shot  `json:"shot,omitempty"`
}

// Replay is a Monitor fed from JSON lines instead of hardware. Mode
// commands are applied to its state and recorded.
type Replay struct {
	mu        sync.Mutex
	ready     bool
	connected bool
	mode      ShotMode
	lastShot  *Shot
	commands  []string

	events    chan Event
	closeOnce sync.Once
}

func NewReplay() *Replay {
	return &Replay{events: make(chan Event, replayEventBuffer)}
}

func (r *Replay) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *Replay) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Replay) ShotMode() ShotMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *Replay) LastShot() (Shot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastShot == nil {
		return Shot{}, false
	}
	return *r.lastShot, true
}

func (r *Replay) SetPuttingMode() error {
	r.command("putting", func() { r.mode = ModePutting })
	logger.Info("Launch monitor switched to putting mode")
	return nil
}

func (r *Replay) SetNormalMode() error {
	r.command("normal", func() { r.mode = ModeNormal })
	logger.Info("Launch monitor switched to normal mode")
	return nil
}

func (r *Replay) ReadyForNextShot() error {
	r.command("ready", nil)
	logger.Debug("Launch monitor armed for the next shot")
	return nil
}

func (r *Replay) command(name string, apply func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, name)
	if apply != nil {
		apply()
	}
}

// Commands returns the mode commands received so far, oldest first.
func (r *Replay) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.commands)
}

func (r *Replay) Events() <-chan Event {
	return r.events
}

// Close ends the event stream.
func (r *Replay) Close() {
	r.closeOnce.Do(func() {
		close(r.events)
	})
}

// Play reads feed line by line until EOF or ctx is cancelled. Blank lines
// and lines starting with # are skipped. A line that cannot be understood
// aborts the replay with its line number.
func (r *Replay) Play(ctx context.Context, feed io.Reader) error {
	scanner := bufio.NewScanner(feed)
	number := 0
	for scanner.Scan() {
		number++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var line replayLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return fmt.Errorf("feed line %d: %w", number, err)
		}
		if err := r.apply(ctx, line); err != nil {
			return fmt.Errorf("feed line %d: %w", number, err)
		}
	}
	return scanner.Err()
}

func (r *Replay) apply(ctx context.Context, line replayLine) error {
	switch {
	case line.Shot != nil:
		shot := *line.Shot
		r.mu.Lock()
		r.lastShot = &shot
		r.mu.Unlock()
		captured := shot
		return r.emit(ctx, Event{Kind: EventShot, Shot: &captured})
	case line.Event != "":
		kind, ok := ParseEventKind(line.Event)
		if !ok || kind == EventShot {
			return fmt.Errorf("unknown event %q", line.Event)
		}
		r.mu.Lock()
		switch kind {
		case EventReady:
			r.ready = true
		case EventNotReady:
			r.ready = false
		case EventConnected:
			r.connected = true
		case EventDisconnected:
			r.connected = false
		}
		r.mu.Unlock()
		return r.emit(ctx, Event{Kind: kind})
	case line.Wait != "":
		delay := utils.ParseStringTime(line.Wait)
		if delay == 0 {
			return fmt.Errorf("invalid wait %q", line.Wait)
		}
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return fmt.Errorf("empty directive")
	}
}

func (r *Replay) emit(ctx context.Context, event Event) error {
	logger.DebugF("Launch monitor event: %v", event.Kind)
	select {
	case r.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
