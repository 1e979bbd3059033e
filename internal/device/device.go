// Package device describes the launch monitor as the relay sees it: a few
// queries, three commands and a stream of lifecycle events.
package device

type ShotMode int

const (
	ModeNormal ShotMode = iota
	ModePutting
)

func (m ShotMode) String() string {
	if m == ModePutting {
		return "Putting"
	}
	return "Normal"
}

// Shot is raw launch monitor telemetry in m/s, degrees and rpm. Nil fields
// were not measured.
type Shot struct {
	Club   ClubMetrics   `json:"club"`
	Launch LaunchMetrics `json:"launch"`
	Spin   SpinMetrics   `json:"spin"`
}

type ClubMetrics struct {
	HeadSpeed *float64 `json:"head_speed,omitempty"`
}

type LaunchMetrics struct {
	HorizontalAngle *float64 `json:"horizontal_angle,omitempty"`
	LaunchAngle     *float64 `json:"launch_angle,omitempty"`
	TotalSpeed      *float64 `json:"total_speed,omitempty"`
}

type SpinMetrics struct {
	Backspin  *float64 `json:"backspin,omitempty"`
	SideSpin  *float64 `json:"side_spin,omitempty"`
	TotalSpin *float64 `json:"total_spin,omitempty"`
	SpinAxis  *float64 `json:"spin_axis,omitempty"`
}

type EventKind int

const (
	EventShot EventKind = iota + 1
	EventReady
	EventNotReady
	EventConnected
	EventDisconnected
)

var eventKindMap = map[EventKind]string{
	EventShot:         "shot",
	EventReady:        "ready",
	EventNotReady:     "not-ready",
	EventConnected:    "connected",
	EventDisconnected: "disconnected",
}

func (k EventKind) String() string {
	if name, ok := eventKindMap[k]; ok {
		return name
	}
	return "unknown"
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(name string) (EventKind, bool) {
	for kind, n := range eventKindMap {
		if n == name {
			return kind, true
		}
	}
	return 0, false
}

type Event struct {
	Kind EventKind
	// Shot is the telemetry of an EventShot, captured when the shot happened.
	Shot *Shot
}

// Monitor is the host launch monitor API consumed by the relay.
type Monitor interface {
	IsReady() bool
	IsConnected() bool
	ShotMode() ShotMode
	// LastShot returns the most recent shot, false if none was taken yet.
	LastShot() (Shot, bool)

	SetPuttingMode() error
	SetNormalMode() error
	ReadyForNextShot() error

	// Events delivers lifecycle and shot events in order. It is closed when
	// the monitor stops.
	Events() <-chan Event
}

// Controller is the subset of Monitor the protocol state machine drives.
type Controller interface {
	ShotMode() ShotMode
	SetPuttingMode() error
	SetNormalMode() error
	ReadyForNextShot() error
}
