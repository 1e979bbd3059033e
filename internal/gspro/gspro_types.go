// Package gspro implements the GSPro Open Connect wire format: request and
// response objects exchanged as back-to-back JSON literals over TCP.
package gspro

import (
	"math"
	"strconv"
	"strings"
)

const (
	APIVersion = "1"
	UnitsYards = "Yards"

	// ReadyMessage is the text GSPro sends with a 202 when a match, round or
	// the device becomes ready.
	ReadyMessage = "GSPro ready"
	// RoundEndedMessage is the only 203 text that ends a match.
	RoundEndedMessage = "GSPro round ended"
)

// StatusCode is the Code field of a GSPro response.
type StatusCode int

const (
	CodeShotReceived StatusCode = 200 // shot accepted
	CodePlayerInfo   StatusCode = 201 // player/club/distance update
	CodeReady        StatusCode = 202 // match, round or device ready
	CodeRoundEnded   StatusCode = 203 // round ended, keyed on message text
	CodeFailure      StatusCode = 500 // first failure code, anything above is a failure too
)

var statusCodeMap = map[StatusCode]string{
	CodeShotReceived: "SHOT_RECEIVED",
	CodePlayerInfo:   "PLAYER_INFO",
	CodeReady:        "READY",
	CodeRoundEnded:   "ROUND_ENDED",
}

func (code StatusCode) String() string {
	if name, ok := statusCodeMap[code]; ok {
		return name
	}
	if code.IsFailure() {
		return "FAILURE(" + strconv.Itoa(int(code)) + ")"
	}
	return "UNKNOWN(" + strconv.Itoa(int(code)) + ")"
}

func (code StatusCode) IsFailure() bool {
	return code >= CodeFailure
}

// UnmarshalJSON accepts integers, integral decimals and numeric strings.
// Anything else decodes as 0, the same as an absent code.
func (code *StatusCode) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || value != math.Trunc(value) || math.Abs(value) > math.MaxInt32 {
		*code = 0
		return nil
	}
	*code = StatusCode(value)
	return nil
}

// Request is the single outbound envelope used for heartbeats, status
// updates and shots.
type Request struct {
	APIVersion      string          `json:"APIversion"`
	DeviceID        string          `json:"DeviceID"`
	Units           string          `json:"Units"`
	ShotNumber      int             `json:"ShotNumber"`
	BallData        *BallData       `json:"BallData,omitempty"`
	ClubData        *ClubData       `json:"ClubData,omitempty"`
	ShotDataOptions ShotDataOptions `json:"ShotDataOptions"`
}

// BallData values are mph, degrees and rpm.
type BallData struct {
	Speed         *float64 `json:"Speed,omitempty"`
	SpinAxis      *float64 `json:"SpinAxis,omitempty"`
	TotalSpin     *float64 `json:"TotalSpin,omitempty"`
	BackSpin      *float64 `json:"BackSpin,omitempty"` // required if TotalSpin missing
	SideSpin      *float64 `json:"SideSpin,omitempty"` // required if TotalSpin missing
	HLA           *float64 `json:"HLA,omitempty"`
	VLA           *float64 `json:"VLA,omitempty"`
	CarryDistance *float64 `json:"CarryDistance,omitempty"`
}

type ClubData struct {
	Speed                *float64 `json:"Speed,omitempty"`
	AngleOfAttack        *float64 `json:"AngleOfAttack,omitempty"`
	FaceToTarget         *float64 `json:"FaceToTarget,omitempty"`
	Lie                  *float64 `json:"Lie,omitempty"`
	Loft                 *float64 `json:"Loft,omitempty"`
	Path                 *float64 `json:"Path,omitempty"`
	SpeedAtImpact        *float64 `json:"SpeedAtImpact,omitempty"`
	VerticalFaceImpact   *float64 `json:"VerticalFaceImpact,omitempty"`
	HorizontalFaceImpact *float64 `json:"HorizontalFaceImpact,omitempty"`
	ClosureRate          *float64 `json:"ClosureRate,omitempty"`
}

type ShotDataOptions struct {
	ContainsBallData          bool  `json:"ContainsBallData"`
	ContainsClubData          bool  `json:"ContainsClubData"`
	LaunchMonitorIsReady      *bool `json:"LaunchMonitorIsReady,omitempty"`
	LaunchMonitorBallDetected *bool `json:"LaunchMonitorBallDetected,omitempty"`
	IsHeartBeat               *bool `json:"IsHeartBeat,omitempty"`
}

// Response is one decoded GSPro reply. Nil fields were absent or null on
// the wire.
type Response struct {
	Code    *StatusCode `json:"Code"`
	Message *string     `json:"Message"`
	Player  *Player     `json:"Player"`
}

type Player struct {
	Handed           *string  `json:"Handed"`
	Club             *string  `json:"Club"`
	DistanceToTarget *float64 `json:"DistanceToTarget"`
	Surface          *string  `json:"Surface"`
}

// StatusCode returns the response code, 0 when absent or unparseable.
func (r Response) StatusCode() StatusCode {
	if r.Code == nil {
		return 0
	}
	return *r.Code
}

func (r Response) Text() string {
	if r.Message == nil {
		return ""
	}
	return *r.Message
}

// Club returns the player's club code, "" when absent.
func (r Response) Club() string {
	if r.Player == nil || r.Player.Club == nil {
		return ""
	}
	return *r.Player.Club
}

// DistanceToTarget returns the distance in yards, 0 when absent.
func (r Response) DistanceToTarget() float64 {
	if r.Player == nil || r.Player.DistanceToTarget == nil {
		return 0
	}
	return *r.Player.DistanceToTarget
}

// NewResponse builds a response with the given code and message, as if it
// had been read from the wire.
func NewResponse(code StatusCode, message string) Response {
	return Response{Code: &code, Message: &message}
}

func Float(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }

func String(v string) *string { return &v }
