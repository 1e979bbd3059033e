// Package putting decides when the launch monitor should switch between
// full-swing and putting capture.
package putting

import (
	"slices"

	"github.com/life-stream-dev/gspro-osp-relay/internal/device"
)

// PutterClub is the GSPro club code of the putter.
const PutterClub = "PT"

const (
	// Disabled never switches modes automatically.
	Disabled float64 = -1
	// ClubBased switches on the club in play instead of distance.
	ClubBased float64 = 0
)

type Decision int

const (
	NoChange Decision = iota
	SwitchToPutting
	SwitchToNormal
)

func (d Decision) String() string {
	switch d {
	case SwitchToPutting:
		return "SwitchToPutting"
	case SwitchToNormal:
		return "SwitchToNormal"
	default:
		return "NoChange"
	}
}

// Policy is immutable once built.
type Policy struct {
	// Threshold is the distance in yards at or below which putting mode is
	// selected, or one of Disabled / ClubBased.
	Threshold float64
	clubs     []string
}

// NewPolicy copies clubs; an empty set falls back to the putter alone.
func NewPolicy(threshold float64, clubs []string) Policy {
	if len(clubs) == 0 {
		clubs = []string{PutterClub}
	}
	return Policy{Threshold: threshold, clubs: slices.Clone(clubs)}
}

func (p Policy) Clubs() []string {
	return slices.Clone(p.clubs)
}

func (p Policy) IsPuttingClub(club string) bool {
	return slices.Contains(p.clubs, club)
}

// Decide maps the player's club and distance to pin onto a mode change.
func (p Policy) Decide(club string, distanceToTarget float64, current device.ShotMode) Decision {
	switch {
	case p.Threshold == Disabled:
		return NoChange
	case p.Threshold == ClubBased:
		return towards(p.IsPuttingClub(club), current)
	case p.Threshold > 0:
		if distanceToTarget == 0 {
			return NoChange
		}
		return towards(distanceToTarget <= p.Threshold || club == PutterClub, current)
	default:
		return NoChange
	}
}

func towards(putting bool, current device.ShotMode) Decision {
	if putting {
		if current != device.ModePutting {
			return SwitchToPutting
		}
		return NoChange
	}
	if current == device.ModePutting {
		return SwitchToNormal
	}
	return NoChange
}

// Apply performs decision against the monitor.
func Apply(decision Decision, monitor device.Controller) error {
	switch decision {
	case SwitchToPutting:
		return monitor.SetPuttingMode()
	case SwitchToNormal:
		return monitor.SetNormalMode()
	default:
		return nil
	}
}
