package dispatch

import (
	"math"
	"time"

	"wifihid-agent/internal/core"
)

// Motion is the jiggler movement pattern.
type Motion string

const (
	MotionSimple  Motion = "simple"
	MotionCircles Motion = "circles"
	MotionRandom  Motion = "random"
)

const (
	DefaultDiameter = 2
	DefaultInterval = 2000 * time.Millisecond

	MinDiameter = 1
	MaxDiameter = 100
	MinInterval = 100 * time.Millisecond
	MaxInterval = 60 * time.Second

	circleSteps     = 36
	circleStepDelay = 5 * time.Millisecond
)

// Jiggler holds the mouse jiggler configuration and timing. It lives for the
// lifetime of its Dispatcher.
type Jiggler struct {
	Enabled  bool
	Motion   Motion
	Diameter int
	Interval time.Duration

	lastFire  time.Time
	direction int
}

// NewJiggler returns a disabled jiggler with the default settings.
func NewJiggler() *Jiggler {
	return &Jiggler{
		Motion:    MotionSimple,
		Diameter:  DefaultDiameter,
		Interval:  DefaultInterval,
		direction: 1,
	}
}

// apply merges the given parameters. Values outside their range keep the
// previous setting; the names of ignored parameters are returned.
func (j *Jiggler) apply(p core.JigglerParams) (ignored []string) {
	switch Motion(p.Motion) {
	case "":
	case MotionSimple, MotionCircles, MotionRandom:
		j.Motion = Motion(p.Motion)
	default:
		ignored = append(ignored, "type="+p.Motion)
	}

	if p.Diameter != 0 {
		if p.Diameter >= MinDiameter && p.Diameter <= MaxDiameter {
			j.Diameter = p.Diameter
		} else {
			ignored = append(ignored, "diameter")
		}
	}

	if p.Interval != 0 {
		if p.Interval >= MinInterval && p.Interval <= MaxInterval {
			j.Interval = p.Interval
		} else {
			ignored = append(ignored, "interval")
		}
	}
	return ignored
}

func (j *Jiggler) due(now time.Time) bool {
	return j.Enabled && now.Sub(j.lastFire) >= j.Interval
}

// Snapshot returns a copy suitable for publishing.
func (j *Jiggler) Snapshot() core.JigglerSnapshot {
	return core.JigglerSnapshot{
		Enabled:  j.Enabled,
		Motion:   string(j.Motion),
		Diameter: j.Diameter,
		Interval: j.Interval,
	}
}

// circlePoint returns the offset for step i of a full sweep in 10 degree steps.
func circlePoint(diameter, i int) (dx, dy int) {
	theta := float64(i) * 2 * math.Pi / circleSteps
	return int(math.Round(float64(diameter) * math.Cos(theta))),
		int(math.Round(float64(diameter) * math.Sin(theta)))
}
