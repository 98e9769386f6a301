package observer

import "time"

// Event is a threshold transition observed during the rise phase.
type Event int

const (
	EventNone Event = iota
	// EventReached fires the first time the write rate reaches the floor.
	EventReached
	// EventDropped fires when the rate falls back below the floor before the
	// rise phase ends. The run never recovers from it.
	EventDropped
)

// Verdict is the outcome of one gate observation.
type Verdict struct {
	Valid   bool
	Event   Event
	Waiting bool
	Fatal   bool
}

// Gate decides whether the write rate keeps the run valid. The floor has to be
// reached within the first reach seconds of the run period and held from then on.
type Gate struct {
	floor  float64
	reach  float64
	passes int
	valid  bool
	primed bool
}

// NewGate returns a gate with the given write rate floor; floor <= 0 disables it.
func NewGate(floor float64, runPeriod time.Duration, reachFraction float64) *Gate {
	return &Gate{
		floor: floor,
		reach: runPeriod.Seconds() * reachFraction,
	}
}

// Enabled reports whether a floor is configured.
func (g *Gate) Enabled() bool {
	return g.floor > 0
}

// ReachSeconds is the integral deadline for first reaching the floor.
func (g *Gate) ReachSeconds() int64 {
	return int64(g.reach)
}

// Observe feeds the write rate averaged over the first seconds of the run.
func (g *Gate) Observe(seconds int64, rate float64) Verdict {
	if !g.Enabled() {
		if !g.primed {
			g.valid = true
			g.primed = true
		}
		return Verdict{Valid: g.valid}
	}

	var v Verdict
	if float64(seconds) < g.reach {
		if rate >= g.floor && g.passes == 0 {
			g.passes++
			g.valid = true
			v.Event = EventReached
		}
		if rate < g.floor && g.passes == 1 {
			g.passes++
			g.valid = false
			v.Event = EventDropped
		}
	} else if g.passes != 1 || rate < g.floor {
		g.valid = false
	}

	v.Valid = g.valid
	if !g.valid {
		if seconds <= g.ReachSeconds() && g.passes <= 1 {
			v.Waiting = true
		} else {
			v.Fatal = true
		}
	}
	return v
}
