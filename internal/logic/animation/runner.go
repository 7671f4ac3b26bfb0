package animation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/logic/kinematics"
	"github.com/cjeanneret/ArmGo/internal/logic/motion"
)

// DefaultPeriod is the tick period used when none is configured.
const DefaultPeriod = 20 * time.Millisecond

// ErrTickLimit is returned when a single move exceeds Params.MaxTicks.
// The controller is stopped where it is.
var ErrTickLimit = errors.New("tick limit reached")

// Frame is what sinks receive after each tick.
type Frame struct {
	Tick        int                    `json:"tick"`
	Angles      kinematics.JointAngles `json:"angles"`
	Target      kinematics.Point2D     `json:"target"`
	EndEffector kinematics.Point2D     `json:"end_effector"`
	Speed       float64                `json:"speed"`
	Moving      bool                   `json:"moving"`
}

// Sink consumes frames: hardware actuation, recording, streaming.
type Sink interface {
	Apply(Frame) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Frame) error

func (f SinkFunc) Apply(fr Frame) error { return f(fr) }

// Params configures a Runner.
type Params struct {
	Period   time.Duration // tick period; 0 = DefaultPeriod
	MaxTicks int           // ticks allowed per move; 0 = unlimited
}

// Runner is the periodic driver of a motion.Controller. It owns the
// controller: every access goes through the Runner so that targets can be
// set from other goroutines (web handlers) while the tick loop runs.
type Runner struct {
	mu        sync.Mutex
	ctrl      *motion.Controller
	period    time.Duration
	maxTicks  int
	sinks     []Sink
	tick      int // total ticks since start
	moveTicks int // ticks since the last SetTarget
}

func NewRunner(ctrl *motion.Controller, p Params, sinks ...Sink) *Runner {
	period := p.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Runner{
		ctrl:     ctrl,
		period:   period,
		maxTicks: p.MaxTicks,
		sinks:    sinks,
	}
}

// Period returns the tick period.
func (r *Runner) Period() time.Duration {
	return r.period
}

// SetTarget redirects the arm. The next tick performs the first step.
func (r *Runner) SetTarget(p kinematics.Point2D) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctrl.SetTarget(p)
	r.moveTicks = 0
}

// SetSpeed changes the per-tick speed (see motion.Controller.SetSpeed).
func (r *Runner) SetSpeed(v float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl.SetSpeed(v)
}

// Stop halts the arm where it is.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctrl.Stop()
}

// Moving reports whether the controller is tracking a target.
func (r *Runner) Moving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl.Moving()
}

// Geometry returns the arm geometry.
func (r *Runner) Geometry() kinematics.ArmGeometry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl.Geometry()
}

// Snapshot returns the current state as a frame, without stepping.
func (r *Runner) Snapshot() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameLocked()
}

func (r *Runner) frameLocked() Frame {
	st := r.ctrl.State()
	return Frame{
		Tick:        r.tick,
		Angles:      st.Current,
		Target:      st.Target,
		EndEffector: r.ctrl.EndEffector(),
		Speed:       st.Speed,
		Moving:      st.Moving,
	}
}

// Tick performs one controller step if the arm is moving and hands the
// resulting frame to every sink. stepped is false when the arm was idle.
func (r *Runner) Tick() (f Frame, stepped bool, err error) {
	r.mu.Lock()
	if !r.ctrl.Moving() {
		f = r.frameLocked()
		r.mu.Unlock()
		return f, false, nil
	}

	r.ctrl.Step()
	r.tick++
	r.moveTicks++

	var limitErr error
	if r.ctrl.Moving() && r.maxTicks > 0 && r.moveTicks >= r.maxTicks {
		r.ctrl.Stop()
		limitErr = fmt.Errorf("%w: target %+v not reached after %d ticks", ErrTickLimit, r.ctrl.Target(), r.moveTicks)
	}
	f = r.frameLocked()
	r.mu.Unlock()

	// Sinks run outside the lock: stepper moves can take a while and
	// SetTarget must not block on them.
	errs := []error{limitErr}
	for _, s := range r.sinks {
		if err := s.Apply(f); err != nil {
			errs = append(errs, err)
		}
	}
	return f, true, errors.Join(errs...)
}

// RunUntilIdle ticks until the arm stops, ctx is done, or a tick fails.
// It returns the number of ticks that stepped the controller.
func (r *Runner) RunUntilIdle(ctx context.Context) (int, error) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	ticks := 0
	for r.Moving() {
		select {
		case <-ctx.Done():
			return ticks, ctx.Err()
		case <-ticker.C:
		}

		f, stepped, err := r.Tick()
		if stepped {
			ticks++
		}
		if err != nil {
			return ticks, err
		}
		if !f.Moving {
			break
		}
	}
	return ticks, nil
}

// Run ticks until ctx is done. Idle ticks are cheap no-ops, so targets set
// at any time are picked up on the next period. A failing tick stops the
// arm and is logged; the loop keeps running for the next target.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, _, err := r.Tick(); err != nil {
			r.Stop()
			debug.Error(err)
		}
	}
}
