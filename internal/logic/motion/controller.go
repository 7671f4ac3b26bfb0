package motion

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/logic/kinematics"
)

// ErrInvalidSpeed is returned when a per-tick speed is not strictly positive
// and finite. Speeds are never clamped here; callers that expose a UI range
// clamp before calling SetSpeed.
var ErrInvalidSpeed = errors.New("speed must be > 0 radians per tick")

// State is a snapshot of everything the Controller mutates.
type State struct {
	Current kinematics.JointAngles `json:"current"`
	Target  kinematics.Point2D     `json:"target"`
	Speed   float64                `json:"speed"` // max radians per joint per tick
	Moving  bool                   `json:"moving"`
}

// Params holds the construction parameters of a Controller.
type Params struct {
	Geometry      kinematics.ArmGeometry
	InitialAngles kinematics.JointAngles
	InitialTarget kinematics.Point2D
	Speed         float64
	Elbow         kinematics.Elbow
}

// Controller drives a two-link arm toward a target point, one bounded
// angular step per tick. It is the only owner of its State and is not safe
// for concurrent use.
//
// The controller is idle until SetTarget is called. Each Step re-solves
// inverse kinematics for the current target, so changing the target while
// moving redirects the arm from wherever it is.
type Controller struct {
	geometry kinematics.ArmGeometry
	elbow    kinematics.Elbow
	state    State
}

func NewController(p Params) (*Controller, error) {
	if err := p.Geometry.Validate(); err != nil {
		return nil, err
	}
	if err := validateSpeed(p.Speed); err != nil {
		return nil, err
	}
	return &Controller{
		geometry: p.Geometry,
		elbow:    p.Elbow,
		state: State{
			Current: p.InitialAngles,
			Target:  p.InitialTarget,
			Speed:   p.Speed,
		},
	}, nil
}

func validateSpeed(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w, got %g", ErrInvalidSpeed, v)
	}
	return nil
}

// SetTarget stores p as the new target and starts tracking it.
// The angles do not change until the next Step.
func (c *Controller) SetTarget(p kinematics.Point2D) {
	c.state.Target = p
	c.state.Moving = true
	debug.Target(p.X, p.Y)
	if !kinematics.Reachable(p, c.geometry) {
		debug.Unreachable(p.X, p.Y)
	}
}

// SetSpeed sets the maximum angle change per joint per tick.
// Takes effect on the next Step.
func (c *Controller) SetSpeed(v float64) error {
	if err := validateSpeed(v); err != nil {
		return err
	}
	c.state.Speed = v
	return nil
}

// Step advances both joints toward the inverse kinematics solution for the
// current target and returns the new angles and whether motion continues.
// It is a no-op while idle.
func (c *Controller) Step() (kinematics.JointAngles, bool) {
	if !c.state.Moving {
		return c.state.Current, false
	}

	cur := c.state.Current
	solved := kinematics.SolveWithElbow(c.state.Target, c.geometry, cur, c.elbow)

	var shoulderDone, elbowDone bool
	cur.Shoulder, shoulderDone = approach(cur.Shoulder, solved.Shoulder, c.state.Speed)
	cur.Elbow, elbowDone = approach(cur.Elbow, solved.Elbow, c.state.Speed)

	c.state.Current = cur
	// A joint that snaps early keeps participating until both snap together.
	if shoulderDone && elbowDone {
		c.state.Moving = false
		debug.Live("Target reached: %s", cur)
	} else {
		debug.Angles(cur.Shoulder, cur.Elbow)
	}
	return cur, c.state.Moving
}

// approach moves from toward to by at most step. It snaps exactly onto to
// when the remaining distance is below step.
func approach(from, to, step float64) (float64, bool) {
	diff := to - from
	if math.Abs(diff) < step {
		return to, true
	}
	return from + math.Copysign(step, diff), false
}

// Stop ends tracking and leaves the joints where they are.
// The target is kept so it can still be reported.
func (c *Controller) Stop() {
	if c.state.Moving {
		debug.Live("Motion stopped at %s", c.state.Current)
	}
	c.state.Moving = false
}

// Current returns the current joint angles.
func (c *Controller) Current() kinematics.JointAngles {
	return c.state.Current
}

// Target returns the point being tracked (or last tracked).
func (c *Controller) Target() kinematics.Point2D {
	return c.state.Target
}

func (c *Controller) Speed() float64 {
	return c.state.Speed
}

func (c *Controller) Moving() bool {
	return c.state.Moving
}

func (c *Controller) Geometry() kinematics.ArmGeometry {
	return c.geometry
}

func (c *Controller) Elbow() kinematics.Elbow {
	return c.elbow
}

// State returns a copy of the controller state.
func (c *Controller) State() State {
	return c.state
}

// EndEffector returns the current end effector position in screen coordinates.
func (c *Controller) EndEffector() kinematics.Point2D {
	_, end := kinematics.Forward(c.geometry, c.state.Current)
	return end
}
