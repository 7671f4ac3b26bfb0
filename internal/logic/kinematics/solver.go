package kinematics

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// Elbow selects which of the two inverse kinematics branches is returned.
type Elbow int

const (
	// ElbowDown picks the acos branch: elbow angle in [0, π].
	ElbowDown Elbow = iota
	// ElbowUp mirrors ElbowDown: elbow angle in [-π, 0].
	ElbowUp
)

func (e Elbow) String() string {
	if e == ElbowUp {
		return "up"
	}
	return "down"
}

// ParseElbow parses "up" or "down" (case-insensitive). Empty means down.
func ParseElbow(s string) (Elbow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "down":
		return ElbowDown, nil
	case "up":
		return ElbowUp, nil
	default:
		return ElbowDown, fmt.Errorf("unknown elbow configuration %q (want \"up\" or \"down\")", s)
	}
}

// Solve returns the elbow-down joint angles that place the end effector
// on target. If target lies outside the reachable annulus, fallback is
// returned unchanged.
func Solve(target Point2D, g ArmGeometry, fallback JointAngles) JointAngles {
	return SolveWithElbow(target, g, fallback, ElbowDown)
}

// SolveWithElbow is Solve with an explicit elbow branch.
//
// A target exactly on the base (only reachable when both links have the
// same length) has no defined direction; math.Atan2(0, 0) returns 0 and
// that value is used as is.
func SolveWithElbow(target Point2D, g ArmGeometry, fallback JointAngles, elbow Elbow) JointAngles {
	local := g.local(target)

	cosAngle2 := g.cosElbow(local)
	if math.IsNaN(cosAngle2) || math.Abs(cosAngle2) > 1 {
		return fallback
	}

	angle2 := math.Acos(cosAngle2)
	if elbow == ElbowUp {
		angle2 = -angle2
	}

	angleA := math.Atan2(local.Y, local.X)
	angleB := math.Atan2(g.Link2*math.Sin(angle2), g.Link1+g.Link2*math.Cos(angle2))

	return JointAngles{
		Shoulder: angleA - angleB,
		Elbow:    angle2,
	}
}

// Reachable reports whether target lies in the reachable annulus.
func Reachable(target Point2D, g ArmGeometry) bool {
	c := g.cosElbow(g.local(target))
	return !math.IsNaN(c) && math.Abs(c) <= 1
}

// Forward computes the elbow joint and end effector positions, in screen
// coordinates, for the given joint angles.
func Forward(g ArmGeometry, a JointAngles) (elbowJoint, endEffector Point2D) {
	base := g.Base().vec()

	// Screen y grows downward, hence the negated sine.
	link1 := r2.Vec{
		X: g.Link1 * math.Cos(a.Shoulder),
		Y: -g.Link1 * math.Sin(a.Shoulder),
	}
	total := a.Shoulder + a.Elbow
	link2 := r2.Vec{
		X: g.Link2 * math.Cos(total),
		Y: -g.Link2 * math.Sin(total),
	}

	e := r2.Add(base, link1)
	return pointFromVec(e), pointFromVec(r2.Add(e, link2))
}

// Distance returns the straight-line distance between two points.
func Distance(a, b Point2D) float64 {
	return r2.Norm(r2.Sub(a.vec(), b.vec()))
}
