package kinematics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrInvalidGeometry is returned when link lengths are not strictly positive.
var ErrInvalidGeometry = errors.New("invalid arm geometry")

// Point2D is a coordinate in the screen frame: x grows to the right,
// y grows downward.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point2D) vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

func pointFromVec(v r2.Vec) Point2D {
	return Point2D{X: v.X, Y: v.Y}
}

// ArmGeometry describes the fixed shape of a two-link arm.
type ArmGeometry struct {
	BaseX float64 `json:"base_x"`
	BaseY float64 `json:"base_y"`
	Link1 float64 `json:"link1_length"` // base to elbow joint
	Link2 float64 `json:"link2_length"` // elbow joint to end effector
}

// Validate checks that both link lengths are finite and > 0,
// and that the base is a finite point.
func (g ArmGeometry) Validate() error {
	for _, v := range []float64{g.BaseX, g.BaseY, g.Link1, g.Link2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value %g", ErrInvalidGeometry, v)
		}
	}
	if g.Link1 <= 0 {
		return fmt.Errorf("%w: link1 length must be > 0, got %g", ErrInvalidGeometry, g.Link1)
	}
	if g.Link2 <= 0 {
		return fmt.Errorf("%w: link2 length must be > 0, got %g", ErrInvalidGeometry, g.Link2)
	}
	return nil
}

// Base returns the shoulder joint position.
func (g ArmGeometry) Base() Point2D {
	return Point2D{X: g.BaseX, Y: g.BaseY}
}

// MinReach is the inner radius of the reachable annulus, |L1 - L2|.
func (g ArmGeometry) MinReach() float64 {
	return math.Abs(g.Link1 - g.Link2)
}

// MaxReach is the outer radius of the reachable annulus, L1 + L2.
func (g ArmGeometry) MaxReach() float64 {
	return g.Link1 + g.Link2
}

// local converts a screen point to arm-local math coordinates
// (origin at the base, y up).
func (g ArmGeometry) local(p Point2D) r2.Vec {
	d := r2.Sub(p.vec(), g.Base().vec())
	return r2.Vec{X: d.X, Y: -d.Y}
}

// cosElbow is the law of cosines term for the elbow angle.
// Values outside [-1, 1] (or NaN) mean no real solution exists.
func (g ArmGeometry) cosElbow(local r2.Vec) float64 {
	d := r2.Norm(local)
	l1, l2 := g.Link1, g.Link2
	return (d*d - l1*l1 - l2*l2) / (2 * l1 * l2)
}

// JointAngles holds both joint angles in radians, math convention
// (counter-clockwise positive, y up). Elbow is relative to the first link.
type JointAngles struct {
	Shoulder float64 `json:"shoulder"`
	Elbow    float64 `json:"elbow"`
}

// Degrees returns both angles rounded to whole degrees, for display.
func (a JointAngles) Degrees() (shoulder, elbow int) {
	return int(math.Round(toDegrees(a.Shoulder))), int(math.Round(toDegrees(a.Elbow)))
}

func (a JointAngles) String() string {
	s, e := a.Degrees()
	return fmt.Sprintf("shoulder=%d° elbow=%d°", s, e)
}

// FromDegrees builds joint angles from degree values.
func FromDegrees(shoulder, elbow float64) JointAngles {
	return JointAngles{
		Shoulder: shoulder * math.Pi / 180,
		Elbow:    elbow * math.Pi / 180,
	}
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
