package kinematics

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

// Same arm as the default configuration.
var testArm = ArmGeometry{BaseX: 300, BaseY: 400, Link1: 150, Link2: 120}

const posTol = 1e-4 // pixels

func assertReaches(t *testing.T, g ArmGeometry, a JointAngles, target Point2D) {
	t.Helper()
	if math.IsNaN(a.Shoulder) || math.IsNaN(a.Elbow) {
		t.Fatalf("solution contains NaN: %+v", a)
	}
	_, end := Forward(g, a)
	if !scalar.EqualWithinAbs(end.X, target.X, posTol) || !scalar.EqualWithinAbs(end.Y, target.Y, posTol) {
		t.Errorf("end effector = (%.6f, %.6f), want (%.6f, %.6f)", end.X, end.Y, target.X, target.Y)
	}
}

func TestSolve_DirectlyAboveBase(t *testing.T) {
	target := Point2D{X: 300, Y: 200}
	fallback := FromDegrees(45, 45)

	got := Solve(target, testArm, fallback)
	if got == fallback {
		t.Fatal("reachable target returned the fallback")
	}
	if got.Elbow < 0 || got.Elbow > math.Pi {
		t.Errorf("elbow = %v, want within [0, π]", got.Elbow)
	}
	assertReaches(t, testArm, got, target)
}

func TestSolve_RoundTripGrid(t *testing.T) {
	checked := 0
	for x := 0.0; x <= 600; x += 15 {
		for y := 100.0; y <= 700; y += 15 {
			target := Point2D{X: x, Y: y}
			d := Distance(target, testArm.Base())
			if d < testArm.MinReach() || d > testArm.MaxReach() {
				continue
			}
			got := Solve(target, testArm, JointAngles{})
			assertReaches(t, testArm, got, target)
			checked++
		}
	}
	if checked == 0 {
		t.Fatal("grid produced no reachable targets")
	}
}

func TestSolve_OuterBoundary(t *testing.T) {
	// Fully stretched straight up: elbow 0, shoulder 90°.
	target := Point2D{X: 300, Y: 400 - 270}
	got := Solve(target, testArm, FromDegrees(10, 10))
	if !scalar.EqualWithinAbs(got.Elbow, 0, 1e-9) {
		t.Errorf("elbow = %v, want 0", got.Elbow)
	}
	if !scalar.EqualWithinAbs(got.Shoulder, math.Pi/2, 1e-9) {
		t.Errorf("shoulder = %v, want π/2", got.Shoulder)
	}
}

func TestSolve_InnerBoundary(t *testing.T) {
	// Folded back on itself: d = L1 - L2 = 30.
	target := Point2D{X: 330, Y: 400}
	got := Solve(target, testArm, JointAngles{})
	if !scalar.EqualWithinAbs(got.Elbow, math.Pi, 1e-9) {
		t.Errorf("elbow = %v, want π", got.Elbow)
	}
	assertReaches(t, testArm, got, target)
}

func TestSolve_UnreachableReturnsFallback(t *testing.T) {
	fallback := JointAngles{Shoulder: 0.7, Elbow: -0.3}
	cases := []struct {
		name   string
		target Point2D
	}{
		{"just_beyond_reach", Point2D{X: 300, Y: 400 + 271}},
		{"far_away", Point2D{X: 5000, Y: -5000}},
		{"inside_inner_radius", Point2D{X: 310, Y: 400}},
		{"on_base", Point2D{X: 300, Y: 400}},
		{"nan", Point2D{X: math.NaN(), Y: 200}},
		{"inf", Point2D{X: math.Inf(1), Y: 200}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Solve(tc.target, testArm, fallback)
			if got != fallback {
				t.Errorf("Solve(%+v) = %+v, want fallback %+v", tc.target, got, fallback)
			}
			if Reachable(tc.target, testArm) {
				t.Errorf("Reachable(%+v) = true, want false", tc.target)
			}
		})
	}
}

func TestSolve_TargetOnBaseEqualLinks(t *testing.T) {
	g := ArmGeometry{BaseX: 0, BaseY: 0, Link1: 100, Link2: 100}
	got := Solve(Point2D{}, g, FromDegrees(1, 2))

	// atan2(0, 0) == 0, so the folded arm points straight down.
	if !scalar.EqualWithinAbs(got.Elbow, math.Pi, 1e-9) {
		t.Errorf("elbow = %v, want π", got.Elbow)
	}
	if !scalar.EqualWithinAbs(got.Shoulder, -math.Pi/2, 1e-9) {
		t.Errorf("shoulder = %v, want -π/2", got.Shoulder)
	}
	assertReaches(t, g, got, Point2D{})
}

func TestSolveWithElbow_MirroredBranch(t *testing.T) {
	target := Point2D{X: 420, Y: 300}
	down := SolveWithElbow(target, testArm, JointAngles{}, ElbowDown)
	up := SolveWithElbow(target, testArm, JointAngles{}, ElbowUp)

	if !scalar.EqualWithinAbs(up.Elbow, -down.Elbow, 1e-12) {
		t.Errorf("up elbow = %v, want %v", up.Elbow, -down.Elbow)
	}
	if scalar.EqualWithinAbs(up.Shoulder, down.Shoulder, 1e-6) {
		t.Error("both branches produced the same shoulder angle")
	}
	assertReaches(t, testArm, down, target)
	assertReaches(t, testArm, up, target)
}

func TestSolve_Deterministic(t *testing.T) {
	target := Point2D{X: 250, Y: 260}
	a := Solve(target, testArm, JointAngles{})
	b := Solve(target, testArm, JointAngles{})
	if a != b {
		t.Errorf("Solve is not deterministic: %+v vs %+v", a, b)
	}
}

func TestForward_ZeroAngles(t *testing.T) {
	elbow, end := Forward(testArm, JointAngles{})
	if elbow != (Point2D{X: 450, Y: 400}) {
		t.Errorf("elbow joint = %+v, want (450, 400)", elbow)
	}
	if end != (Point2D{X: 570, Y: 400}) {
		t.Errorf("end effector = %+v, want (570, 400)", end)
	}
}

func TestForward_ScreenYPointsDown(t *testing.T) {
	// Shoulder at +90° points the first link up the screen (smaller y).
	elbow, _ := Forward(testArm, JointAngles{Shoulder: math.Pi / 2})
	if !scalar.EqualWithinAbs(elbow.Y, 250, 1e-9) {
		t.Errorf("elbow.Y = %v, want 250", elbow.Y)
	}
}

func TestParseElbow(t *testing.T) {
	cases := []struct {
		in      string
		want    Elbow
		wantErr bool
	}{
		{"", ElbowDown, false},
		{"down", ElbowDown, false},
		{"UP", ElbowUp, false},
		{" up ", ElbowUp, false},
		{"sideways", ElbowDown, true},
	}
	for _, tc := range cases {
		got, err := ParseElbow(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseElbow(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseElbow(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestArmGeometry_Validate(t *testing.T) {
	cases := []struct {
		name    string
		g       ArmGeometry
		wantErr bool
	}{
		{"default", testArm, false},
		{"zero_link1", ArmGeometry{Link1: 0, Link2: 1}, true},
		{"negative_link2", ArmGeometry{Link1: 1, Link2: -1}, true},
		{"nan_base", ArmGeometry{BaseX: math.NaN(), Link1: 1, Link2: 1}, true},
		{"inf_link", ArmGeometry{Link1: math.Inf(1), Link2: 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.g.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("error %v does not wrap ErrInvalidGeometry", err)
			}
		})
	}
}

func TestJointAngles_Degrees(t *testing.T) {
	s, e := FromDegrees(45, -90.4).Degrees()
	if s != 45 || e != -90 {
		t.Errorf("Degrees() = (%d, %d), want (45, -90)", s, e)
	}
}
