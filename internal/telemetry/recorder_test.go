package telemetry

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cjeanneret/ArmGo/internal/logic/animation"
	"github.com/cjeanneret/ArmGo/internal/logic/kinematics"
)

func testFrame(tick int, moving bool) animation.Frame {
	return animation.Frame{
		Tick:        tick,
		Angles:      kinematics.FromDegrees(90, -45),
		Target:      kinematics.Point2D{X: 300, Y: 200},
		EndEffector: kinematics.Point2D{X: 303, Y: 204},
		Speed:       0.02,
		Moving:      moving,
	}
}

func TestFromFrame(t *testing.T) {
	rec := FromFrame(testFrame(7, true))
	if rec.Tick != 7 || !rec.Moving {
		t.Errorf("tick/moving = %d/%v", rec.Tick, rec.Moving)
	}
	if rec.ShoulderDeg != 90 || rec.ElbowDeg != -45 {
		t.Errorf("degrees = (%d, %d), want (90, -45)", rec.ShoulderDeg, rec.ElbowDeg)
	}
	if rec.TargetError != 5 {
		t.Errorf("TargetError = %v, want 5", rec.TargetError)
	}
}

func TestRecorder_HeaderWrittenOnce(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriterRecorder(&buf)

	for i := 1; i <= 3; i++ {
		if err := r.Apply(testFrame(i, i < 3)); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if r.Rows() != 3 {
		t.Errorf("Rows() = %d, want 3", r.Rows())
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3 rows:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "tick,shoulder_rad,elbow_rad") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if strings.Count(buf.String(), "tick,") != 1 {
		t.Error("header repeated")
	}

	records, err := ReadAll(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("ReadAll returned %d records, want 3", len(records))
	}
	if records[2].Tick != 3 || records[2].Moving {
		t.Errorf("last record = %+v", records[2])
	}
}

func TestNewRecorder_EmptyPathDisables(t *testing.T) {
	r, err := NewRecorder("")
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatal("expected nil recorder")
	}
	// nil recorder methods are no-ops
	if err := r.Apply(testFrame(1, true)); err != nil {
		t.Errorf("Apply on nil: %v", err)
	}
	if r.Rows() != 0 {
		t.Error("Rows on nil should be 0")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}

func TestNewRecorder_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "ticks.csv")
	r, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := r.Apply(testFrame(1, false)); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].TargetX != 300 {
		t.Errorf("records = %+v", records)
	}
}
