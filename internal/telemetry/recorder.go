package telemetry

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/cjeanneret/ArmGo/internal/logic/animation"
)

// Record is one CSV row per controller tick.
type Record struct {
	Tick        int     `csv:"tick"`
	ShoulderRad float64 `csv:"shoulder_rad"`
	ElbowRad    float64 `csv:"elbow_rad"`
	ShoulderDeg int     `csv:"shoulder_deg"`
	ElbowDeg    int     `csv:"elbow_deg"`
	EndX        float64 `csv:"end_x"`
	EndY        float64 `csv:"end_y"`
	TargetX     float64 `csv:"target_x"`
	TargetY     float64 `csv:"target_y"`
	TargetError float64 `csv:"target_error"` // end effector to target distance
	Speed       float64 `csv:"speed"`
	Moving      bool    `csv:"moving"`
}

// FromFrame converts an animation frame to a CSV record.
func FromFrame(f animation.Frame) Record {
	sd, ed := f.Angles.Degrees()
	return Record{
		Tick:        f.Tick,
		ShoulderRad: f.Angles.Shoulder,
		ElbowRad:    f.Angles.Elbow,
		ShoulderDeg: sd,
		ElbowDeg:    ed,
		EndX:        f.EndEffector.X,
		EndY:        f.EndEffector.Y,
		TargetX:     f.Target.X,
		TargetY:     f.Target.Y,
		TargetError: math.Hypot(f.EndEffector.X-f.Target.X, f.EndEffector.Y-f.Target.Y),
		Speed:       f.Speed,
		Moving:      f.Moving,
	}
}

// Recorder writes frames to a CSV file. A nil *Recorder is valid and
// discards everything (recording disabled).
type Recorder struct {
	mu            sync.Mutex
	w             io.Writer
	closer        io.Closer
	headerWritten bool
	rows          int
}

// NewRecorder creates the CSV file at path (and its parent directory).
// Returns nil if path is empty.
func NewRecorder(path string) (*Recorder, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating telemetry directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	return &Recorder{w: f, closer: f}, nil
}

// NewWriterRecorder records to an arbitrary writer.
func NewWriterRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// Apply implements animation.Sink.
func (r *Recorder) Apply(f animation.Frame) error {
	return r.Write(FromFrame(f))
}

// Write appends one record.
func (r *Recorder) Write(rec Record) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	records := []Record{rec}
	if !r.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, r.w); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		r.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, r.w); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
	}
	r.rows++
	return nil
}

// Rows returns the number of records written.
func (r *Recorder) Rows() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Close closes the underlying file, if the recorder owns one.
func (r *Recorder) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ReadAll parses a CSV produced by a Recorder.
func ReadAll(rd io.Reader) ([]Record, error) {
	var records []Record
	if err := gocsv.Unmarshal(rd, &records); err != nil {
		return nil, fmt.Errorf("reading telemetry: %w", err)
	}
	return records, nil
}
