package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/logic/animation"
	"github.com/cjeanneret/ArmGo/internal/logic/kinematics"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Arm is what the handlers drive. *animation.Runner implements it.
type Arm interface {
	SetTarget(p kinematics.Point2D)
	SetSpeed(v float64) error
	Stop()
	Snapshot() animation.Frame
}

// ViewConfig is served by GET /config so the page can draw the arm and
// bound its speed slider.
type ViewConfig struct {
	Geometry kinematics.ArmGeometry `json:"geometry"`
	Elbow    string                 `json:"elbow"`
	MinSpeed float64                `json:"min_speed"`
	MaxSpeed float64                `json:"max_speed"`
	TickMs   int                    `json:"tick_ms"`
}

// clampSpeed bounds v to the slider range.
func (c ViewConfig) clampSpeed(v float64) float64 {
	return math.Min(math.Max(v, c.MinSpeed), c.MaxSpeed)
}

// TargetRequest is the body of POST /target. Pointers tell a missing
// coordinate apart from zero.
type TargetRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// ValidateTarget checks that both coordinates are present and finite.
func ValidateTarget(req TargetRequest) (kinematics.Point2D, error) {
	if req.X == nil || req.Y == nil {
		return kinematics.Point2D{}, errors.New("x and y are required")
	}
	p := kinematics.Point2D{X: *req.X, Y: *req.Y}
	if !finite(p.X) || !finite(p.Y) {
		return kinematics.Point2D{}, fmt.Errorf("target (%v, %v) must be finite", p.X, p.Y)
	}
	return p, nil
}

// SpeedRequest is the body of POST /speed.
type SpeedRequest struct {
	Speed *float64 `json:"speed"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Arm         Arm
	Broadcaster *StatusBroadcaster
	Frames      *FrameBroadcaster
	View        ViewConfig
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If arm is nil, the control endpoints return 503 Service Unavailable.
func NewHandlers(arm Arm, broadcaster *StatusBroadcaster, frames *FrameBroadcaster, view ViewConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Arm:         arm,
		Broadcaster: broadcaster,
		Frames:      frames,
		View:        view,
		staticFS:    staticFS,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handlers) requireArm(w http.ResponseWriter) bool {
	if h.Arm == nil {
		http.Error(w, "arm not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// HandleConfig returns the view configuration as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.View)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState handles GET /state.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if !h.requireArm(w) {
		return
	}
	writeJSON(w, http.StatusOK, newFrameMessage(h.Arm.Snapshot()))
}

// HandleTarget handles POST /target.
func (h *Handlers) HandleTarget(w http.ResponseWriter, r *http.Request) {
	if !h.requireArm(w) {
		return
	}
	var req TargetRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	p, err := ValidateTarget(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.Arm.SetTarget(p)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "accepted",
		"target": p,
	})
}

// HandleSpeed handles POST /speed. The value is clamped to the slider range.
func (h *Handlers) HandleSpeed(w http.ResponseWriter, r *http.Request) {
	if !h.requireArm(w) {
		return
	}
	var req SpeedRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Speed == nil || !finite(*req.Speed) {
		http.Error(w, "speed must be a finite number", http.StatusBadRequest)
		return
	}

	speed := h.View.clampSpeed(*req.Speed)
	if err := h.Arm.SetSpeed(speed); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	debug.Live("Speed set to %.4f rad/tick", speed)
	writeJSON(w, http.StatusOK, map[string]float64{"speed": speed})
}

// HandleStop handles POST /stop: the arm holds its current angles.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if !h.requireArm(w) {
		return
	}
	h.Arm.Stop()
	if h.Broadcaster != nil {
		h.Broadcaster.Broadcast("warn", "Arm stopped")
	}
	writeJSON(w, http.StatusOK, newFrameMessage(h.Arm.Snapshot()))
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: "))
			w.Write(msg)
			w.Write([]byte("\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
