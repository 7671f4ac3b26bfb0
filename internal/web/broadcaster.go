package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/ArmGo/internal/logic/animation"
)

// hub fans payloads out to buffered subscriber channels. Slow subscribers
// miss messages instead of blocking the publisher.
type hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[chan []byte]struct{})}
}

func (h *hub) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

func (h *hub) publish(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StatusEvent represents a single status message for SSE.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster distributes log and status messages to SSE clients.
type StatusBroadcaster struct {
	hub *hub
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{hub: newHub()}
}

// Subscribe returns a channel of JSON-encoded StatusEvents and a cleanup
// function to call when the client disconnects.
func (b *StatusBroadcaster) Subscribe() (<-chan []byte, func()) {
	return b.hub.subscribe()
}

// Broadcast sends {"t":"...","l":"info","msg":"..."} to all subscribers.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	data, err := json.Marshal(StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
	if err != nil {
		return
	}
	b.hub.publish(data)
}

// BroadcastWriter returns an io.Writer that broadcasts each write, for use
// with debug.SetOutput.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast(levelOf(msg), msg)
	}
	return len(p), nil
}

// levelOf maps the debug package prefixes to an SSE level.
func levelOf(msg string) string {
	switch {
	case strings.Contains(msg, "[ERROR]"):
		return "error"
	case strings.Contains(msg, "unreachable"):
		return "warn"
	default:
		return "info"
	}
}

// FrameBroadcaster publishes animation frames as JSON to websocket
// clients. It is an animation.Sink.
type FrameBroadcaster struct {
	hub *hub
}

func NewFrameBroadcaster() *FrameBroadcaster {
	return &FrameBroadcaster{hub: newHub()}
}

// Subscribe returns a channel of JSON-encoded frames.
func (b *FrameBroadcaster) Subscribe() (<-chan []byte, func()) {
	return b.hub.subscribe()
}

// Clients returns the number of connected subscribers.
func (b *FrameBroadcaster) Clients() int {
	return b.hub.count()
}

// Apply implements animation.Sink.
func (b *FrameBroadcaster) Apply(f animation.Frame) error {
	data, err := json.Marshal(newFrameMessage(f))
	if err != nil {
		return fmt.Errorf("encoding frame %d: %w", f.Tick, err)
	}
	b.hub.publish(data)
	return nil
}

// frameMessage is the wire form of a frame: the raw frame plus degrees
// for display.
type frameMessage struct {
	animation.Frame
	ShoulderDeg int `json:"shoulder_deg"`
	ElbowDeg    int `json:"elbow_deg"`
}

func newFrameMessage(f animation.Frame) frameMessage {
	sd, ed := f.Angles.Degrees()
	return frameMessage{Frame: f, ShoulderDeg: sd, ElbowDeg: ed}
}
