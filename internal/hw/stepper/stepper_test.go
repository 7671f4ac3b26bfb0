package stepper

import (
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/ArmGo/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls    []gpioCall
	failPin  int // WritePin on failPin fails once it has seen failAt writes
	failAt   int
	writeErr error
}

type gpioCall struct {
	op    string // "setup", "write"
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	if d.writeErr != nil && pin == d.failPin && len(d.writeCallsForPin(pin)) >= d.failAt {
		return d.writeErr
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error {
	return nil
}

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func (d *recordingDriver) writeCallsForPin(pin int) []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" && c.pin == pin {
			result = append(result, c)
		}
	}
	return result
}

func testConfig() Config {
	return Config{
		Name:      "shoulder",
		StepPin:   17,
		DirPin:    27,
		EnablePin: 5,
		StepDelay: 1 * time.Microsecond,
	}
}

func countPulses(calls []gpioCall, stepPin int) int {
	n := 0
	for _, c := range calls {
		if c.pin == stepPin && c.level == gpio.High {
			n++
		}
	}
	return n
}

func TestStepper_MoveStepsForward(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	s := NewStepper(drv, cfg)
	drv.calls = nil // reset after init

	if err := s.MoveSteps(10); err != nil {
		t.Fatalf("MoveSteps: %v", err)
	}

	writes := drv.writeCalls()
	if len(writes) == 0 {
		t.Fatal("expected GPIO write calls")
	}
	if writes[0].pin != 27 || writes[0].level != gpio.High {
		t.Errorf("first write should set dir pin HIGH, got pin=%d level=%v", writes[0].pin, writes[0].level)
	}
	if n := countPulses(writes, cfg.StepPin); n != 10 {
		t.Errorf("expected 10 step pulses, got %d", n)
	}
	if s.Position() != 10 {
		t.Errorf("Position() = %d, want 10", s.Position())
	}
}

func TestStepper_MoveStepsBackward(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	s := NewStepper(drv, cfg)
	drv.calls = nil

	if err := s.MoveSteps(-5); err != nil {
		t.Fatalf("MoveSteps: %v", err)
	}

	writes := drv.writeCalls()
	if len(writes) == 0 {
		t.Fatal("expected GPIO write calls")
	}
	if writes[0].pin != 27 || writes[0].level != gpio.Low {
		t.Errorf("first write should set dir pin LOW, got pin=%d level=%v", writes[0].pin, writes[0].level)
	}
	if n := countPulses(writes, cfg.StepPin); n != 5 {
		t.Errorf("expected 5 step pulses, got %d", n)
	}
	if s.Position() != -5 {
		t.Errorf("Position() = %d, want -5", s.Position())
	}
}

func TestStepper_MoveStepsZero(t *testing.T) {
	drv := &recordingDriver{}
	s := NewStepper(drv, testConfig())
	drv.calls = nil

	if err := s.MoveSteps(0); err != nil {
		t.Fatalf("MoveSteps: %v", err)
	}
	if len(drv.calls) != 0 {
		t.Errorf("zero steps should produce no GPIO calls, got %d", len(drv.calls))
	}
}

func TestStepper_MoveToAbsolute(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	s := NewStepper(drv, cfg)

	if err := s.MoveTo(12); err != nil {
		t.Fatal(err)
	}
	drv.calls = nil
	if err := s.MoveTo(4); err != nil {
		t.Fatal(err)
	}
	if n := countPulses(drv.writeCalls(), cfg.StepPin); n != 8 {
		t.Errorf("MoveTo(4) from 12 pulsed %d times, want 8", n)
	}
	if s.Position() != 4 {
		t.Errorf("Position() = %d, want 4", s.Position())
	}

	drv.calls = nil
	if err := s.MoveTo(4); err != nil {
		t.Fatal(err)
	}
	if len(drv.calls) != 0 {
		t.Errorf("MoveTo current position should not touch GPIO, got %d calls", len(drv.calls))
	}
}

func TestStepper_PositionTracksPartialMove(t *testing.T) {
	boom := errors.New("gpio failure")
	drv := &recordingDriver{failPin: 17, failAt: 6, writeErr: boom}
	s := NewStepper(drv, testConfig())

	err := s.MoveSteps(10)
	if !errors.Is(err, boom) {
		t.Fatalf("MoveSteps err = %v, want %v", err, boom)
	}
	// 6 writes on the step pin = 3 complete pulses before the failure.
	if s.Position() != 3 {
		t.Errorf("Position() = %d, want 3", s.Position())
	}
}

func TestStepper_EnableDisable(t *testing.T) {
	drv := &recordingDriver{}
	s := NewStepper(drv, testConfig())
	drv.calls = nil

	if err := s.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	enableCalls := drv.writeCallsForPin(5)
	if len(enableCalls) != 1 || enableCalls[0].level != gpio.Low {
		t.Errorf("Enable should write LOW to enable pin, got %v", enableCalls)
	}

	drv.calls = nil
	if err := s.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	disableCalls := drv.writeCallsForPin(5)
	if len(disableCalls) != 1 || disableCalls[0].level != gpio.High {
		t.Errorf("Disable should write HIGH to enable pin, got %v", disableCalls)
	}
	if s.Enabled() {
		t.Error("Enabled() should be false after Disable")
	}
}

func TestStepper_MoveReenablesDisabledDriver(t *testing.T) {
	drv := &recordingDriver{}
	s := NewStepper(drv, testConfig())
	_ = s.Disable()
	drv.calls = nil

	if err := s.MoveSteps(1); err != nil {
		t.Fatal(err)
	}
	writes := drv.writeCalls()
	if writes[0].pin != 5 || writes[0].level != gpio.Low {
		t.Errorf("move should re-enable first, got %+v", writes[0])
	}
	if !s.Enabled() {
		t.Error("Enabled() should be true after a move")
	}
}

func TestStepper_EnableDisable_NoEnablePin(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	cfg.EnablePin = 0
	s := NewStepper(drv, cfg)
	drv.calls = nil

	if err := s.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := s.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if len(drv.calls) != 0 {
		t.Errorf("with EnablePin=0, Enable/Disable should produce no GPIO calls, got %d", len(drv.calls))
	}
	if !s.Enabled() {
		t.Error("a motor without enable pin is always enabled")
	}
}

func TestStepper_DefaultStepDelay(t *testing.T) {
	cfg := testConfig()
	cfg.StepDelay = 0
	s := NewStepper(&recordingDriver{}, cfg)
	if s.delay != 1*time.Millisecond {
		t.Errorf("default delay = %v, want 1ms", s.delay)
	}
}

func TestStepper_StepPulsePattern(t *testing.T) {
	drv := &recordingDriver{}
	s := NewStepper(drv, testConfig())
	drv.calls = nil

	_ = s.MoveSteps(1)

	stepCalls := drv.writeCallsForPin(17)
	if len(stepCalls) != 2 {
		t.Fatalf("single step should produce 2 writes on step pin, got %d", len(stepCalls))
	}
	if stepCalls[0].level != gpio.High {
		t.Error("first pulse should be HIGH")
	}
	if stepCalls[1].level != gpio.Low {
		t.Error("second pulse should be LOW")
	}
}
