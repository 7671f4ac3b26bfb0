package stepper

import (
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/gpio"
)

// Config holds the hardware configuration for a joint stepper motor.
type Config struct {
	Name      string // joint name, for logs
	StepPin   int
	DirPin    int
	EnablePin int           // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepDelay time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
}

// Stepper drives a stepper motor and tracks its absolute position in
// microsteps from where it was powered on (the arm's initial pose).
type Stepper struct {
	gpio     gpio.Driver
	cfg      Config
	delay    time.Duration
	position int
	enabled  bool
}

// NewStepper creates a new stepper motor controller.
// cfg.StepDelay: if 0, defaults to 1ms.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:    g,
		cfg:     cfg,
		delay:   delay,
		enabled: true,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// Position returns the absolute position in microsteps.
func (s *Stepper) Position() int {
	return s.position
}

// Enabled reports whether the driver currently holds the motor.
func (s *Stepper) Enabled() bool {
	return s.enabled
}

// MoveTo moves the motor to an absolute position in microsteps.
func (s *Stepper) MoveTo(target int) error {
	return s.MoveSteps(target - s.position)
}

// MoveSteps moves the motor by a number of steps (positive or negative).
// The position is updated per pulse, so a failed move leaves it accurate.
func (s *Stepper) MoveSteps(steps int) error {
	if steps == 0 {
		return nil
	}
	if !s.enabled {
		if err := s.Enable(); err != nil {
			return err
		}
	}

	dirLevel, delta := gpio.High, 1
	direction := "forward"
	if steps < 0 {
		dirLevel, delta = gpio.Low, -1
		direction = "backward"
		steps = -steps
	}

	debug.Printf("Stepper %s: moving %d steps (%s) on pin %d", s.cfg.Name, steps, direction, s.cfg.StepPin)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return err
	}

	for i := 0; i < steps; i++ {
		if err := s.stepPulse(); err != nil {
			return err
		}
		s.position += delta
	}
	return nil
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). The joint holds position.
func (s *Stepper) Enable() error {
	s.enabled = true
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). The joint freewheels.
// Without an enable pin the motor cannot be released and this is a no-op.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	s.enabled = false
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
