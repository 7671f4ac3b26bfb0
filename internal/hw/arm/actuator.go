package arm

import (
	"fmt"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/gpio"
	"github.com/cjeanneret/ArmGo/internal/hw/stepper"
	"github.com/cjeanneret/ArmGo/internal/logic/animation"
	"github.com/cjeanneret/ArmGo/internal/logic/geometry"
	"github.com/cjeanneret/ArmGo/internal/logic/kinematics"
)

// Joint is the subset of stepper.Stepper the actuator needs.
type Joint interface {
	MoveTo(position int) error
	Position() int
	Enable() error
	Disable() error
}

// Actuator mirrors controller frames onto the two joint steppers.
// It's the layer between the motion logic (joint angles) and the
// low-level hardware (GPIO step pulses).
//
// Stepper positions count from the pose the arm had at power-on, which
// must match the controller's initial angles.
type Actuator struct {
	shoulder Joint
	elbow    Joint
	steps    *geometry.StepsCalculator
	origin   kinematics.JointAngles

	releaseWhenIdle bool
	released        bool
}

func NewActuator(shoulder, elbow Joint, steps *geometry.StepsCalculator, origin kinematics.JointAngles, releaseWhenIdle bool) *Actuator {
	return &Actuator{
		shoulder:        shoulder,
		elbow:           elbow,
		steps:           steps,
		origin:          origin,
		releaseWhenIdle: releaseWhenIdle,
	}
}

// NewFromConfig builds the joint steppers described by cfg on g.
func NewFromConfig(g gpio.Driver, cfg *config.Config) (*Actuator, error) {
	if !cfg.HasSteppers() {
		return nil, fmt.Errorf("shoulder_stepper and elbow_stepper are required for hardware actuation")
	}
	shoulder := newJointStepper(g, "shoulder", cfg.ShoulderStepper)
	elbow := newJointStepper(g, "elbow", cfg.ElbowStepper)
	debug.PrintStruct("Shoulder stepper config", *cfg.ShoulderStepper)
	debug.PrintStruct("Elbow stepper config", *cfg.ElbowStepper)

	steps := geometry.NewStepsCalculator(cfg.ShoulderStepper, cfg.ElbowStepper)
	rs, re := steps.Resolution()
	debug.Verbose("Joint resolution: shoulder=%.4f rad/step elbow=%.4f rad/step", rs, re)
	if speed := cfg.Motion.MinSpeed; speed < rs || speed < re {
		debug.Info("min_speed %.4f is below one microstep per tick; slow moves will advance in bursts", speed)
	}

	return NewActuator(shoulder, elbow, steps, cfg.InitialAngles(), cfg.Defaults.ReleaseWhenIdle), nil
}

func newJointStepper(g gpio.Driver, name string, s *config.StepperConfig) *stepper.Stepper {
	return stepper.NewStepper(g, stepper.Config{
		Name:      name,
		StepPin:   s.StepPin,
		DirPin:    s.DirPin,
		EnablePin: s.EnablePin,
		StepDelay: s.StepDelay(),
	})
}

// Apply implements animation.Sink. Released drivers are engaged again as
// soon as a move starts, even if its first ticks are below one microstep.
func (a *Actuator) Apply(f animation.Frame) error {
	if f.Moving && a.released {
		if err := a.Hold(); err != nil {
			return fmt.Errorf("engage joint drivers: %w", err)
		}
	}

	shoulderPos, elbowPos := a.steps.StepsFromAngles(kinematics.JointAngles{
		Shoulder: f.Angles.Shoulder - a.origin.Shoulder,
		Elbow:    f.Angles.Elbow - a.origin.Elbow,
	})

	if err := a.shoulder.MoveTo(shoulderPos); err != nil {
		return fmt.Errorf("move shoulder to %d: %w", shoulderPos, err)
	}
	if err := a.elbow.MoveTo(elbowPos); err != nil {
		return fmt.Errorf("move elbow to %d: %w", elbowPos, err)
	}

	if !f.Moving && a.releaseWhenIdle {
		debug.Verbose("Target reached, releasing joint drivers")
		return a.Release()
	}
	return nil
}

// Release disables both joint drivers (no holding torque).
func (a *Actuator) Release() error {
	if err := a.shoulder.Disable(); err != nil {
		return err
	}
	if err := a.elbow.Disable(); err != nil {
		return err
	}
	a.released = true
	return nil
}

// Hold enables both joint drivers.
func (a *Actuator) Hold() error {
	if err := a.shoulder.Enable(); err != nil {
		return err
	}
	if err := a.elbow.Enable(); err != nil {
		return err
	}
	a.released = false
	return nil
}

// Positions returns the shoulder and elbow stepper positions in microsteps.
func (a *Actuator) Positions() (shoulder, elbow int) {
	return a.shoulder.Position(), a.elbow.Position()
}
