package geometry

import (
	"math"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/logic/kinematics"
)

// StepsCalculator converts joint angles to motor microstep counts.
type StepsCalculator struct {
	shoulderStepsPerRad float64
	elbowStepsPerRad    float64
}

// NewStepsCalculator creates a step calculator from the joint stepper
// configuration. Both steppers must be configured (see Config.HasSteppers).
func NewStepsCalculator(shoulder, elbow *config.StepperConfig) *StepsCalculator {
	return &StepsCalculator{
		shoulderStepsPerRad: stepsPerRadian(shoulder),
		elbowStepsPerRad:    stepsPerRadian(elbow),
	}
}

// stepsPerRadian is microsteps per motor turn, times motor turns per
// joint turn, over one joint turn in radians.
func stepsPerRadian(s *config.StepperConfig) float64 {
	microstepsPerRev := float64(s.StepsPerRev * s.Microstepping)
	return microstepsPerRev * s.GearRatio / (2 * math.Pi)
}

// ShoulderStepsFromAngle converts a shoulder angle (radians) to microsteps.
func (s *StepsCalculator) ShoulderStepsFromAngle(rad float64) int {
	return int(math.Round(rad * s.shoulderStepsPerRad))
}

// ElbowStepsFromAngle converts an elbow angle (radians) to microsteps.
func (s *StepsCalculator) ElbowStepsFromAngle(rad float64) int {
	return int(math.Round(rad * s.elbowStepsPerRad))
}

// StepsFromAngles converts both joint angles at once.
func (s *StepsCalculator) StepsFromAngles(a kinematics.JointAngles) (shoulder, elbow int) {
	return s.ShoulderStepsFromAngle(a.Shoulder), s.ElbowStepsFromAngle(a.Elbow)
}

// Resolution returns the smallest representable joint motion, in radians,
// for the shoulder and elbow.
func (s *StepsCalculator) Resolution() (shoulder, elbow float64) {
	return 1 / s.shoulderStepsPerRad, 1 / s.elbowStepsPerRad
}
