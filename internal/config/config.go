package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/ArmGo/internal/logic/kinematics"
)

// StepperConfig holds the configuration for a joint stepper motor.
type StepperConfig struct {
	StepPin       int     `yaml:"step_pin"`
	DirPin        int     `yaml:"dir_pin"`
	EnablePin     int     `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int     `yaml:"steps_per_rev"`
	Microstepping int     `yaml:"microstepping"`
	GearRatio     float64 `yaml:"gear_ratio"`    // motor turns per joint turn
	StepDelayUs   int     `yaml:"step_delay_us"` // delay per half-cycle of STEP pulse
}

// ArmConfig describes the arm geometry in screen pixels.
type ArmConfig struct {
	BaseX       *float64 `yaml:"base_x"` // nil = 300
	BaseY       *float64 `yaml:"base_y"` // nil = 400
	Link1Length float64  `yaml:"link1_length"`
	Link2Length float64  `yaml:"link2_length"`
	Elbow       string   `yaml:"elbow"` // "down" (default) or "up"
}

// InitialConfig is the arm pose and target at startup.
type InitialConfig struct {
	ShoulderDeg *float64 `yaml:"shoulder_deg"` // nil = 45°
	ElbowDeg    *float64 `yaml:"elbow_deg"`    // nil = 45°
	TargetX     *float64 `yaml:"target_x"`     // nil = base_x
	TargetY     *float64 `yaml:"target_y"`     // nil = base_y - 200
}

// MotionConfig holds the tick loop parameters.
type MotionConfig struct {
	Speed    *float64 `yaml:"speed"`     // radians per tick, nil = 0.02
	MinSpeed float64  `yaml:"min_speed"` // lower bound exposed by the UI
	MaxSpeed float64  `yaml:"max_speed"` // upper bound exposed by the UI
	TickMs   int      `yaml:"tick_ms"`   // tick period
	MaxTicks int      `yaml:"max_ticks"` // safety limit for a single move (0 = unlimited)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel      int  `yaml:"debug_level"`       // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO        bool `yaml:"mock_gpio"`         // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	ReleaseWhenIdle bool `yaml:"release_when_idle"` // disable stepper drivers once the target is reached
}

// Config aggregates all application configuration.
type Config struct {
	Arm             ArmConfig      `yaml:"arm"`
	Initial         InitialConfig  `yaml:"initial"`
	Motion          MotionConfig   `yaml:"motion"`
	ShoulderStepper *StepperConfig `yaml:"shoulder_stepper,omitempty"` // optional, nil = no hardware
	ElbowStepper    *StepperConfig `yaml:"elbow_stepper,omitempty"`    // optional, nil = no hardware
	Defaults        DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path is a .yaml file directly inside a
// "configs" directory and does not contain traversal elements.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data, fills defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration (the arm used when no file is given).
func Default() *Config {
	var cfg Config
	cfg.Defaults.MockGPIO = true
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Arm.BaseX == nil {
		c.Arm.BaseX = float64Ptr(300)
	}
	if c.Arm.BaseY == nil {
		c.Arm.BaseY = float64Ptr(400)
	}
	if c.Arm.Link1Length == 0 {
		c.Arm.Link1Length = 150
	}
	if c.Arm.Link2Length == 0 {
		c.Arm.Link2Length = 120
	}

	if c.Motion.Speed == nil {
		c.Motion.Speed = float64Ptr(0.02)
	}
	if c.Motion.MinSpeed == 0 {
		c.Motion.MinSpeed = 0.005
	}
	if c.Motion.MaxSpeed == 0 {
		c.Motion.MaxSpeed = 0.1
	}
	if c.Motion.TickMs <= 0 {
		c.Motion.TickMs = 20
	}

	for _, s := range []*StepperConfig{c.ShoulderStepper, c.ElbowStepper} {
		if s == nil {
			continue
		}
		if s.StepsPerRev <= 0 {
			s.StepsPerRev = 200
		}
		if s.Microstepping <= 0 {
			s.Microstepping = 1
		}
		if s.GearRatio <= 0 {
			s.GearRatio = 1
		}
		if s.StepDelayUs <= 0 {
			s.StepDelayUs = 500
		}
	}
}

// Validate checks value ranges. It expects defaults to be applied.
func (c *Config) Validate() error {
	if err := c.Geometry().Validate(); err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	if _, err := kinematics.ParseElbow(c.Arm.Elbow); err != nil {
		return fmt.Errorf("arm.elbow: %w", err)
	}
	m := c.Motion
	if !finite(m.MinSpeed) || m.MinSpeed <= 0 {
		return fmt.Errorf("motion.min_speed must be > 0, got %g", m.MinSpeed)
	}
	if !finite(m.MaxSpeed) || m.MaxSpeed < m.MinSpeed {
		return fmt.Errorf("motion.max_speed must be >= min_speed (%g), got %g", m.MinSpeed, m.MaxSpeed)
	}
	speed := c.Speed()
	if !finite(speed) || speed <= 0 {
		return fmt.Errorf("motion.speed must be > 0, got %g", speed)
	}
	if speed < m.MinSpeed || speed > m.MaxSpeed {
		return fmt.Errorf("motion.speed must be between %g and %g, got %g", m.MinSpeed, m.MaxSpeed, speed)
	}
	if m.MaxTicks < 0 {
		return fmt.Errorf("motion.max_ticks must be >= 0, got %d", m.MaxTicks)
	}
	if (c.ShoulderStepper == nil) != (c.ElbowStepper == nil) {
		return fmt.Errorf("shoulder_stepper and elbow_stepper must be configured together")
	}
	for _, v := range []*float64{c.Initial.ShoulderDeg, c.Initial.ElbowDeg, c.Initial.TargetX, c.Initial.TargetY} {
		if v != nil && !finite(*v) {
			return fmt.Errorf("initial values must be finite, got %g", *v)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func float64Ptr(v float64) *float64 { return &v }

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Geometry returns the arm geometry.
func (c *Config) Geometry() kinematics.ArmGeometry {
	return kinematics.ArmGeometry{
		BaseX: deref(c.Arm.BaseX),
		BaseY: deref(c.Arm.BaseY),
		Link1: c.Arm.Link1Length,
		Link2: c.Arm.Link2Length,
	}
}

// ElbowBranch returns the configured elbow branch. Invalid values were
// rejected by Validate, so this falls back to elbow-down.
func (c *Config) ElbowBranch() kinematics.Elbow {
	e, _ := kinematics.ParseElbow(c.Arm.Elbow)
	return e
}

// InitialAngles returns the startup joint angles (45°, 45° unless set).
func (c *Config) InitialAngles() kinematics.JointAngles {
	shoulder, elbow := 45.0, 45.0
	if c.Initial.ShoulderDeg != nil {
		shoulder = *c.Initial.ShoulderDeg
	}
	if c.Initial.ElbowDeg != nil {
		elbow = *c.Initial.ElbowDeg
	}
	return kinematics.FromDegrees(shoulder, elbow)
}

// InitialTarget returns the startup target, 200px above the base unless set.
func (c *Config) InitialTarget() kinematics.Point2D {
	g := c.Geometry()
	p := kinematics.Point2D{X: g.BaseX, Y: g.BaseY - 200}
	if c.Initial.TargetX != nil {
		p.X = *c.Initial.TargetX
	}
	if c.Initial.TargetY != nil {
		p.Y = *c.Initial.TargetY
	}
	return p
}

// TickPeriod returns the duration between two controller ticks.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Motion.TickMs) * time.Millisecond
}

// Speed returns the configured joint speed in radians per tick.
func (c *Config) Speed() float64 {
	return deref(c.Motion.Speed)
}

// SetSpeed overrides the configured joint speed.
func (c *Config) SetSpeed(v float64) {
	c.Motion.Speed = &v
}

// HasSteppers reports whether joint steppers are configured.
func (c *Config) HasSteppers() bool {
	return c.ShoulderStepper != nil && c.ElbowStepper != nil
}

// StepDelay returns the half-cycle delay of a stepper pulse.
func (s *StepperConfig) StepDelay() time.Duration {
	return time.Duration(s.StepDelayUs) * time.Microsecond
}
