package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/arm"
	"github.com/cjeanneret/ArmGo/internal/hw/gpio"
	"github.com/cjeanneret/ArmGo/internal/logic/animation"
	"github.com/cjeanneret/ArmGo/internal/logic/kinematics"
	"github.com/cjeanneret/ArmGo/internal/logic/motion"
	"github.com/cjeanneret/ArmGo/internal/telemetry"
	"github.com/cjeanneret/ArmGo/internal/web"
)

const (
	// maxCLISpeed bounds -speed; the controller itself accepts any positive value.
	maxCLISpeed = 0.1

	// reachedTolerance is the end effector distance, in pixels, logged as "reached".
	reachedTolerance = 0.5
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	var overrides cliOverrides
	flag.Var(&overrides.TargetX, "target_x", "override target x in screen pixels")
	flag.Var(&overrides.TargetY, "target_y", "override target y in screen pixels")
	flag.Var(&overrides.Speed, "speed", "override speed in radians per tick (0-0.1]")
	recordPath := flag.String("record", "", "write one CSV row per tick to this file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration after overrides: %v", err)
	}

	// Web mode mirrors debug output to the status stream.
	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())
	debug.PrintStruct("Arm", cfg.Geometry())
	debug.PrintStruct("Motion", cfg.Motion)
	debug.Value("Speed", cfg.Speed())

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Building frame sinks")
	sinks := []animation.Sink{animation.SinkFunc(logFrame)}
	if cfg.HasSteppers() {
		actuator, err := arm.NewFromConfig(gpioDriver, cfg)
		if err != nil {
			log.Fatalf("init joint steppers failed: %v", err)
		}
		sinks = append(sinks, actuator)
	} else {
		debug.Info("No joint steppers configured, running without hardware")
	}

	recorder, err := telemetry.NewRecorder(*recordPath)
	if err != nil {
		log.Fatalf("init telemetry failed: %v", err)
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Printf("closing telemetry failed: %v", err)
		}
	}()
	if recorder != nil {
		debug.Value("Recording to", *recordPath)
		sinks = append(sinks, recorder)
	}

	var frames *web.FrameBroadcaster
	if webPort.port() > 0 {
		frames = web.NewFrameBroadcaster()
		sinks = append(sinks, frames)
	}

	debug.Step(3, "Creating motion controller")
	runner, err := newRunner(cfg, sinks...)
	if err != nil {
		log.Fatalf("init controller failed: %v", err)
	}
	g := cfg.Geometry()
	debug.Summary("Arm")
	debug.Info("Base (%.0f, %.0f), links %.0f/%.0f, reach %.0f-%.0f, elbow %s",
		g.BaseX, g.BaseY, g.Link1, g.Link2, g.MinReach(), g.MaxReach(), cfg.ElbowBranch())

	if port := webPort.port(); port > 0 {
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), runner, broadcaster, frames, viewConfig(cfg))
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		if err := serve(ctx, runner, srv.Run); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	final, ticks, err := moveOnce(ctx, runner, cfg.InitialTarget())
	if err != nil {
		log.Fatalf("move failed: %v", err)
	}
	shoulder, elbow := final.Angles.Degrees()
	fmt.Printf("Shoulder: %d° Elbow: %d° (%d ticks)\n", shoulder, elbow, ticks)
}

// newRunner builds the controller described by cfg and wraps it in a runner.
func newRunner(cfg *config.Config, sinks ...animation.Sink) (*animation.Runner, error) {
	ctrl, err := motion.NewController(motion.Params{
		Geometry:      cfg.Geometry(),
		InitialAngles: cfg.InitialAngles(),
		InitialTarget: cfg.InitialTarget(),
		Speed:         cfg.Speed(),
		Elbow:         cfg.ElbowBranch(),
	})
	if err != nil {
		return nil, err
	}
	return animation.NewRunner(ctrl, animation.Params{
		Period:   cfg.TickPeriod(),
		MaxTicks: cfg.Motion.MaxTicks,
	}, sinks...), nil
}

// serve runs the tick loop next to run and returns once both have stopped,
// so that sinks are never applied after the caller releases the hardware.
func serve(ctx context.Context, runner *animation.Runner, run func(context.Context) error) error {
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(loopCtx)
	}()

	err := run(ctx)
	stopLoop()
	<-done
	return err
}

// moveOnce sends the arm to target and waits until it stops.
func moveOnce(ctx context.Context, runner *animation.Runner, target kinematics.Point2D) (animation.Frame, int, error) {
	debug.Section("Moving")
	runner.SetTarget(target)
	ticks, err := runner.RunUntilIdle(ctx)
	return runner.Snapshot(), ticks, err
}

// logFrame reports per-tick angles and the end of each move.
func logFrame(f animation.Frame) error {
	debug.Angles(f.Angles.Shoulder, f.Angles.Elbow)
	if f.Moving {
		return nil
	}
	if kinematics.Distance(f.EndEffector, f.Target) < reachedTolerance {
		debug.Info("Target reached at tick %d, end effector (%.1f, %.1f)", f.Tick, f.EndEffector.X, f.EndEffector.Y)
	} else {
		debug.Info("Stopped at tick %d, end effector (%.1f, %.1f) short of target (%.1f, %.1f)",
			f.Tick, f.EndEffector.X, f.EndEffector.Y, f.Target.X, f.Target.Y)
	}
	return nil
}

func viewConfig(cfg *config.Config) web.ViewConfig {
	return web.ViewConfig{
		Geometry: cfg.Geometry(),
		Elbow:    cfg.ElbowBranch().String(),
		MinSpeed: cfg.Motion.MinSpeed,
		MaxSpeed: cfg.Motion.MaxSpeed,
		TickMs:   cfg.Motion.TickMs,
	}
}

// cliOverrides holds the optional command-line overrides.
type cliOverrides struct {
	TargetX optionalFloat
	TargetY optionalFloat
	Speed   optionalFloat
}

// validateCLIOverrides checks the overrides that were set. Unset values
// mean "use config".
func validateCLIOverrides(o cliOverrides) error {
	if o.Speed.set {
		v := o.Speed.val
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > maxCLISpeed {
			return fmt.Errorf("speed must be in (0, %g], got %g", maxCLISpeed, v)
		}
	}
	for _, c := range []struct {
		name string
		f    optionalFloat
	}{{"target_x", o.TargetX}, {"target_y", o.TargetY}} {
		if c.f.set && (math.IsNaN(c.f.val) || math.IsInf(c.f.val, 0)) {
			return fmt.Errorf("%s must be finite, got %g", c.name, c.f.val)
		}
	}
	return nil
}

// applyOverrides mutates cfg with the overrides that were set.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.TargetX.set {
		x := o.TargetX.val
		cfg.Initial.TargetX = &x
	}
	if o.TargetY.set {
		y := o.TargetY.val
		cfg.Initial.TargetY = &y
	}
	if o.Speed.set {
		cfg.SetSpeed(o.Speed.val)
	}
}

// optionalFloat implements flag.Value and remembers whether it was given,
// so that 0 is a usable coordinate.
type optionalFloat struct {
	val float64
	set bool
}

func (f *optionalFloat) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatFloat(f.val, 'g', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.val, f.set = v, true
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
