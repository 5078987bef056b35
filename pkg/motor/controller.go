// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"fmt"
	"math"
)

// Logger receives diagnostic messages. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Option customizes a Controller
type Option func(*Controller)

// WithLogger sends diagnostics to l
func WithLogger(l Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithName prefixes diagnostics with the motor name
func WithName(name string) Option {
	return func(c *Controller) {
		c.name = name
	}
}

// Status is a snapshot of a controller for telemetry and display
type Status struct {
	Mode        Mode
	Commanded   int
	Applied     int
	Deadline    Tick
	Now         Tick
	Emergencies uint32
	Wraps       uint32
}

// Controller is the drive state machine of one motor.
//
// It is not safe for concurrent use; the caller serializes RequestSpeed,
// Update, Stop and EmergencyStop.
type Controller struct {
	cfg    Config
	ticks  tickMath
	driver OutputDriver
	logger Logger
	name   string

	mode      Mode
	commanded int
	applied   int
	deadline  Tick
	lead      int // ms the current deadline was scheduled ahead
	now       Tick
	seen      bool

	diagBudget  int
	emergencies uint32
	wraps       uint32
}

// NewController validates cfg, brakes the outputs and returns a stopped
// controller.
func NewController(cfg Config, driver OutputDriver, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid motor config: %w", err)
	}
	if driver == nil {
		return nil, fmt.Errorf("nil output driver")
	}

	c := &Controller{
		cfg:        cfg,
		ticks:      newTickMath(cfg.TickModulus),
		driver:     driver,
		mode:       ModeStopped,
		diagBudget: cfg.DiagnosticBudget,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.driver.Brake()
	return c, nil
}

//////////////////////////////////////////////////////////////
// Entry points
//////////////////////////////////////////////////////////////

// RequestSpeed commands a signed speed at tick now. The magnitude is
// clamped to MaxPWM and magnitudes below MinPWM are treated as zero.
// A request also refreshes the deadman deadline while running.
func (c *Controller) RequestSpeed(speed int, now Tick) {
	c.observe(now)
	c.request(c.normalize(speed), now)
}

// Update processes timed transitions at tick now without a new command.
// It must be called at least once per DeadTime.
func (c *Controller) Update(now Tick) {
	c.observe(now)

	switch c.mode {
	case ModeStopping:
		if !c.ticks.after(now, c.deadline) {
			return
		}
		c.settle()
		if c.commanded != 0 {
			// temporary stop for a direction change; resume the target
			c.diagf("restart %d", c.commanded)
			c.request(c.commanded, now)
		}

	case ModeStopped:
		if c.commanded != 0 && c.ticks.reached(now, c.deadline) {
			c.diagf("restart %d", c.commanded)
			c.request(c.commanded, now)
		}

	case ModeStartingForward, ModeStartingReverse:
		if c.ticks.reached(now, c.deadline) {
			c.diagf("moving")
			c.promote(now)
		}

	case ModeForward, ModeReverse:
		if c.ticks.after(now, c.deadline) {
			c.EmergencyStop()
		}
	}
}

// Stop brakes the motor and clears the commanded speed. It uses the tick
// of the most recent RequestSpeed or Update call.
func (c *Controller) Stop() {
	c.commanded = 0
	c.brake(c.now)
}

// EmergencyStop brakes the motor, clears the commanded speed and holds it
// in Stopping for an extra StopTime. Used for commanded stops and for
// deadman expiry alike.
func (c *Controller) EmergencyStop() {
	c.emergencies++
	c.diagBudget = c.cfg.DiagnosticBudget
	c.logf("Emergency stop")

	c.brake(c.now)
	c.commanded = 0
	c.deadline = c.ticks.add(c.deadline, c.cfg.StopTime)
	c.lead += c.cfg.StopTime
}

//////////////////////////////////////////////////////////////
// Transitions
//////////////////////////////////////////////////////////////

// request runs the RequestSpeed transition table on a normalized speed
func (c *Controller) request(speed int, now Tick) {
	for {
		switch c.mode {
		case ModeStopping:
			c.commanded = speed
			if !c.ticks.reached(now, c.deadline) {
				c.driver.Brake()
				return
			}
			// settle window over: finish stopping, then act as Stopped
			c.settle()
			continue

		case ModeStopped:
			if speed == 0 {
				c.commanded = 0
				return
			}
			c.start(speed, now)
			return

		case ModeStartingForward, ModeStartingReverse:
			if speed == 0 || directionOf(speed) != c.mode.Direction() {
				c.brake(now)
				c.commanded = speed
				return
			}
			c.commanded = speed
			if c.ticks.reached(now, c.deadline) {
				c.promote(now)
			}
			return

		case ModeForward, ModeReverse:
			if c.ticks.after(now, c.deadline) {
				// deadman expired before this command arrived
				c.EmergencyStop()
				return
			}
			if speed == 0 || directionOf(speed) != c.mode.Direction() {
				c.brake(now)
				c.commanded = speed
				return
			}
			c.run(speed, now)
			return

		default:
			c.EmergencyStop()
			return
		}
	}
}

// start issues the full-power kick from rest
func (c *Controller) start(speed int, now Tick) {
	dir := directionOf(speed)
	if dir == Reverse {
		c.mode = ModeStartingReverse
	} else {
		c.mode = ModeStartingForward
	}
	c.driver.Drive(dir, c.cfg.MaxPWM)
	c.commanded = speed
	c.applied = 0
	c.schedule(now, c.cfg.StartupTime)
	c.diagf("Start %s", dir)
}

// promote ends the start pulse and begins modulated drive
func (c *Controller) promote(now Tick) {
	if c.commanded < 0 {
		c.mode = ModeReverse
	} else {
		c.mode = ModeForward
	}
	c.applyDrive(c.commanded, now)
	c.diagf("started %d", c.commanded)
}

// run updates the modulated output and refreshes the deadman
func (c *Controller) run(speed int, now Tick) {
	c.commanded = speed
	c.applyDrive(speed, now)
}

func (c *Controller) applyDrive(speed int, now Tick) {
	magnitude := speed
	if magnitude < 0 {
		magnitude = -magnitude
	}
	c.driver.Drive(directionOf(speed), magnitude)
	c.applied = magnitude
	c.schedule(now, c.cfg.DeadTime)
}

// schedule sets the next deadline lead ms after now
func (c *Controller) schedule(now Tick, lead int) {
	c.deadline = c.ticks.add(now, lead)
	c.lead = lead
}

// brake enters Stopping without touching the commanded speed, so a
// direction change can resume after the settle window.
func (c *Controller) brake(now Tick) {
	c.driver.Brake()
	estimate := int(math.Abs(float64(c.applied) * c.cfg.Decel))
	c.diagf("%d ms to stop", estimate)

	c.applied = 0
	c.mode = ModeStopping
	c.schedule(now, c.cfg.SettleTime)
}

// settle completes a stop
func (c *Controller) settle() {
	c.mode = ModeStopped
	c.applied = 0
	c.diagf("stopped.")
}

// observe records the caller's tick and repairs deadlines broken by
// counter wraparound.
func (c *Controller) observe(now Tick) {
	prev, seen := c.now, c.seen
	c.now = now
	c.seen = true

	wrapped := seen && c.ticks.norm(now) < c.ticks.norm(prev)

	// An idle stopped motor has no live deadline; an old one can fall far
	// enough behind to fold into the future.
	if c.mode == ModeStopped && c.commanded == 0 {
		c.deadline = now
		c.lead = 0
	}

	// A deadline further ahead than it was scheduled cannot be real; treat
	// it as already elapsed.
	// On the first call the counter may start anywhere, so the reset is
	// not counted as a wrap.
	if c.ticks.diff(c.deadline, now) > int64(c.lead) {
		c.deadline = c.ticks.sub(now, 1)
		c.lead = 0
		wrapped = seen
	}

	if wrapped {
		c.wraps++
		c.logf("clock wrap-around")
	}
}

func (c *Controller) normalize(speed int) int {
	if speed > c.cfg.MaxPWM {
		speed = c.cfg.MaxPWM
	} else if speed < -c.cfg.MaxPWM {
		speed = -c.cfg.MaxPWM
	}
	if speed < c.cfg.MinPWM && speed > -c.cfg.MinPWM {
		return 0
	}
	return speed
}

//////////////////////////////////////////////////////////////
// Status
//////////////////////////////////////////////////////////////

// Mode returns the current drive mode
func (c *Controller) Mode() Mode {
	return c.mode
}

// AppliedSpeed returns the last magnitude written to the driver
func (c *Controller) AppliedSpeed() int {
	return c.applied
}

// CommandedSpeed returns the signed target speed
func (c *Controller) CommandedSpeed() int {
	return c.commanded
}

// Deadline returns the tick at which the current mode re-evaluates
func (c *Controller) Deadline() Tick {
	return c.deadline
}

// Name returns the name given with WithName
func (c *Controller) Name() string {
	return c.name
}

// Config returns the active configuration
func (c *Controller) Config() Config {
	return c.cfg
}

// Status returns a snapshot of the controller
func (c *Controller) Status() Status {
	return Status{
		Mode:        c.mode,
		Commanded:   c.commanded,
		Applied:     c.applied,
		Deadline:    c.deadline,
		Now:         c.now,
		Emergencies: c.emergencies,
		Wraps:       c.wraps,
	}
}

// Describe returns a one-line summary of state and configuration
func (c *Controller) Describe() string {
	return fmt.Sprintf("%s cmd=%d applied=%d deadline=%d | %s",
		c.mode, c.commanded, c.applied, c.deadline, c.cfg)
}

//////////////////////////////////////////////////////////////
// Runtime configuration
//////////////////////////////////////////////////////////////

// SetCommandTimeout changes the deadman timeout
func (c *Controller) SetCommandTimeout(ms int) bool {
	return c.reconfigure(func(cfg *Config) { cfg.DeadTime = ms })
}

// SetStartPulseDuration changes the full-power start pulse
func (c *Controller) SetStartPulseDuration(ms int) bool {
	return c.reconfigure(func(cfg *Config) { cfg.StartupTime = ms })
}

// SetSettleTime changes the braked settle window
func (c *Controller) SetSettleTime(ms int) bool {
	return c.reconfigure(func(cfg *Config) { cfg.SettleTime = ms })
}

// SetStopTimeout changes the lockout added by an emergency stop
func (c *Controller) SetStopTimeout(ms int) bool {
	return c.reconfigure(func(cfg *Config) { cfg.StopTime = ms })
}

// SetDecelRate changes the advisory stopping estimate
func (c *Controller) SetDecelRate(msPerCount float64) bool {
	return c.reconfigure(func(cfg *Config) { cfg.Decel = msPerCount })
}

// SetMaxPWM changes the magnitude clamp
func (c *Controller) SetMaxPWM(n int) bool {
	return c.reconfigure(func(cfg *Config) { cfg.MaxPWM = n })
}

// ShowDiagnostics allows n more diagnostic messages
func (c *Controller) ShowDiagnostics(n int) {
	if n < 0 {
		n = 0
	}
	c.diagBudget = n
}

// reconfigure applies fn to a copy of the config and keeps it if valid
func (c *Controller) reconfigure(fn func(*Config)) bool {
	next := c.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		c.logf("config rejected: %v", err)
		return false
	}
	prevMax := c.cfg.MaxPWM
	c.cfg = next

	// keep the held target and the live output inside the new clamp
	c.commanded = c.normalize(c.commanded)
	switch {
	case c.mode.Running() && c.applied > c.cfg.MaxPWM:
		c.applied = c.cfg.MaxPWM
		c.driver.Drive(c.mode.Direction(), c.applied)
	case c.mode.Starting() && c.cfg.MaxPWM != prevMax:
		c.driver.Drive(c.mode.Direction(), c.cfg.MaxPWM)
	}
	return true
}

//////////////////////////////////////////////////////////////
// Diagnostics
//////////////////////////////////////////////////////////////

// diagf logs while the diagnostic budget lasts
func (c *Controller) diagf(format string, args ...any) {
	if c.diagBudget <= 0 {
		return
	}
	c.diagBudget--
	c.logf(format, args...)
}

func (c *Controller) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	if c.name != "" {
		format = c.name + ": " + format
	}
	c.logger.Printf(format, args...)
}
