// Package pid implements the two-axis position controller that keeps the
// optical axis locked on the current target. Each control tick takes the
// fused attitude and the target angles, runs a discrete PID step per axis,
// conditions the output (anti-windup, slew limit, saturation, deadband) and
// quantizes it to stepper-motor step deltas.
package pid

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/stratoscope/pointing"
	"github.com/stratoscope/pointing/telemetry"
)

var (
	// ErrInvalidAxis is returned by telecommands carrying a motor id other
	// than 1 (azimuth) or 2 (altitude).
	ErrInvalidAxis = errors.New("invalid axis id")
	// ErrInvalidMode is returned by telecommands carrying a mode id other
	// than 1 (tracking) or 2 (stabilization).
	ErrInvalidMode = errors.New("invalid mode id")
)

// positionDeadband is the settled-state error threshold in degrees. Below it
// the stored output is zeroed so the derivative term does not hunt around a
// settled target.
const positionDeadband = 0.02

// Config holds the fixed parameters of the control loop.
type Config struct {
	// Tick is the control period. The integration step always uses this
	// value, not the measured time between calls.
	Tick time.Duration

	// Motor train constants, used to convert between commanded degrees and
	// raw motor steps.
	StepsPerRevolution float64
	MicroStepFactor    float64
	GearboxRatio       float64
}

// DefaultConfig matches the shipped motor train and a 10 ms control period.
func DefaultConfig() Config {
	return Config{
		Tick:               10 * time.Millisecond,
		StepsPerRevolution: 200,
		MicroStepFactor:    16,
		GearboxRatio:       24,
	}
}

// Vars are the controller variables of one axis for one tick, in degrees.
type Vars struct {
	T          float64 // seconds since the first tick
	Cur        float64 // current position
	Tgt        float64 // target position
	Err        float64 // position error
	Integral   float64 // accumulated error
	Derivative float64 // discrete error derivative
	Output     float64 // conditioned PID output
}

// axisState is one axis's control variables. prev always holds the values of
// the prior completed tick.
type axisState struct {
	mu   sync.Mutex
	prev Vars
	cur  Vars
}

// gainCell is one axis's gain storage: the active set the loop reads, plus
// the persistent per-mode sets the telecommands edit.
type gainCell struct {
	mu     sync.Mutex
	active pointing.Gains
	stored [2]pointing.Gains // indexed by mode - 1
}

// snapshot copies the active gains so one tick always computes with three
// coefficients written together.
func (g *gainCell) snapshot() pointing.Gains {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Controller drives both gimbal axes. Update is single-writer and must be
// called from one goroutine at a fixed period; telecommand methods may be
// called from any goroutine.
type Controller struct {
	target pointing.TargetSource
	sink   telemetry.Sink

	axes  [2]axisState // azimuth, altitude
	gains [2]gainCell

	modeMu sync.Mutex
	mode   pointing.Mode

	stepsPerDeg float64
	uMax        float64 // output ceiling, degrees
	duMax       float64 // per-tick output change ceiling, degrees
	dt          float64 // Tick in seconds

	start     time.Time
	firstTick bool
}

// New builds a Controller with the shipped default gains and tracking mode
// active. The sink receives one trace row per tick; pass telemetry.Nop{} to
// disable tracing.
func New(cfg Config, target pointing.TargetSource, sink telemetry.Sink) (*Controller, error) {
	if cfg.Tick <= 0 {
		return nil, errors.New("error creating controller: tick period must be positive")
	}
	if cfg.StepsPerRevolution <= 0 || cfg.MicroStepFactor <= 0 || cfg.GearboxRatio <= 0 {
		return nil, errors.New("error creating controller: motor train constants must be positive")
	}
	if target == nil {
		return nil, errors.New("error creating controller: nil target source")
	}
	if sink == nil {
		sink = telemetry.Nop{}
	}

	c := &Controller{
		target:    target,
		sink:      sink,
		dt:        cfg.Tick.Seconds(),
		firstTick: true,
	}

	c.stepsPerDeg = cfg.StepsPerRevolution * cfg.MicroStepFactor * cfg.GearboxRatio / 360.0
	c.uMax = 35 / c.stepsPerDeg
	c.duMax = 5 / c.stepsPerDeg

	for _, ax := range []pointing.Axis{pointing.AxisAz, pointing.AxisAlt} {
		cell := &c.gains[ax-1]
		cell.stored[pointing.ModeTracking-1] = defaultGains[ax-1][pointing.ModeTracking-1]
		cell.stored[pointing.ModeStabilization-1] = defaultGains[ax-1][pointing.ModeStabilization-1]
	}

	// Tracking gains are active from the first tick.
	if err := c.ChangeMode(pointing.ModeTracking); err != nil {
		return nil, fmt.Errorf("error activating tracking gains: %w", err)
	}

	return c, nil
}

// Update runs one control tick and returns the commanded step deltas for
// both motors.
func (c *Controller) Update(att pointing.Attitude) pointing.MotorStep {
	az := &c.axes[pointing.AxisAz-1]
	alt := &c.axes[pointing.AxisAlt-1]

	// Control guards before gain guards, azimuth before altitude. Deferred
	// unlocks run in reverse of acquisition.
	az.mu.Lock()
	defer az.mu.Unlock()
	alt.mu.Lock()
	defer alt.mu.Unlock()

	az.cur.Cur = att.Az
	alt.cur.Cur = att.Alt
	az.cur.Tgt, alt.cur.Tgt = c.target.TrackingAngles()

	if c.firstTick {
		c.start = time.Now()
		az.prev.T = 0
		alt.prev.T = 0
		az.prev.Err = 0
		alt.prev.Err = 0
		c.firstTick = false
	}

	now := time.Since(c.start).Seconds()
	az.cur.T = now
	alt.cur.T = now

	azGains := c.gains[pointing.AxisAz-1].snapshot()
	altGains := c.gains[pointing.AxisAlt-1].snapshot()

	c.step(azGains, &az.prev, &az.cur)
	c.step(altGains, &alt.prev, &alt.cur)

	// Anti-windup. Both integrators are clamped against the azimuth ki.
	// TODO: confirm with the control engineers whether altitude should
	// clamp against its own ki instead.
	windup := c.uMax / azGains.Ki
	az.cur.Integral = clamp(az.cur.Integral, -windup, windup)
	alt.cur.Integral = clamp(alt.cur.Integral, -windup, windup)

	slewLimit(&az.cur, &az.prev, c.duMax)
	slewLimit(&alt.cur, &alt.prev, c.duMax)

	// Output saturation. The clamp direction is reported for azimuth only.
	sat := 0
	if az.cur.Output > c.uMax {
		sat = 1
		az.cur.Output = c.uMax
	} else if az.cur.Output < -c.uMax {
		sat = 2
		az.cur.Output = -c.uMax
	}
	alt.cur.Output = clamp(alt.cur.Output, -c.uMax, c.uMax)

	steps := pointing.MotorStep{
		Az:  int(math.Round(c.stepsPerDeg * az.cur.Output)),
		Alt: int(math.Round(c.stepsPerDeg * alt.cur.Output)),
	}

	// Settled-state deadband. Applied after quantization, so the emitted
	// step of a barely-settled tick may be non-zero while the stored
	// previous output for the next tick is zero.
	if math.Abs(az.cur.Err) < positionDeadband {
		az.cur.Output = 0
	}
	if math.Abs(alt.cur.Err) < positionDeadband {
		alt.cur.Output = 0
	}

	c.sink.Append(telemetry.Row{
		Pos:     az.cur.Cur,
		Err:     az.cur.Err,
		Tgt:     az.cur.Tgt,
		P:       az.cur.Err * azGains.Kp,
		I:       az.cur.Integral * azGains.Ki,
		D:       az.cur.Derivative * azGains.Kd,
		Output:  az.cur.Output,
		Sat:     sat,
		StepAz:  steps.Az,
		StepAlt: steps.Alt,
	})

	az.prev = az.cur
	alt.prev = alt.cur

	return steps
}

// step runs the discrete PID update for one axis.
func (c *Controller) step(g pointing.Gains, prev, cur *Vars) {
	cur.Err = cur.Tgt - cur.Cur
	cur.Integral = prev.Integral + cur.Err*c.dt
	cur.Derivative = (cur.Err - prev.Err) / c.dt
	cur.Output = g.Kp*cur.Err + g.Ki*cur.Integral + g.Kd*cur.Derivative
}

// slewLimit bounds the per-tick output change to duMax in the direction of
// the original change.
func slewLimit(cur, prev *Vars, duMax float64) {
	if math.Abs(cur.Output-prev.Output) <= duMax {
		return
	}
	if cur.Output > prev.Output {
		cur.Output = prev.Output + duMax
	} else {
		cur.Output = prev.Output - duMax
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// State returns a copy of one axis's previous and current control variables.
func (c *Controller) State(axis pointing.Axis) (prev, cur Vars, err error) {
	if !axis.Valid() {
		return Vars{}, Vars{}, fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}
	ax := &c.axes[axis-1]
	ax.mu.Lock()
	defer ax.mu.Unlock()
	return ax.prev, ax.cur, nil
}

// OutputCeiling returns the absolute and per-tick output bounds in degrees.
func (c *Controller) OutputCeiling() (uMax, duMax float64) {
	return c.uMax, c.duMax
}

// StepsPerDegree returns the motor train's step-per-degree conversion factor.
func (c *Controller) StepsPerDegree() float64 {
	return c.stepsPerDeg
}
