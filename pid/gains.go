package pid

import (
	"fmt"
	"log"

	"github.com/stratoscope/pointing"
)

// defaultGains are the shipped parameter sets, indexed by [axis-1][mode-1].
var defaultGains = [2][2]pointing.Gains{
	{ // azimuth
		{Kp: 0.1, Ki: 0.01, Kd: 1},         // tracking
		{Kp: 0.0673, Ki: 0.05, Kd: 0.0152}, // stabilization
	},
	{ // altitude
		{Kp: 1, Ki: 0.2, Kd: 0},            // tracking
		{Kp: 0.0673, Ki: 0.05, Kd: 0.0152}, // stabilization
	},
}

// SetGains overwrites one axis's active gains. The change lasts until the
// next mode change reloads the stored set. Telecommand: change_pid_values.
func (c *Controller) SetGains(axis pointing.Axis, g pointing.Gains) error {
	if !axis.Valid() {
		log.Printf("[pid] change_pid_values: wrong motor id %d", int(axis))
		return fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}

	cell := &c.gains[axis-1]
	cell.mu.Lock()
	cell.active = g
	cell.mu.Unlock()
	return nil
}

// SetModeGains overwrites the persistent gain set for one axis and mode. The
// active gains are untouched until that mode is next entered. Telecommand:
// change_mode_pid_values.
func (c *Controller) SetModeGains(axis pointing.Axis, mode pointing.Mode, g pointing.Gains) error {
	if !axis.Valid() {
		log.Printf("[pid] change_mode_pid_values: wrong motor id %d", int(axis))
		return fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}
	if !mode.Valid() {
		log.Printf("[pid] change_mode_pid_values: wrong mode id %d", int(mode))
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}

	cell := &c.gains[axis-1]
	cell.mu.Lock()
	cell.stored[mode-1] = g
	cell.mu.Unlock()
	return nil
}

// ChangeMode loads the stored gain set of the given mode into both axes'
// active cells. Entering the current mode again is a no-op swap. Telecommand:
// change_stabilization_mode.
func (c *Controller) ChangeMode(mode pointing.Mode) error {
	if !mode.Valid() {
		log.Printf("[pid] change_stabilization_mode: wrong mode id %d", int(mode))
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}

	for i := range c.gains {
		cell := &c.gains[i]
		cell.mu.Lock()
		cell.active = cell.stored[mode-1]
		cell.mu.Unlock()
	}

	c.modeMu.Lock()
	c.mode = mode
	c.modeMu.Unlock()

	log.Printf("[pid] mode changed to %s", mode)
	return nil
}

// Mode returns the currently scheduled gain mode.
func (c *Controller) Mode() pointing.Mode {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	return c.mode
}

// Gains returns one axis's active gain set.
func (c *Controller) Gains(axis pointing.Axis) (pointing.Gains, error) {
	if !axis.Valid() {
		return pointing.Gains{}, fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}
	return c.gains[axis-1].snapshot(), nil
}

// StoredGains returns the persistent gain set for one axis and mode.
func (c *Controller) StoredGains(axis pointing.Axis, mode pointing.Mode) (pointing.Gains, error) {
	if !axis.Valid() {
		return pointing.Gains{}, fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}
	if !mode.Valid() {
		return pointing.Gains{}, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	cell := &c.gains[axis-1]
	cell.mu.Lock()
	defer cell.mu.Unlock()
	return cell.stored[mode-1], nil
}

// Reset clears the accumulated integral and position error of both axes,
// previous and current. Gains are untouched. Telecommand: pid_reset.
func (c *Controller) Reset() {
	for i := range c.axes {
		ax := &c.axes[i]
		ax.mu.Lock()
		ax.prev.Err = 0
		ax.prev.Integral = 0
		ax.cur.Err = 0
		ax.cur.Integral = 0
		ax.mu.Unlock()
	}

	log.Printf("[pid] resetting the integral part")
}
