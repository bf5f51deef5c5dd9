package gyro

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Trigger strobes the gyroscope's external conversion line once per poll
// cycle.
type Trigger interface {
	Pulse() error
}

// NopTrigger is used when the gyroscope free-runs or on hosts without the
// trigger line wired up.
type NopTrigger struct{}

var _ Trigger = NopTrigger{}

func (NopTrigger) Pulse() error { return nil }

// Pin drives a sysfs GPIO line. The line is exported and set high at init;
// Pulse takes it low for about a microsecond and back high.
type Pin struct {
	num   int
	value *os.File
}

var _ Trigger = (*Pin)(nil)

// ExportPin exports the GPIO line, configures it as an output and leaves it
// high.
func ExportPin(num int) (*Pin, error) {
	gpioDir := filepath.Join("/sys/class/gpio", "gpio"+strconv.Itoa(num))

	if _, err := os.Stat(gpioDir); os.IsNotExist(err) {
		if err := writeSysfs("/sys/class/gpio/export", strconv.Itoa(num)); err != nil {
			return nil, fmt.Errorf("error exporting gpio %d: %w", num, err)
		}
	}

	if err := writeSysfs(filepath.Join(gpioDir, "direction"), "out"); err != nil {
		return nil, fmt.Errorf("error setting gpio %d direction: %w", num, err)
	}

	value, err := os.OpenFile(filepath.Join(gpioDir, "value"), os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("error opening gpio %d value: %w", num, err)
	}

	p := &Pin{num: num, value: value}
	if err := p.write(high); err != nil {
		p.Close()
		return nil, fmt.Errorf("error raising gpio %d: %w", num, err)
	}
	return p, nil
}

var (
	low  = []byte{'0'}
	high = []byte{'1'}
)

// Pulse strobes the trigger line low then high.
func (p *Pin) Pulse() error {
	if err := p.write(low); err != nil {
		return err
	}
	time.Sleep(time.Microsecond)
	return p.write(high)
}

func (p *Pin) write(v []byte) error {
	if _, err := p.value.WriteAt(v, 0); err != nil {
		return fmt.Errorf("error writing gpio %d: %w", p.num, err)
	}
	return nil
}

func (p *Pin) Close() error {
	return p.value.Close()
}

func writeSysfs(path, v string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(v)
	return err
}
