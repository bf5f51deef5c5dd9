package gyro

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"go.bug.st/serial"
)

const (
	// BaudRate of the gyroscope UART.
	BaudRate = 921600

	// DefaultSampleTime is the shipped poll period.
	DefaultSampleTime = 10 * time.Millisecond

	readTimeout    = 4 * time.Millisecond
	conversionWait = 2 * time.Millisecond

	// maxScanBytes bounds the identifier search within one cycle. A dead
	// or desynchronized UART drops the cycle instead of stalling the
	// poller.
	maxScanBytes = 128

	maxReadAttempts = 16
)

// Port is the slice of the UART the poller needs. go.bug.st/serial ports
// satisfy it.
type Port interface {
	io.Reader
	ResetInputBuffer() error
}

// Open configures the gyroscope UART: fixed baud rate and a short read
// timeout so a silent device never blocks a poll cycle.
func Open(name string) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: BaudRate})
	if err != nil {
		return nil, fmt.Errorf("error opening gyro UART %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("error setting gyro UART timeout: %w", err)
	}
	return port, nil
}

// Poller reads one datagram from the gyroscope per sample period and
// publishes the decoded rate and temperature to a Record.
type Poller struct {
	port   Port
	trig   Trigger
	rec    *Record
	sample time.Duration
	trace  io.Writer // CSV trace, may be nil
}

// NewPoller wires a poller. trace receives one CSV row per good datagram
// and may be nil.
func NewPoller(port Port, trig Trigger, rec *Record, sample time.Duration, trace io.Writer) *Poller {
	if sample <= 0 {
		sample = DefaultSampleTime
	}
	if trig == nil {
		trig = NopTrigger{}
	}
	return &Poller{
		port:   port,
		trig:   trig,
		rec:    rec,
		sample: sample,
		trace:  trace,
	}
}

// Run polls until ctx is cancelled. Each wake time is computed as an
// absolute offset from the start so the period does not drift.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.port.ResetInputBuffer(); err != nil {
		log.Printf("[gyro] failed to purge UART receive buffer: %v", err)
	}

	start := time.Now()
	for k := 1; ; k++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.cycle()

		wait := time.Until(start.Add(time.Duration(k) * p.sample))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// cycle strobes the trigger, reads one datagram and publishes it. Any
// failure drops the cycle; the record keeps the last valid rate.
func (p *Poller) cycle() {
	if err := p.trig.Pulse(); err != nil {
		log.Printf("[gyro] trigger pulse failed: %v", err)
		return
	}

	// wait for the device to finish conversion
	time.Sleep(conversionWait)

	var buf [DatagramSize]byte

	found := false
	for i := 0; i < maxScanBytes; i++ {
		n, err := p.port.Read(buf[:1])
		if err != nil {
			log.Printf("[gyro] reading datagram failed: %v", err)
			return
		}
		if n == 1 && buf[0] == DatagramIdentifier {
			found = true
			break
		}
		if n == 0 {
			// read timeout with nothing buffered
			break
		}
	}
	if !found {
		log.Printf("[gyro] datagram identifier not found")
		return
	}

	total := 1
	for attempts := 0; total < DatagramSize && attempts < maxReadAttempts; attempts++ {
		n, err := p.port.Read(buf[total:])
		if err != nil {
			log.Printf("[gyro] reading datagram failed: %v", err)
			return
		}
		total += n
	}
	if total < DatagramSize {
		log.Printf("[gyro] incomplete datagram: %d of %d bytes", total, DatagramSize)
		return
	}

	r, err := Decode(buf[:])
	switch {
	case errors.Is(err, ErrBadStatus):
		log.Printf("[gyro] %v", err)
		p.rec.MarkOutOfDate()
		return
	case err != nil:
		log.Printf("[gyro] %v", err)
		return
	}

	p.rec.SetRate(r.Rate)

	temp := math.NaN()
	if r.TempOK {
		temp = r.Temp
		p.rec.SetTemp(temp)
	} else {
		log.Printf("[gyro] bad gyroscope temperature data quality: %02x", r.TempStatus)
	}

	if p.trace != nil {
		fmt.Fprintf(p.trace, "%+011.6f,%+011.6f,%+011.6f,%+011.6f\n",
			r.Rate.X, r.Rate.Y, r.Rate.Z, temp)
	}
}
