package gyro

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stratoscope/pointing"
)

func buildDatagram(x, y, z int32, status byte, temp int16, tempStatus byte) []byte {
	d := make([]byte, DatagramSize)
	d[0] = DatagramIdentifier
	put24(d[1:], x)
	put24(d[4:], y)
	put24(d[7:], z)
	d[statusOffset] = status
	binary.BigEndian.PutUint16(d[tempOffset:], uint16(temp))
	d[tempStatusOffset] = tempStatus
	d[DatagramSize-2] = '\r'
	d[DatagramSize-1] = '\n'
	return d
}

func put24(b []byte, v int32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		x, y, z  int32
		temp     int16
		expected Reading
	}{
		{
			"UnitRates",
			16384, -16384, 8192,
			384,
			Reading{Rate: pointing.Rate{X: 1, Y: -1, Z: 0.5}, Temp: 1.5, TempOK: true},
		},
		{
			"NegativeTemp",
			1, 0, -1,
			-256,
			Reading{Rate: pointing.Rate{X: 1.0 / 16384, Y: 0, Z: -1.0 / 16384}, Temp: -1, TempOK: true},
		},
		{
			"FullScale",
			8388607, -8388608, 0,
			0,
			Reading{Rate: pointing.Rate{X: 8388607.0 / 16384, Y: -8388608.0 / 16384, Z: 0}, Temp: 0, TempOK: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode(buildDatagram(tt.x, tt.y, tt.z, 0, tt.temp, 0))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r != tt.expected {
				t.Errorf("expected=%+v, got=%+v", tt.expected, r)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	good := buildDatagram(1, 2, 3, 0, 0, 0)

	tests := []struct {
		name     string
		mutate   func([]byte)
		expected error
	}{
		{"ShortFrame", func(d []byte) {}, ErrBadDatagram},
		{"BadTail", func(d []byte) { d[DatagramSize-1] = 'x' }, ErrBadDatagram},
		{"BadIdentifier", func(d []byte) { d[0] = 0x95 }, ErrBadDatagram},
		{"BadStatus", func(d []byte) { d[statusOffset] = 0x01 }, ErrBadStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := make([]byte, DatagramSize)
			copy(d, good)
			tt.mutate(d)
			if tt.name == "ShortFrame" {
				d = d[:DatagramSize-1]
			}

			_, err := Decode(d)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected error %v, got=%v", tt.expected, err)
			}
		})
	}
}

func TestDecodeBadTempStatusKeepsRate(t *testing.T) {
	d := buildDatagram(16384, 0, 0, 0, 384, 0x02)
	r, err := Decode(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TempOK {
		t.Error("expected TempOK=false")
	}
	if r.TempStatus != 0x02 {
		t.Errorf("expected temp status 0x02, got=0x%02x", r.TempStatus)
	}
	if r.Rate.X != 1 {
		t.Errorf("expected rate x=1, got=%v", r.Rate.X)
	}
}

// fakePort scripts the UART byte stream. A read past the script behaves like
// the device timeout: zero bytes, no error.
type fakePort struct {
	data []byte
	pos  int
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, nil
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func (f *fakePort) ResetInputBuffer() error { return nil }

func newCyclePoller(data []byte, rec *Record) *Poller {
	return NewPoller(&fakePort{data: data}, NopTrigger{}, rec, time.Millisecond, nil)
}

func TestCyclePublishesRate(t *testing.T) {
	rec := NewRecord()

	// leading noise before the identifier must be skipped
	stream := append([]byte{0x00, 0x42}, buildDatagram(16384, -8192, 4096, 0, 512, 0)...)
	newCyclePoller(stream, rec).cycle()

	rate, fresh := rec.Rate()
	if !fresh {
		t.Error("expected a fresh rate")
	}
	expected := pointing.Rate{X: 1, Y: -0.5, Z: 0.25}
	if rate != expected {
		t.Errorf("expected=%+v, got=%+v", expected, rate)
	}
	if rec.Temp() != 2 {
		t.Errorf("expected temp=2, got=%v", rec.Temp())
	}
}

func TestCycleBadStatusKeepsLastRate(t *testing.T) {
	rec := NewRecord()

	newCyclePoller(buildDatagram(16384, 0, 0, 0, 0, 0), rec).cycle()
	if _, fresh := rec.Rate(); !fresh {
		t.Fatal("expected a fresh rate after the good cycle")
	}

	newCyclePoller(buildDatagram(0, 0, 0, 0x01, 0, 0), rec).cycle()

	rate, fresh := rec.Rate()
	if fresh {
		t.Error("expected the record to be marked out of date")
	}
	if rate.X != 1 {
		t.Errorf("expected last good rate x=1 retained, got=%v", rate.X)
	}
}

func TestCycleDropsOnMissingIdentifier(t *testing.T) {
	rec := NewRecord()
	newCyclePoller([]byte{0x01, 0x02, 0x03}, rec).cycle()

	if _, fresh := rec.Rate(); fresh {
		t.Error("expected no fresh rate")
	}
}

func TestCycleDropsIncompleteDatagram(t *testing.T) {
	rec := NewRecord()
	newCyclePoller(buildDatagram(16384, 0, 0, 0, 0, 0)[:10], rec).cycle()

	if _, fresh := rec.Rate(); fresh {
		t.Error("expected no fresh rate")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newCyclePoller(nil, NewRecord())
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got=%v", err)
	}
}
