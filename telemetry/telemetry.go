package telemetry

import (
	"os"
	"strconv"
	"sync"
)

// Row is one control-tick trace record. Values are azimuth-centric to match
// the shape used for offline tuning, with the commanded steps for both axes.
type Row struct {
	Pos     float64 `json:"pos"`
	Err     float64 `json:"err"`
	Tgt     float64 `json:"tgt"`
	P       float64 `json:"p"`
	I       float64 `json:"i"`
	D       float64 `json:"d"`
	Output  float64 `json:"output"`
	Sat     int     `json:"sat"`
	StepAz  int     `json:"stepAz"`
	StepAlt int     `json:"stepAlt"`
}

// Sink receives one Row per control tick.
type Sink interface {
	Append(Row)
}

// Nop discards every row. It stands in when the trace file could not be
// opened so the controller can still start.
type Nop struct{}

var _ Sink = Nop{}

func (Nop) Append(Row) {}

// Memory collects rows for tests.
type Memory struct {
	mu   sync.Mutex
	rows []Row
}

var _ Sink = (*Memory)(nil)

func (m *Memory) Append(r Row) {
	m.mu.Lock()
	m.rows = append(m.rows, r)
	m.mu.Unlock()
}

// Rows returns a copy of everything appended so far.
func (m *Memory) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// Last returns the most recent row, or false if nothing was appended.
func (m *Memory) Last() (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		return Row{}, false
	}
	return m.rows[len(m.rows)-1], true
}

// Multi fans every row out to all sinks in order.
type Multi []Sink

var _ Sink = Multi{}

func (m Multi) Append(r Row) {
	for _, s := range m {
		s.Append(r)
	}
}

// CSV appends rows to a file. The append buffer is reused between rows so
// that writing from the control loop's hot path does not allocate.
type CSV struct {
	mu  sync.Mutex
	f   *os.File
	buf []byte
}

var _ Sink = (*CSV)(nil)

// OpenCSV opens the trace file in append mode, creating it if needed.
func OpenCSV(path string) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &CSV{f: f, buf: make([]byte, 0, 256)}, nil
}

func (c *CSV) Append(r Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.buf[:0]
	b = appendFloat(b, r.Pos)
	b = appendFloat(b, r.Err)
	b = appendFloat(b, r.Tgt)
	b = appendFloat(b, r.P)
	b = appendFloat(b, r.I)
	b = appendFloat(b, r.D)
	b = appendFloat(b, r.Output)
	b = strconv.AppendInt(b, int64(r.Sat), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(r.StepAz), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(r.StepAlt), 10)
	b = append(b, '\n')
	c.buf = b

	c.f.Write(b)
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}

// appendFloat writes one value followed by a comma.
func appendFloat(b []byte, v float64) []byte {
	b = strconv.AppendFloat(b, v, 'f', 10, 64)
	return append(b, ',')
}
