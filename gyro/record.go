package gyro

import (
	"sync"

	"github.com/stratoscope/pointing"
)

// Record is the protected rate and temperature store shared with the
// attitude estimator. A dropped poll cycle leaves the last valid rate in
// place and marks it out of date.
type Record struct {
	mu        sync.Mutex
	rate      pointing.Rate
	temp      float64
	outOfDate bool
}

func NewRecord() *Record {
	return &Record{outOfDate: true}
}

// SetRate stores a fresh rate sample and clears the out-of-date flag.
func (r *Record) SetRate(rate pointing.Rate) {
	r.mu.Lock()
	r.rate = rate
	r.outOfDate = false
	r.mu.Unlock()
}

// SetTemp stores a fresh temperature sample.
func (r *Record) SetTemp(temp float64) {
	r.mu.Lock()
	r.temp = temp
	r.mu.Unlock()
}

// MarkOutOfDate flags the stored rate as stale without overwriting it.
func (r *Record) MarkOutOfDate() {
	r.mu.Lock()
	r.outOfDate = true
	r.mu.Unlock()
}

// Rate returns the last stored rate and whether it is fresh.
func (r *Record) Rate() (pointing.Rate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate, !r.outOfDate
}

// Temp returns the last stored temperature.
func (r *Record) Temp() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.temp
}
