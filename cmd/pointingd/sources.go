package main

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/stratoscope/pointing"
)

const (
	subjectAttitude = "pointing.attitude"
	subjectTarget   = "pointing.target"
	subjectMotor    = "pointing.motor"
	subjectGyro     = "pointing.gyro"
)

// busSources mirrors the attitude estimator's fused output and the tracking
// subsystem's target angles from the bus. The control loop reads whatever
// arrived last.
type busSources struct {
	mu       sync.Mutex
	attitude pointing.Attitude
	target   pointing.Attitude
}

var (
	_ pointing.AttitudeSource = (*busSources)(nil)
	_ pointing.TargetSource   = (*busSources)(nil)
)

// Subscribe starts mirroring both subjects.
func (b *busSources) Subscribe(conn *nats.Conn) error {
	_, err := conn.Subscribe(subjectAttitude, func(msg *nats.Msg) {
		var att pointing.Attitude
		if err := json.Unmarshal(msg.Data, &att); err != nil {
			log.Printf("[pointingd] bad attitude payload: %v", err)
			return
		}
		b.mu.Lock()
		b.attitude = att
		b.mu.Unlock()
	})
	if err != nil {
		return err
	}

	_, err = conn.Subscribe(subjectTarget, func(msg *nats.Msg) {
		var tgt pointing.Attitude
		if err := json.Unmarshal(msg.Data, &tgt); err != nil {
			log.Printf("[pointingd] bad target payload: %v", err)
			return
		}
		b.mu.Lock()
		b.target = tgt
		b.mu.Unlock()
	})
	return err
}

func (b *busSources) Current() pointing.Attitude {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attitude
}

func (b *busSources) TrackingAngles() (az, alt float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.target.Az, b.target.Alt
}

// gyroSample is the rate record as published on the bus for the estimator.
type gyroSample struct {
	Rate  pointing.Rate `json:"rate"`
	Temp  float64       `json:"temp"`
	Fresh bool          `json:"fresh"`
}

func publishJSON(conn *nats.Conn, subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[pointingd] encoding %s payload: %v", subject, err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		log.Printf("[pointingd] publishing %s: %v", subject, err)
	}
}
