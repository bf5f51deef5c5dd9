package telecommand

import (
	"errors"
	"testing"

	"github.com/stratoscope/pointing"
	"github.com/stratoscope/pointing/pid"
)

type fixedTarget struct{}

func (fixedTarget) TrackingAngles() (float64, float64) { return 0, 0 }

func newTestServer(t *testing.T) (*Server, *pid.Controller) {
	t.Helper()
	ctrl, err := pid.New(pid.DefaultConfig(), fixedTarget{}, nil)
	if err != nil {
		t.Fatalf("unexpected error creating controller: %v", err)
	}
	return NewServer(ctrl), ctrl
}

func TestSetGainsCommand(t *testing.T) {
	s, ctrl := newTestServer(t)

	err := s.setGains([]byte(`{"motor":1,"kp":0.5,"ki":0.05,"kd":0.005}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g, _ := ctrl.Gains(pointing.AxisAz)
	expected := pointing.Gains{Kp: 0.5, Ki: 0.05, Kd: 0.005}
	if g != expected {
		t.Errorf("expected=%+v, got=%+v", expected, g)
	}
}

func TestSetModeGainsCommand(t *testing.T) {
	s, ctrl := newTestServer(t)

	err := s.setModeGains([]byte(`{"motor":2,"mode":2,"kp":0.2,"ki":0.02,"kd":0.002}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := ctrl.StoredGains(pointing.AxisAlt, pointing.ModeStabilization)
	expected := pointing.Gains{Kp: 0.2, Ki: 0.02, Kd: 0.002}
	if stored != expected {
		t.Errorf("expected=%+v, got=%+v", expected, stored)
	}

	// active gains are untouched until the mode is entered
	active, _ := ctrl.Gains(pointing.AxisAlt)
	if active == expected {
		t.Errorf("expected active gains untouched, got=%+v", active)
	}
}

func TestStabilizationCommand(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected pointing.Mode
	}{
		{"On", `{"on":1}`, pointing.ModeStabilization},
		{"Off", `{"on":0}`, pointing.ModeTracking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ctrl := newTestServer(t)
			if err := s.stabilization([]byte(tt.payload)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ctrl.Mode() != tt.expected {
				t.Errorf("expected mode=%v, got=%v", tt.expected, ctrl.Mode())
			}
		})
	}
}

func TestResetCommand(t *testing.T) {
	s, ctrl := newTestServer(t)

	ctrl.Update(pointing.Attitude{Az: -5, Alt: -5})
	if err := s.reset(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prev, cur, _ := ctrl.State(pointing.AxisAz)
	if prev.Integral != 0 || cur.Integral != 0 {
		t.Errorf("expected zeroed integral, got prev=%v cur=%v", prev.Integral, cur.Integral)
	}
}

func TestRejectedCommands(t *testing.T) {
	tests := []struct {
		name     string
		run      func(*Server) error
		expected error
	}{
		{
			"SetGainsBadMotor",
			func(s *Server) error { return s.setGains([]byte(`{"motor":3,"kp":1,"ki":1,"kd":1}`)) },
			pid.ErrInvalidAxis,
		},
		{
			"SetModeGainsBadMode",
			func(s *Server) error { return s.setModeGains([]byte(`{"motor":1,"mode":0,"kp":1}`)) },
			pid.ErrInvalidMode,
		},
		{
			"StabilizationBadSelector",
			func(s *Server) error { return s.stabilization([]byte(`{"on":2}`)) },
			pid.ErrInvalidMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ctrl := newTestServer(t)
			before, _ := ctrl.Gains(pointing.AxisAz)

			err := tt.run(s)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected error %v, got=%v", tt.expected, err)
			}

			after, _ := ctrl.Gains(pointing.AxisAz)
			if after != before {
				t.Errorf("expected gains unchanged, got=%+v", after)
			}
			if ctrl.Mode() != pointing.ModeTracking {
				t.Errorf("expected mode unchanged, got=%v", ctrl.Mode())
			}
		})
	}
}

func TestMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Server) error
	}{
		{"SetGains", func(s *Server) error { return s.setGains([]byte(`not json`)) }},
		{"SetModeGains", func(s *Server) error { return s.setModeGains([]byte(`{`)) }},
		{"Stabilization", func(s *Server) error { return s.stabilization([]byte(``)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			if err := tt.run(s); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
