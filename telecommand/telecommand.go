// Package telecommand exposes the controller's parameter edits over NATS.
// Each telecommand is a JSON payload on its own subject; requests receive a
// "+OK" or "ERR ..." reply so the ground station sees rejections.
package telecommand

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/stratoscope/pointing"
	"github.com/stratoscope/pointing/pid"
)

const (
	// SubjectSetGains carries change_pid_values: live edit of one axis's
	// active gains.
	SubjectSetGains = "pointing.tc.pid"
	// SubjectSetModeGains carries change_mode_pid_values: persistent edit
	// of one (axis, mode) cell.
	SubjectSetModeGains = "pointing.tc.pid.mode"
	// SubjectStabilization carries change_stabilization_mode: 1 loads the
	// stabilization gains, 0 the tracking gains.
	SubjectStabilization = "pointing.tc.stab"
	// SubjectReset carries pid_reset, with an empty payload.
	SubjectReset = "pointing.tc.reset"
)

type setGainsCmd struct {
	Motor int     `json:"motor"`
	Kp    float64 `json:"kp"`
	Ki    float64 `json:"ki"`
	Kd    float64 `json:"kd"`
}

type setModeGainsCmd struct {
	Motor int     `json:"motor"`
	Mode  int     `json:"mode"`
	Kp    float64 `json:"kp"`
	Ki    float64 `json:"ki"`
	Kd    float64 `json:"kd"`
}

type stabilizationCmd struct {
	On int `json:"on"`
}

// Server dispatches telecommands to a controller.
type Server struct {
	ctrl *pid.Controller
	subs []*nats.Subscription
}

func NewServer(ctrl *pid.Controller) *Server {
	return &Server{ctrl: ctrl}
}

// Subscribe registers handlers for all telecommand subjects on the given
// connection.
func (s *Server) Subscribe(conn *nats.Conn) error {
	handlers := map[string]func([]byte) error{
		SubjectSetGains:      s.setGains,
		SubjectSetModeGains:  s.setModeGains,
		SubjectStabilization: s.stabilization,
		SubjectReset:         s.reset,
	}

	for subject, handler := range handlers {
		h := handler
		sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
			reply(msg, h(msg.Data))
		})
		if err != nil {
			s.Close()
			return fmt.Errorf("error subscribing to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	return nil
}

// Close drops all subscriptions.
func (s *Server) Close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}

func reply(msg *nats.Msg, err error) {
	if msg.Reply == "" {
		if err != nil {
			log.Printf("[telecommand] %s rejected: %v", msg.Subject, err)
		}
		return
	}
	if err != nil {
		msg.Respond([]byte("ERR " + err.Error()))
		return
	}
	msg.Respond([]byte("+OK"))
}

func (s *Server) setGains(data []byte) error {
	var cmd setGainsCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("error decoding change_pid_values: %w", err)
	}
	return s.ctrl.SetGains(pointing.Axis(cmd.Motor), pointing.Gains{Kp: cmd.Kp, Ki: cmd.Ki, Kd: cmd.Kd})
}

func (s *Server) setModeGains(data []byte) error {
	var cmd setModeGainsCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("error decoding change_mode_pid_values: %w", err)
	}
	return s.ctrl.SetModeGains(pointing.Axis(cmd.Motor), pointing.Mode(cmd.Mode),
		pointing.Gains{Kp: cmd.Kp, Ki: cmd.Ki, Kd: cmd.Kd})
}

func (s *Server) stabilization(data []byte) error {
	var cmd stabilizationCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("error decoding change_stabilization_mode: %w", err)
	}

	switch cmd.On {
	case 1:
		return s.ctrl.ChangeMode(pointing.ModeStabilization)
	case 0:
		return s.ctrl.ChangeMode(pointing.ModeTracking)
	default:
		return fmt.Errorf("%w: on=%d, choose 1 for stabilization or 0 for tracking",
			pid.ErrInvalidMode, cmd.On)
	}
}

func (s *Server) reset([]byte) error {
	s.ctrl.Reset()
	return nil
}
