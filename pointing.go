package pointing

// Axis identifies one of the two gimbal axes. The numeric values match the
// motor ids used on the telecommand link: 1 for azimuth, 2 for altitude.
type Axis int

const (
	AxisUnknown Axis = iota
	AxisAz
	AxisAlt
)

func (a Axis) String() string {
	switch a {
	case AxisAz:
		return "az"
	case AxisAlt:
		return "alt"
	default:
		fallthrough
	case AxisUnknown:
		return "unknown"
	}
}

// Valid reports whether the axis is one of the two real axes.
func (a Axis) Valid() bool {
	return a == AxisAz || a == AxisAlt
}

// Mode is the gain-scheduling mode of the controller. The numeric values
// match the mode ids used on the telecommand link: 1 for tracking, 2 for
// stabilization.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeTracking
	ModeStabilization
)

func (m Mode) String() string {
	switch m {
	case ModeTracking:
		return "tracking"
	case ModeStabilization:
		return "stabilization"
	default:
		fallthrough
	case ModeUnknown:
		return "unknown"
	}
}

// Valid reports whether the mode is one of the two schedulable modes.
func (m Mode) Valid() bool {
	return m == ModeTracking || m == ModeStabilization
}

// Gains is one PID parameter set.
type Gains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// Attitude is a pointing direction in degrees.
type Attitude struct {
	Az  float64 `json:"az"`
	Alt float64 `json:"alt"`
}

// MotorStep is one tick's commanded step delta for both stepper motors,
// in raw steps.
type MotorStep struct {
	Az  int `json:"az"`
	Alt int `json:"alt"`
}

// Rate is an angular-rate sample from the gyroscope, in degrees per second.
type Rate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// AttitudeSource provides the fused current attitude. The attitude estimator
// lives in another process; the control loop only reads its latest output.
type AttitudeSource interface {
	Current() Attitude
}

// TargetSource provides the designated target angles from the tracking
// subsystem.
type TargetSource interface {
	TrackingAngles() (az, alt float64)
}
