package main

import (
	"os"
	"strconv"
	"time"
)

// Config holds the daemon's wiring parameters. Values come from the
// environment with flag overrides in main.
type Config struct {
	// SerialPort is the gyroscope UART device. Empty disables the poller.
	SerialPort string
	// TriggerPin is the sysfs GPIO number of the gyro conversion strobe.
	// Negative disables the strobe.
	TriggerPin int
	// NATSURL is the bus carrying attitude, targets, telecommands and
	// motor output.
	NATSURL string
	// HTTPAddr serves the live telemetry websocket. Empty disables it.
	HTTPAddr string
	// TopDir is the host-supplied base directory for output/logs.
	TopDir string

	// Tick is the control period; GyroSample the poll period.
	Tick       time.Duration
	GyroSample time.Duration

	// Motor train constants.
	StepsPerRevolution float64
	MicroStepFactor    float64
	GearboxRatio       float64
}

// NewFromEnv builds a Config from POINTING_* environment variables, with
// shipped defaults for anything unset.
func NewFromEnv() Config {
	return Config{
		SerialPort:         os.Getenv("POINTING_SERIAL_PORT"),
		TriggerPin:         envInt("POINTING_TRIGGER_PIN", -1),
		NATSURL:            envString("POINTING_NATS_URL", "nats://127.0.0.1:4222"),
		HTTPAddr:           envString("POINTING_HTTP_ADDR", ":8080"),
		TopDir:             envString("POINTING_TOP_DIR", "."),
		Tick:               envDuration("POINTING_TICK", 10*time.Millisecond),
		GyroSample:         envDuration("POINTING_GYRO_SAMPLE", 10*time.Millisecond),
		StepsPerRevolution: envFloat("POINTING_STEPS_PER_REV", 200),
		MicroStepFactor:    envFloat("POINTING_MICRO_STEP", 16),
		GearboxRatio:       envFloat("POINTING_GEARBOX_RATIO", 24),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
