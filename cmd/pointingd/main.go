package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stratoscope/pointing/gyro"
	"github.com/stratoscope/pointing/pid"
	"github.com/stratoscope/pointing/telecommand"
	"github.com/stratoscope/pointing/telemetry"
)

func main() {
	cfg := NewFromEnv()
	flag.StringVar(&cfg.SerialPort, "serial", cfg.SerialPort, "Gyroscope UART device")
	flag.StringVar(&cfg.NATSURL, "nats", cfg.NATSURL, "NATS server URL")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "Telemetry websocket listen address")
	flag.StringVar(&cfg.TopDir, "topdir", cfg.TopDir, "Base directory for output/logs")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("[pointingd] %v", err)
	}
}

func run(ctx context.Context, cfg Config) error {
	logDir := filepath.Join(cfg.TopDir, "output", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("[pointingd] failed to create log directory: %v", err)
	}

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("pointing-core"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("[pointingd] NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[pointingd] NATS reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Telemetry: CSV trace plus the live websocket stream. A missing trace
	// file is logged and the controller starts without it.
	var sinks telemetry.Multi
	csvSink, err := telemetry.OpenCSV(filepath.Join(logDir, "pid.log"))
	if err != nil {
		log.Printf("[pid] failed to open log file: %v", err)
	} else {
		defer csvSink.Close()
		sinks = append(sinks, csvSink)
	}

	hub := telemetry.NewHub()
	go hub.Run(ctx)
	sinks = append(sinks, hub)

	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", hub.HandleWebSocket)
		go func() {
			if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
				log.Printf("[pointingd] telemetry server: %v", err)
			}
		}()
	}

	sources := &busSources{}
	if err := sources.Subscribe(conn); err != nil {
		return err
	}

	ctrl, err := pid.New(pid.Config{
		Tick:               cfg.Tick,
		StepsPerRevolution: cfg.StepsPerRevolution,
		MicroStepFactor:    cfg.MicroStepFactor,
		GearboxRatio:       cfg.GearboxRatio,
	}, sources, sinks)
	if err != nil {
		return err
	}

	tc := telecommand.NewServer(ctrl)
	if err := tc.Subscribe(conn); err != nil {
		return err
	}
	defer tc.Close()

	record := gyro.NewRecord()
	if cfg.SerialPort != "" {
		if err := startPoller(ctx, cfg, logDir, record, conn); err != nil {
			return err
		}
	} else {
		log.Printf("[gyro] no UART configured, poller disabled")
	}

	// Control loop. The ticker is the fixed-period scheduler; cancellation
	// is the transition to reset.
	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	log.Printf("[pointingd] control loop running, tick %s", cfg.Tick)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[pointingd] shutting down")
			return nil
		case <-ticker.C:
			steps := ctrl.Update(sources.Current())
			publishJSON(conn, subjectMotor, steps)
		}
	}
}

// startPoller opens the UART and trigger line and launches the gyro poller
// plus a bus publisher for the rate record. UART setup failure is fatal.
func startPoller(ctx context.Context, cfg Config, logDir string, record *gyro.Record, conn *nats.Conn) error {
	port, err := gyro.Open(cfg.SerialPort)
	if err != nil {
		return err
	}

	var trig gyro.Trigger = gyro.NopTrigger{}
	if cfg.TriggerPin >= 0 {
		pin, err := gyro.ExportPin(cfg.TriggerPin)
		if err != nil {
			return err
		}
		trig = pin
	}

	var trace io.Writer
	f, err := os.OpenFile(filepath.Join(logDir, "gyro.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[gyro] failed to open gyro log file: %v", err)
	} else {
		trace = f
	}

	poller := gyro.NewPoller(port, trig, record, cfg.GyroSample, trace)
	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[gyro] poller stopped: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.GyroSample)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rate, fresh := record.Rate()
				publishJSON(conn, subjectGyro, gyroSample{Rate: rate, Temp: record.Temp(), Fresh: fresh})
			}
		}
	}()

	return nil
}
