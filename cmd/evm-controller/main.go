// Command evm-controller runs the control core of a dual-outlet electricity
// vending machine: coin and bill credit, outlet selection, metered billing
// and relay control.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sweeney/evm-controller/internal/config"
	"github.com/sweeney/evm-controller/internal/gpio"
	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/meter"
	"github.com/sweeney/evm-controller/internal/mqtt"
)

// version is shown on the status page and in the startup log.
const version = "0.1"

func main() {
	configPath := flag.String("config", "", "YAML config file (default $"+config.EnvFile+")")
	printState := flag.Bool("print-state", false, "Print input levels and meter registers and exit")
	flag.Parse()

	// Invalid configuration, including an out-of-range price, is fatal.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, *printState, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func run(cfg *config.Config, printState bool, log *zap.Logger) error {
	pricing, err := cfg.PricingModel()
	if err != nil {
		return err
	}

	board, err := gpio.NewRealBoard(cfg.GPIO.Chip, cfg.GPIO.Pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	port, err := meter.OpenSerial(cfg.Metering.Port, cfg.Metering.Baud, cfg.Metering.ReadTimeout)
	if err != nil {
		return fmt.Errorf("open meter bus: %w", err)
	}
	defer port.Close()
	meters := meter.NewPZEM(port)

	if printState {
		return printStateTo(os.Stdout, board, meters, cfg)
	}

	log.Info("EVM VERSION "+version,
		zap.Uint64("price_cents", pricing.PriceCents()),
		zap.String("chip", cfg.GPIO.Chip),
		zap.String("meter_port", cfg.Metering.Port),
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("http", cfg.HTTP.Addr))

	var pub mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			FrameTopic: cfg.MQTT.Topic,
			BufferSize: cfg.MQTT.BufferSize,
		}, log.Named("mqtt"))
		if err != nil {
			// The display bus is optional; vending continues without it.
			log.Warn("mqtt disabled", zap.Error(err))
		} else {
			pub = p
			defer p.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a := newApp(cfg, pricing, board, meters, pub, log)
	return a.run(sigCh)
}

// printStateTo writes the input levels and meter registers once. It runs
// before any metering pipeline exists, so the calling goroutine is the
// only user of the meter bus.
func printStateTo(w io.Writer, board gpio.Board, m meter.Meter, cfg *config.Config) error {
	for _, line := range gpio.Inputs {
		on, err := board.Asserted(line)
		if err != nil {
			return fmt.Errorf("read %s: %w", line, err)
		}
		fmt.Fprintf(w, "%s: %s\n", line, stateString(on))
	}

	addrs := [2]uint8{cfg.Metering.AddrLeft, cfg.Metering.AddrRight}
	for i, side := range logic.Sides {
		wh, err := m.ReadEnergy(addrs[i])
		if err != nil {
			fmt.Fprintf(w, "meter %s (0x%02x): error: %v\n", side, addrs[i], err)
			continue
		}
		fmt.Fprintf(w, "meter %s (0x%02x): %d Wh\n", side, addrs[i], wh)
	}
	return nil
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
