// Package config defines the controller configuration and its defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/evm-controller/internal/controller"
	"github.com/sweeney/evm-controller/internal/debounce"
	"github.com/sweeney/evm-controller/internal/gpio"
	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/meter"
	"github.com/sweeney/evm-controller/internal/metering"
	"github.com/sweeney/evm-controller/internal/queue"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	Pricing  Pricing  `koanf:"pricing"`
	Machine  Machine  `koanf:"machine"`
	Debounce Debounce `koanf:"debounce"`
	Metering Metering `koanf:"metering"`
	GPIO     GPIO     `koanf:"gpio"`
	MQTT     MQTT     `koanf:"mqtt"`
	HTTP     HTTP     `koanf:"http"`
}

// Pricing holds the energy price.
type Pricing struct {
	// PriceCents is the price of one kWh in cents, in (0, logic.MaxPriceCents].
	PriceCents uint64 `koanf:"price_cents_per_unit"`
}

// Machine holds control loop settings.
type Machine struct {
	UpdateInterval    time.Duration `koanf:"update_interval"`
	InactivityTimeout time.Duration `koanf:"inactivity_timeout"`
	QueueCapacity     int           `koanf:"queue_capacity"`
	RetryDelay        time.Duration `koanf:"retry_delay"`
}

// Debounce holds input filtering timings.
type Debounce struct {
	ButtonWindow  time.Duration `koanf:"button_window"`
	CheckInterval time.Duration `koanf:"check_interval"`
	PulseConfirm  time.Duration `koanf:"pulse_confirm"`
}

// Metering holds the meter bus and polling settings.
type Metering struct {
	Port         string        `koanf:"port"`
	Baud         int           `koanf:"baud"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	AddrLeft     uint8         `koanf:"addr_left"`
	AddrRight    uint8         `koanf:"addr_right"`
	PollInterval time.Duration `koanf:"poll_interval"`
	PushTimeout  time.Duration `koanf:"push_timeout"`
	ResetOnStart bool          `koanf:"reset_on_start"`
}

// GPIO holds the board wiring.
type GPIO struct {
	Chip string    `koanf:"chip"`
	Pins gpio.Pins `koanf:"pins"`
}

// MQTT holds the display bus settings. An empty broker disables it.
type MQTT struct {
	Broker     string        `koanf:"broker"`
	Topic      string        `koanf:"topic"`
	ClientID   string        `koanf:"client_id"`
	Heartbeat  time.Duration `koanf:"heartbeat"`
	BufferSize int           `koanf:"buffer_size"`
}

// HTTP holds the status server settings. An empty addr disables it.
type HTTP struct {
	Addr string `koanf:"addr"`
}

// Default returns the configuration of the reference machine.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Pricing: Pricing{
			PriceCents: 1000,
		},
		Machine: Machine{
			UpdateInterval:    controller.DefaultUpdateInterval,
			InactivityTimeout: controller.DefaultInactivityTimeout,
			QueueCapacity:     queue.DefaultCapacity,
			RetryDelay:        debounce.DefaultRetryDelay,
		},
		Debounce: Debounce{
			ButtonWindow:  debounce.DefaultButtonWindow,
			CheckInterval: debounce.DefaultCheckInterval,
			PulseConfirm:  debounce.DefaultPulseConfirm,
		},
		Metering: Metering{
			Port:         "/dev/serial0",
			Baud:         meter.DefaultBaudRate,
			ReadTimeout:  meter.DefaultReadTimeout,
			AddrLeft:     meter.AddrLeft,
			AddrRight:    meter.AddrRight,
			PollInterval: metering.DefaultPollInterval,
			PushTimeout:  metering.DefaultPushTimeout,
		},
		GPIO: GPIO{
			Chip: gpio.DefaultChip,
			Pins: gpio.DefaultPins,
		},
		MQTT: MQTT{
			Broker:    "tcp://localhost:1883",
			Heartbeat: 15 * time.Minute,
		},
		HTTP: HTTP{
			Addr: ":80",
		},
	}
}

// Validate checks the configuration. Every error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, err := logic.NewPricing(c.Pricing.PriceCents); err != nil {
		return fmt.Errorf("%w: pricing: %w", ErrInvalidConfig, err)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"machine.update_interval", c.Machine.UpdateInterval},
		{"machine.inactivity_timeout", c.Machine.InactivityTimeout},
		{"machine.retry_delay", c.Machine.RetryDelay},
		{"debounce.button_window", c.Debounce.ButtonWindow},
		{"debounce.check_interval", c.Debounce.CheckInterval},
		{"debounce.pulse_confirm", c.Debounce.PulseConfirm},
		{"metering.read_timeout", c.Metering.ReadTimeout},
		{"metering.poll_interval", c.Metering.PollInterval},
		{"metering.push_timeout", c.Metering.PushTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, d.name, d.d)
		}
	}
	if c.Metering.PushTimeout >= c.Metering.PollInterval {
		return fmt.Errorf("%w: metering.push_timeout %v must be below poll_interval %v",
			ErrInvalidConfig, c.Metering.PushTimeout, c.Metering.PollInterval)
	}
	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("%w: mqtt.heartbeat must not be negative", ErrInvalidConfig)
	}

	if c.Machine.QueueCapacity <= 0 {
		return fmt.Errorf("%w: machine.queue_capacity must be positive, got %d", ErrInvalidConfig, c.Machine.QueueCapacity)
	}
	if c.Metering.Baud <= 0 {
		return fmt.Errorf("%w: metering.baud must be positive, got %d", ErrInvalidConfig, c.Metering.Baud)
	}
	if err := validAddr("addr_left", c.Metering.AddrLeft); err != nil {
		return err
	}
	if err := validAddr("addr_right", c.Metering.AddrRight); err != nil {
		return err
	}
	if c.Metering.AddrLeft == c.Metering.AddrRight {
		return fmt.Errorf("%w: metering addresses must differ, both are 0x%02x", ErrInvalidConfig, c.Metering.AddrLeft)
	}

	if c.GPIO.Chip == "" {
		return fmt.Errorf("%w: gpio.chip must not be empty", ErrInvalidConfig)
	}
	if err := c.GPIO.Pins.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// validAddr accepts Modbus unicast slave addresses.
func validAddr(name string, a uint8) error {
	if a < 1 || a > 247 {
		return fmt.Errorf("%w: metering.%s 0x%02x outside 0x01..0xf7", ErrInvalidConfig, name, a)
	}
	return nil
}

// PricingModel returns the validated price model.
func (c *Config) PricingModel() (logic.Pricing, error) {
	p, err := logic.NewPricing(c.Pricing.PriceCents)
	if err != nil {
		return logic.Pricing{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return p, nil
}

// ControllerConfig returns the control loop timings.
func (c *Config) ControllerConfig() controller.Config {
	return controller.Config{
		UpdateInterval:    c.Machine.UpdateInterval,
		InactivityTimeout: c.Machine.InactivityTimeout,
	}
}

// DebounceConfig returns the input filter timings.
func (c *Config) DebounceConfig() debounce.Config {
	return debounce.Config{
		ButtonWindow:  c.Debounce.ButtonWindow,
		CheckInterval: c.Debounce.CheckInterval,
		PulseConfirm:  c.Debounce.PulseConfirm,
		RetryDelay:    c.Machine.RetryDelay,
	}
}

// MeteringConfig returns the polling settings.
func (c *Config) MeteringConfig() metering.Config {
	return metering.Config{
		PollInterval: c.Metering.PollInterval,
		PushTimeout:  c.Metering.PushTimeout,
		AddrLeft:     c.Metering.AddrLeft,
		AddrRight:    c.Metering.AddrRight,
		ResetOnStart: c.Metering.ResetOnStart,
	}
}
