// Package config loads the controller's YAML configuration: the boiler
// characteristics and the daemon settings around them.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/boiler-controller/internal/gpio"
	"github.com/sweeney/boiler-controller/internal/logging"
	"github.com/sweeney/boiler-controller/internal/logic"
)

// ErrInvalid is returned when a configuration value is out of range.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	Boiler  Boiler  `yaml:"boiler"`
	Daemon  Daemon  `yaml:"daemon"`
	MQTT    MQTT    `yaml:"mqtt"`
	Alarm   Alarm   `yaml:"alarm"`
	Journal Journal `yaml:"journal"`
	Log     Log     `yaml:"log"`
}

// Boiler describes the physical boiler.
type Boiler struct {
	Pumps          int     `yaml:"pumps"`
	PumpCapacity   float64 `yaml:"pump_capacity"`
	Capacity       float64 `yaml:"capacity"`
	MaxSteamRate   float64 `yaml:"max_steam_rate"`
	MinNormalLevel float64 `yaml:"min_normal_level"`
	MaxNormalLevel float64 `yaml:"max_normal_level"`
	MinLimitLevel  float64 `yaml:"min_limit_level"`
	MaxLimitLevel  float64 `yaml:"max_limit_level"`
}

// Daemon holds cycle timing and the HTTP status address.
type Daemon struct {
	Cycle     time.Duration `yaml:"cycle"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables
	HTTPAddr  string        `yaml:"http_addr"` // empty disables
}

// MQTT holds broker settings.
type MQTT struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"` // empty = derived from the run ID
	BufferSize int    `yaml:"buffer_size"`
}

// Alarm holds the GPIO output raised during emergency stop.
type Alarm struct {
	Pin       int    `yaml:"pin"` // -1 disables
	Chip      string `yaml:"chip"`
	ActiveLow bool   `yaml:"active_low"`
}

// Journal holds the SQLite cycle journal location.
type Journal struct {
	Path string `yaml:"path"` // empty disables
}

// Log holds logger settings.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration for the classic four-pump boiler.
func Default() Config {
	return Config{
		Boiler: Boiler{
			Pumps:          4,
			PumpCapacity:   10,
			Capacity:       1000,
			MaxSteamRate:   30,
			MinNormalLevel: 200,
			MaxNormalLevel: 800,
			MinLimitLevel:  100,
			MaxLimitLevel:  900,
		},
		Daemon: Daemon{
			Cycle:     5 * time.Second,
			Heartbeat: 15 * time.Minute,
			HTTPAddr:  ":80",
		},
		MQTT: MQTT{
			Broker:     "tcp://192.168.1.200:1883",
			BufferSize: 256,
		},
		Alarm: Alarm{
			Pin:  -1,
			Chip: gpio.DefaultChip,
		},
		Log: Log{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse overlays YAML from r onto the defaults.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	if err := decode(r, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Characteristics converts the boiler section for the controller.
func (c Config) Characteristics() logic.Characteristics {
	b := c.Boiler
	return logic.Characteristics{
		Pumps:          b.Pumps,
		PumpCapacity:   b.PumpCapacity,
		Capacity:       b.Capacity,
		MaxSteamRate:   b.MaxSteamRate,
		MinNormalLevel: b.MinNormalLevel,
		MaxNormalLevel: b.MaxNormalLevel,
		MinLimitLevel:  b.MinLimitLevel,
		MaxLimitLevel:  b.MaxLimitLevel,
	}
}

// Validate checks every section. Errors wrap ErrInvalid.
func (c Config) Validate() error {
	if err := c.Characteristics().Validate(); err != nil {
		return fmt.Errorf("%w: boiler: %v", ErrInvalid, err)
	}
	switch {
	case c.Daemon.Cycle <= 0:
		return fmt.Errorf("%w: daemon.cycle must be positive", ErrInvalid)
	case c.Daemon.Heartbeat < 0:
		return fmt.Errorf("%w: daemon.heartbeat must not be negative", ErrInvalid)
	case c.MQTT.Broker == "":
		return fmt.Errorf("%w: mqtt.broker is required", ErrInvalid)
	case c.MQTT.BufferSize < 1:
		return fmt.Errorf("%w: mqtt.buffer_size must be at least 1", ErrInvalid)
	case c.Alarm.Pin < -1:
		return fmt.Errorf("%w: alarm.pin must be -1 (disabled) or a line number", ErrInvalid)
	case c.Alarm.Pin >= 0 && c.Alarm.Chip == "":
		return fmt.Errorf("%w: alarm.chip is required when alarm.pin is set", ErrInvalid)
	case !logging.ValidLevel(c.Log.Level):
		return fmt.Errorf("%w: log.level %q (want debug, info, warn or error)", ErrInvalid, c.Log.Level)
	case !logging.ValidFormat(c.Log.Format):
		return fmt.Errorf("%w: log.format %q (want console or json)", ErrInvalid, c.Log.Format)
	}
	return nil
}

// YAML renders the configuration, used by --print-config.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
