package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags are command-line overrides for the most commonly changed settings.
type Flags struct {
	fs *pflag.FlagSet

	broker    *string
	httpAddr  *string
	cycle     *time.Duration
	heartbeat *time.Duration
	alarmPin  *int
	journal   *string
	logLevel  *string
	logFormat *string
}

// RegisterFlags adds the override flags to fs. Defaults shown in help text
// are the built-in ones; only flags set explicitly override the file.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	d := Default()
	return &Flags{
		fs:        fs,
		broker:    fs.String("broker", d.MQTT.Broker, "MQTT broker address"),
		httpAddr:  fs.String("http", d.Daemon.HTTPAddr, "HTTP status server address (empty to disable)"),
		cycle:     fs.Duration("cycle", d.Daemon.Cycle, "control cycle period"),
		heartbeat: fs.Duration("heartbeat", d.Daemon.Heartbeat, "heartbeat interval (0 to disable)"),
		alarmPin:  fs.Int("alarm-pin", d.Alarm.Pin, "GPIO line raised during emergency stop (-1 to disable)"),
		journal:   fs.String("journal", d.Journal.Path, "SQLite cycle journal path (empty to disable)"),
		logLevel:  fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)"),
		logFormat: fs.String("log-format", d.Log.Format, "log format (console or json)"),
	}
}

// Apply copies every explicitly set flag onto cfg.
func (f *Flags) Apply(cfg *Config) {
	if f.fs.Changed("broker") {
		cfg.MQTT.Broker = *f.broker
	}
	if f.fs.Changed("http") {
		cfg.Daemon.HTTPAddr = *f.httpAddr
	}
	if f.fs.Changed("cycle") {
		cfg.Daemon.Cycle = *f.cycle
	}
	if f.fs.Changed("heartbeat") {
		cfg.Daemon.Heartbeat = *f.heartbeat
	}
	if f.fs.Changed("alarm-pin") {
		cfg.Alarm.Pin = *f.alarmPin
	}
	if f.fs.Changed("journal") {
		cfg.Journal.Path = *f.journal
	}
	if f.fs.Changed("log-level") {
		cfg.Log.Level = *f.logLevel
	}
	if f.fs.Changed("log-format") {
		cfg.Log.Format = *f.logFormat
	}
}
