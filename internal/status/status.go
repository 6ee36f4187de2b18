// Package status provides a thread-safe status tracker for the boiler-controller daemon.
// It is read by HTTP handlers and by the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/boiler-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	CycleMs     int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	AlarmPin    int    // -1 = disabled
	Journal     string // empty = disabled
	Boiler      logic.Characteristics
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	RunID         string
	Controller    logic.Snapshot
	Started       bool // at least one cycle has run
	LastCycle     time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTBuffered  int
	Rejected      int // inbound messages that failed to decode
	AlarmOn       bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, run ID and config.
func NewTracker(startTime time.Time, runID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			RunID:     runID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the controller state reached by the cycle that ran at.
// Called from runLoop on every tick. ctrl must not be modified afterwards.
func (t *Tracker) Update(ctrl logic.Snapshot, at time.Time) {
	t.mu.Lock()
	t.snap.Controller = ctrl
	t.snap.Started = true
	t.snap.LastCycle = at
	t.mu.Unlock()
}

// SetMQTT sets the MQTT connection status and offline buffer depth.
func (t *Tracker) SetMQTT(connected bool, buffered, rejected int) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.MQTTBuffered = buffered
	t.snap.Rejected = rejected
	t.mu.Unlock()
}

// SetAlarm records the state of the alarm output.
func (t *Tracker) SetAlarm(on bool) {
	t.mu.Lock()
	t.snap.AlarmOn = on
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
