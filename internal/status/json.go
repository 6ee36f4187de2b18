package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/boiler-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	RunID          string       `json:"run_id"`
	Mode           string       `json:"mode"`
	Announcement   string       `json:"announcement"`
	WaterLevel     *float64     `json:"water_level"`
	SteamLevel     *float64     `json:"steam_level"`
	EstimatedLevel *float64     `json:"estimated_level,omitempty"`
	Valve          string       `json:"valve"`
	Alarm          bool         `json:"alarm"`
	LevelSensor    string       `json:"level_sensor"`
	SteamSensor    string       `json:"steam_sensor"`
	Pumps          []PumpJSON   `json:"pumps"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	LastCycle      string       `json:"last_cycle,omitempty"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Counts         CountsJSON   `json:"counts"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// PumpJSON is the JSON representation of one pump and its controller.
type PumpJSON struct {
	Index      int    `json:"index"`
	Open       bool   `json:"open"`
	Pump       string `json:"pump"`
	Controller string `json:"controller"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
	Rejected  int    `json:"rejected"`
}

// CountsJSON is the JSON representation of controller counters.
type CountsJSON struct {
	Cycles               int `json:"cycles"`
	TransmissionFailures int `json:"transmission_failures"`
	Detections           int `json:"detections"`
	Repairs              int `json:"repairs"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	CycleMs     int64      `json:"cycle_ms"`
	HeartbeatMs int64      `json:"heartbeat_ms"`
	Broker      string     `json:"broker"`
	HTTPAddr    string     `json:"http_addr"`
	AlarmPin    int        `json:"alarm_pin"`
	Journal     string     `json:"journal,omitempty"`
	Boiler      BoilerJSON `json:"boiler"`
}

// BoilerJSON is the JSON representation of the boiler characteristics.
type BoilerJSON struct {
	Pumps          int     `json:"pumps"`
	PumpCapacity   float64 `json:"pump_capacity"`
	Capacity       float64 `json:"capacity"`
	MaxSteamRate   float64 `json:"max_steam_rate"`
	MinNormalLevel float64 `json:"min_normal_level"`
	MaxNormalLevel float64 `json:"max_normal_level"`
	MinLimitLevel  float64 `json:"min_limit_level"`
	MaxLimitLevel  float64 `json:"max_limit_level"`
}

// ValveState renders the believed valve position.
func ValveState(open bool) string {
	if open {
		return "OPEN"
	}
	return "CLOSED"
}

func buildInner(snap Snapshot) StatusInner {
	ctrl := snap.Controller
	inner := StatusInner{
		RunID:         snap.RunID,
		Mode:          ctrl.Mode.String(),
		Announcement:  string(ctrl.Mode.Announcement()),
		Valve:         ValveState(ctrl.ValveOpen),
		Alarm:         snap.AlarmOn,
		LevelSensor:   ctrl.LevelSensor.String(),
		SteamSensor:   ctrl.SteamSensor.String(),
		Pumps:         make([]PumpJSON, len(ctrl.Pumps)),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Buffered:  snap.MQTTBuffered,
			Rejected:  snap.Rejected,
		},
		Counts: CountsJSON{
			Cycles:               ctrl.Counts.Cycles,
			TransmissionFailures: ctrl.Counts.TransmissionFailures,
			Detections:           ctrl.Counts.Detections,
			Repairs:              ctrl.Counts.Repairs,
		},
		Config: buildConfig(snap.Config),
	}

	// Readings are unknown until the first cycle has run.
	if snap.Started {
		water, steam := ctrl.WaterLevel, ctrl.SteamLevel
		inner.WaterLevel = &water
		inner.SteamLevel = &steam
		inner.LastCycle = snap.LastCycle.UTC().Format(time.RFC3339)
	}
	if ctrl.Mode == logic.ModeRescue {
		est := ctrl.EstimatedLevel
		inner.EstimatedLevel = &est
	}
	for i, p := range ctrl.Pumps {
		inner.Pumps[i] = PumpJSON{
			Index:      i,
			Open:       p.Open,
			Pump:       p.Pump.String(),
			Controller: p.Controller.String(),
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

func buildConfig(cfg Config) ConfigJSON {
	b := cfg.Boiler
	return ConfigJSON{
		CycleMs:     cfg.CycleMs,
		HeartbeatMs: cfg.HeartbeatMs,
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		AlarmPin:    cfg.AlarmPin,
		Journal:     cfg.Journal,
		Boiler: BoilerJSON{
			Pumps:          b.Pumps,
			PumpCapacity:   b.PumpCapacity,
			Capacity:       b.Capacity,
			MaxSteamRate:   b.MaxSteamRate,
			MinNormalLevel: b.MinNormalLevel,
			MaxNormalLevel: b.MaxNormalLevel,
			MinLimitLevel:  b.MinLimitLevel,
			MaxLimitLevel:  b.MaxLimitLevel,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
