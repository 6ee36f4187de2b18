package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/boiler-controller/internal/logic"
)

func testController() logic.Snapshot {
	return logic.Snapshot{
		Mode:        logic.ModeDegraded,
		WaterLevel:  512.5,
		SteamLevel:  4,
		ValveOpen:   false,
		LevelSensor: logic.Healthy,
		SteamSensor: logic.Healthy,
		Pumps: []logic.PumpStatus{
			{Open: true},
			{Open: false, Pump: logic.AwaitingRepair},
		},
		Counts: logic.Counts{Cycles: 42, Detections: 1},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{CycleMs: 5000, Broker: "tcp://localhost:1883", HTTPAddr: ":80", AlarmPin: -1}
	tr := NewTracker(start, "run-1", cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.RunID != "run-1" {
		t.Errorf("RunID: got %q, want run-1", snap.RunID)
	}
	if snap.Config.CycleMs != 5000 {
		t.Errorf("Config.CycleMs: got %d, want 5000", snap.Config.CycleMs)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if snap.Started {
		t.Error("expected Started=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	at := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)

	tr.Update(testController(), at)

	snap := tr.Snapshot()
	if !snap.Started {
		t.Error("expected Started=true")
	}
	if !snap.LastCycle.Equal(at) {
		t.Errorf("LastCycle: got %v, want %v", snap.LastCycle, at)
	}
	if snap.Controller.Mode != logic.ModeDegraded {
		t.Errorf("Mode: got %s, want DEGRADED", snap.Controller.Mode)
	}
	if snap.Controller.Counts.Cycles != 42 {
		t.Errorf("Cycles: got %d, want 42", snap.Controller.Counts.Cycles)
	}
}

func TestSetMQTT(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	tr.SetMQTT(true, 0, 2)
	snap := tr.Snapshot()
	if !snap.MQTTConnected || snap.Rejected != 2 {
		t.Errorf("unexpected MQTT state: connected=%v rejected=%d", snap.MQTTConnected, snap.Rejected)
	}

	tr.SetMQTT(false, 7, 2)
	snap = tr.Snapshot()
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
	if snap.MQTTBuffered != 7 {
		t.Errorf("MQTTBuffered: got %d, want 7", snap.MQTTBuffered)
	}
}

func TestSetAlarm(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	tr.SetAlarm(true)
	if !tr.Snapshot().AlarmOn {
		t.Error("expected AlarmOn=true")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	net := &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"}
	tr.SetNetwork(net)

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "", Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	tr.Update(logic.Snapshot{Mode: logic.ModeNormal}, time.Now())

	snap1 := tr.Snapshot()

	tr.Update(logic.Snapshot{Mode: logic.ModeEmergencyStop}, time.Now())

	if snap1.Controller.Mode != logic.ModeNormal {
		t.Error("snapshot should be a copy; Mode was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		RunID:         "abc",
		Controller:    testController(),
		Started:       true,
		LastCycle:     start.Add(15 * time.Minute),
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{CycleMs: 5000, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPAddr: ":80", AlarmPin: 17},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Mode != "DEGRADED" || s.Announcement != "DEGRADED" {
		t.Errorf("mode: got %q/%q, want DEGRADED", s.Mode, s.Announcement)
	}
	if s.WaterLevel == nil || *s.WaterLevel != 512.5 {
		t.Errorf("WaterLevel: got %v, want 512.5", s.WaterLevel)
	}
	if s.EstimatedLevel != nil {
		t.Error("estimate should be omitted outside RESCUE")
	}
	if s.Valve != "CLOSED" {
		t.Errorf("Valve: got %q, want CLOSED", s.Valve)
	}
	if len(s.Pumps) != 2 {
		t.Fatalf("expected 2 pumps, got %d", len(s.Pumps))
	}
	if !s.Pumps[0].Open || s.Pumps[0].Pump != "OK" {
		t.Errorf("pump 0: unexpected %+v", s.Pumps[0])
	}
	if s.Pumps[1].Index != 1 || s.Pumps[1].Pump != "AWAITING_REPAIR" {
		t.Errorf("pump 1: unexpected %+v", s.Pumps[1])
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Counts.Cycles != 42 || s.Counts.Detections != 1 {
		t.Errorf("unexpected counts: %+v", s.Counts)
	}
	if s.Config.AlarmPin != 17 {
		t.Errorf("Config.AlarmPin: got %d, want 17", s.Config.AlarmPin)
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONBeforeFirstCycle(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})

	if status["water_level"] != nil {
		t.Errorf("water_level: got %v, want null", status["water_level"])
	}
	if _, exists := status["last_cycle"]; exists {
		t.Error("last_cycle should be omitted before the first cycle")
	}
	if status["mode"] != "WAITING" {
		t.Errorf("mode: got %v, want WAITING", status["mode"])
	}
	if status["announcement"] != "INITIALISATION" {
		t.Errorf("announcement: got %v, want INITIALISATION", status["announcement"])
	}
}

func TestFormatJSONRescueEstimate(t *testing.T) {
	ctrl := testController()
	ctrl.Mode = logic.ModeRescue
	ctrl.LevelSensor = logic.AwaitingAck
	ctrl.EstimatedLevel = 475

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(Snapshot{Controller: ctrl, Started: true}), &parsed)

	if parsed.Status.EstimatedLevel == nil || *parsed.Status.EstimatedLevel != 475 {
		t.Errorf("EstimatedLevel: got %v, want 475", parsed.Status.EstimatedLevel)
	}
	if parsed.Status.LevelSensor != "AWAITING_ACK" {
		t.Errorf("LevelSensor: got %q", parsed.Status.LevelSensor)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Controller: testController(),
		Started:    true,
		StartTime:  start,
		Now:        start.Add(15 * time.Minute),
		Config:     Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.Mode != "DEGRADED" {
		t.Errorf("Mode: got %q, want DEGRADED", parsed.Status.Mode)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(Snapshot{}, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(Snapshot{}, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		Network: &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(logic.Snapshot{Counts: logic.Counts{Cycles: i}}, time.Now())
			tr.SetMQTT(i%2 == 0, i, 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
