package internal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/boiler-controller/internal/gpio"
	"github.com/sweeney/boiler-controller/internal/journal"
	"github.com/sweeney/boiler-controller/internal/logic"
	"github.com/sweeney/boiler-controller/internal/metrics"
	"github.com/sweeney/boiler-controller/internal/mqtt"
	"github.com/sweeney/boiler-controller/internal/status"
)

// plant simulates the physical units at the far end of the MQTT link: it
// reports readings, obeys pump and valve commands, and integrates the water
// balance over each cycle.
type plant struct {
	chars logic.Characteristics

	level     float64
	steam     float64
	pumps     []bool
	valveOpen bool

	levelBroken bool
	running     bool
	pending     []logic.Message
}

func newPlant(chars logic.Characteristics, level float64) *plant {
	return &plant{
		chars:   chars,
		level:   level,
		pumps:   make([]bool, chars.Pumps),
		pending: []logic.Message{logic.Signal(logic.KindSteamBoilerWaiting)},
	}
}

// report builds this cycle's inbound payload.
func (p *plant) report(t *testing.T, cycle int, at time.Time) []byte {
	t.Helper()
	level := p.level
	if p.levelBroken {
		level = -1
	}
	msgs := []logic.Message{
		logic.Reading(logic.KindLevel, level),
		logic.Reading(logic.KindSteam, p.steam),
	}
	for i, open := range p.pumps {
		msgs = append(msgs,
			logic.PumpReport(logic.KindPumpState, i, open),
			logic.PumpReport(logic.KindPumpControlState, i, open))
	}
	msgs = append(msgs, p.pending...)
	p.pending = nil

	payload, err := mqtt.FormatBatch(mqtt.Batch{Cycle: cycle, Timestamp: at, Messages: msgs})
	if err != nil {
		t.Fatalf("cycle %d: format inbound: %v", cycle, err)
	}
	return payload
}

// apply obeys the controller's commands and advances the physics by one cycle.
func (p *plant) apply(out []logic.Message) {
	for _, m := range out {
		switch m.Kind {
		case logic.KindOpenPump:
			p.pumps[m.Pump] = true
		case logic.KindClosePump:
			p.pumps[m.Pump] = false
		case logic.KindValve:
			p.valveOpen = !p.valveOpen
		case logic.KindProgramReady:
			if !p.running {
				p.pending = append(p.pending, logic.Signal(logic.KindPhysicalUnitsReady))
				p.running = true
			}
		case logic.KindLevelFailureDetection:
			p.pending = append(p.pending, logic.Signal(logic.KindLevelFailureAck))
		}
	}

	open := 0
	for _, o := range p.pumps {
		if o {
			open++
		}
	}
	p.level += logic.CycleLength * (p.chars.PumpCapacity*float64(open) - p.steam)
	if p.valveOpen {
		p.level -= logic.CycleLength * 10
	}
	if p.running {
		p.steam = 10
	}
}

type rig struct {
	t       *testing.T
	plant   *plant
	ctrl    *logic.Controller
	inbox   *mqtt.Inbox
	tracker *status.Tracker
	journal *journal.Journal
	metrics *metrics.Metrics
	alarm   *gpio.FakeAlarm
	follow  *gpio.Follower
	now     time.Time
	modes   []logic.Mode
	outs    [][]logic.Message
}

func newRig(t *testing.T, level float64) *rig {
	t.Helper()
	chars := logic.Characteristics{
		Pumps: 4, PumpCapacity: 10, Capacity: 1000, MaxSteamRate: 30,
		MinNormalLevel: 200, MaxNormalLevel: 800, MinLimitLevel: 100, MaxLimitLevel: 900,
	}
	ctrl, err := logic.NewController(chars)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	alarm := gpio.NewFakeAlarm()
	return &rig{
		t:       t,
		plant:   newPlant(chars, level),
		ctrl:    ctrl,
		inbox:   mqtt.NewInbox(nil),
		tracker: status.NewTracker(start, "run-int", status.Config{CycleMs: 5000, Boiler: chars, AlarmPin: -1}),
		journal: j,
		metrics: metrics.New(),
		alarm:   alarm,
		follow:  gpio.NewFollower(alarm),
		now:     start,
	}
}

// step runs one full cycle through the wire codec, the same way the daemon does.
func (r *rig) step() logic.Snapshot {
	r.t.Helper()
	cycle := len(r.modes) + 1
	r.now = r.now.Add(5 * time.Second)

	r.inbox.Deliver(r.plant.report(r.t, cycle, r.now))
	in := r.inbox.Drain()
	out := r.ctrl.Clock(in)
	snap := r.ctrl.Snapshot()

	payload, err := mqtt.FormatBatch(mqtt.Batch{Cycle: cycle, Timestamp: r.now, Messages: out})
	if err != nil {
		r.t.Fatalf("cycle %d: format outbound: %v", cycle, err)
	}
	parsed, rejected, err := mqtt.ParseBatch(payload)
	if err != nil || len(rejected) > 0 {
		r.t.Fatalf("cycle %d: outbound did not round-trip: %v %v", cycle, err, rejected)
	}
	r.plant.apply(parsed.Messages)

	if err := r.follow.Update(snap.Mode == logic.ModeEmergencyStop); err != nil {
		r.t.Fatalf("alarm: %v", err)
	}
	r.tracker.Update(snap, r.now)
	r.tracker.SetAlarm(r.follow.On())
	if err := r.journal.Record(context.Background(), journal.FromCycle("run-int", r.now, snap, in, out)); err != nil {
		r.t.Fatalf("journal: %v", err)
	}
	r.metrics.ObserveCycle(snap, in, out, time.Millisecond)

	r.modes = append(r.modes, snap.Mode)
	r.outs = append(r.outs, out)
	return snap
}

func (r *rig) sawMode(m logic.Mode) bool {
	for _, got := range r.modes {
		if got == m {
			return true
		}
	}
	return false
}

func (r *rig) sent(want logic.Message) bool {
	for _, out := range r.outs {
		for _, m := range out {
			if m == want {
				return true
			}
		}
	}
	return false
}

// TestIntegrationFillAndRegulate starts below the normal band, fills, hands
// over to the plant and then regulates for a while.
func TestIntegrationFillAndRegulate(t *testing.T) {
	r := newRig(t, 150)

	for i := 0; i < 30; i++ {
		r.step()
	}

	if !r.sawMode(logic.ModeReady) {
		t.Errorf("expected a READY cycle, got %v", r.modes)
	}
	if got := r.modes[len(r.modes)-1]; got != logic.ModeNormal {
		t.Fatalf("final mode: got %s, want NORMAL (modes %v)", got, r.modes)
	}
	if r.sawMode(logic.ModeEmergencyStop) || r.sawMode(logic.ModeDegraded) {
		t.Errorf("unexpected fault mode: %v", r.modes)
	}
	if !r.sent(logic.Indexed(logic.KindOpenPump, 0)) {
		t.Error("expected pumps to be opened while filling")
	}

	lvl := r.plant.level
	if lvl <= 200 || lvl >= 800 {
		t.Errorf("plant level %v left the normal band", lvl)
	}
	if r.alarm.Writes() != 1 || r.alarm.On() {
		t.Errorf("alarm: writes=%d on=%v", r.alarm.Writes(), r.alarm.On())
	}

	n, err := r.journal.Count(context.Background())
	if err != nil || n != 30 {
		t.Errorf("journal count: got %d (%v), want 30", n, err)
	}
}

// TestIntegrationLevelSensorRescue breaks the level sensor in NORMAL, runs
// in RESCUE on the estimate, then repairs it.
func TestIntegrationLevelSensorRescue(t *testing.T) {
	r := newRig(t, 500)
	for i := 0; i < 6; i++ {
		r.step()
	}
	if got := r.ctrl.Mode(); got != logic.ModeNormal {
		t.Fatalf("setup: got %s, want NORMAL (modes %v)", got, r.modes)
	}

	r.plant.levelBroken = true
	snap := r.step()
	if snap.Mode != logic.ModeRescue {
		t.Fatalf("after level failure: got %s, want RESCUE", snap.Mode)
	}
	if !r.sent(logic.Signal(logic.KindLevelFailureDetection)) {
		t.Error("expected LEVEL_FAILURE_DETECTION")
	}

	snap = r.step() // plant acknowledges
	if snap.LevelSensor != logic.AwaitingRepair {
		t.Errorf("level sensor: got %s, want AWAITING_REPAIR", snap.LevelSensor)
	}
	if snap.Mode != logic.ModeRescue {
		t.Errorf("mode while rescuing: got %s", snap.Mode)
	}

	r.plant.levelBroken = false
	r.plant.pending = append(r.plant.pending, logic.Signal(logic.KindLevelRepaired))
	snap = r.step()
	if snap.Mode != logic.ModeNormal {
		t.Fatalf("after repair: got %s, want NORMAL (modes %v)", snap.Mode, r.modes)
	}
	if !r.sent(logic.Signal(logic.KindLevelRepairedAck)) {
		t.Error("expected LEVEL_REPAIRED_ACKNOWLEDGEMENT")
	}
	if snap.Counts.Detections != 1 || snap.Counts.Repairs != 1 {
		t.Errorf("counts: %+v", snap.Counts)
	}

	// The journal keeps the estimate only for RESCUE cycles.
	recs, err := r.journal.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Mode != "NORMAL" || recs[0].EstimatedLevel != nil {
		t.Errorf("newest record: %+v", recs[0])
	}
	if recs[1].Mode != "RESCUE" || recs[1].EstimatedLevel == nil {
		t.Errorf("rescue record: %+v", recs[1])
	}
}

// TestIntegrationLinkLossStopsBoiler drops one inbound batch: the controller
// must stop the boiler and raise the alarm.
func TestIntegrationLinkLossStopsBoiler(t *testing.T) {
	r := newRig(t, 500)
	for i := 0; i < 4; i++ {
		r.step()
	}

	out := r.ctrl.Clock(r.inbox.Drain()) // nothing delivered
	snap := r.ctrl.Snapshot()
	if snap.Mode != logic.ModeEmergencyStop {
		t.Fatalf("got %s, want EMERGENCY_STOP", snap.Mode)
	}
	if out[len(out)-1] != logic.ModeMessage(logic.AnnounceEmergencyStop) {
		t.Errorf("last message: got %v", out[len(out)-1])
	}
	if err := r.follow.Update(snap.Mode == logic.ModeEmergencyStop); err != nil {
		t.Fatal(err)
	}
	r.tracker.Update(snap, r.now)
	r.tracker.SetAlarm(r.follow.On())

	var sj status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(r.tracker.Snapshot()), &sj); err != nil {
		t.Fatalf("status JSON: %v", err)
	}
	if sj.Status.Mode != "EMERGENCY_STOP" || !sj.Status.Alarm || sj.Status.Valve != "OPEN" {
		t.Errorf("status: mode=%s alarm=%v valve=%s", sj.Status.Mode, sj.Status.Alarm, sj.Status.Valve)
	}
	if sj.Status.Counts.TransmissionFailures != 1 {
		t.Errorf("transmission failures: got %d", sj.Status.Counts.TransmissionFailures)
	}

	// The boiler stays stopped even when the link comes back.
	if snap := r.step(); snap.Mode != logic.ModeEmergencyStop {
		t.Errorf("emergency stop must be terminal, got %s", snap.Mode)
	}
}

// TestIntegrationMalformedInboundIsRejected checks that a corrupt message in
// an otherwise good batch is dropped and the cycle judges what is left.
func TestIntegrationMalformedInboundIsRejected(t *testing.T) {
	r := newRig(t, 500)
	r.inbox.Deliver([]byte(`{"cycle":1,"messages":[{"kind":"LEVEL","value":500},{"kind":"BOGUS"}]}`))

	if got := r.inbox.Rejected(); got != 1 {
		t.Errorf("rejected: got %d, want 1", got)
	}
	in := r.inbox.Drain()
	r.ctrl.Clock(in)
	if got := r.ctrl.Mode(); got != logic.ModeEmergencyStop {
		t.Errorf("incomplete batch: got %s, want EMERGENCY_STOP", got)
	}
}
