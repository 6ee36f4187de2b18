package logic

// Health is the failure life-cycle of one device.
type Health int

const (
	Healthy Health = iota
	AwaitingAck
	AwaitingRepair
)

// Failed reports whether the device's evidence must not be trusted.
func (h Health) Failed() bool {
	return h != Healthy
}

func (h Health) String() string {
	switch h {
	case Healthy:
		return "OK"
	case AwaitingAck:
		return "AWAITING_ACK"
	case AwaitingRepair:
		return "AWAITING_REPAIR"
	default:
		return "UNKNOWN"
	}
}

// protocol names the messages exchanged with the physical units for one
// kind of device. Indexed protocols match acknowledgements by pump number.
type protocol struct {
	detection   Kind
	ack         Kind
	repaired    Kind
	repairedAck Kind
	indexed     bool
}

var (
	levelProtocol   = protocol{KindLevelFailureDetection, KindLevelFailureAck, KindLevelRepaired, KindLevelRepairedAck, false}
	steamProtocol   = protocol{KindSteamFailureDetection, KindSteamFailureAck, KindSteamRepaired, KindSteamRepairedAck, false}
	pumpProtocol    = protocol{KindPumpFailureDetection, KindPumpFailureAck, KindPumpRepaired, KindPumpRepairedAck, true}
	controlProtocol = protocol{KindPumpControlFailureDetect, KindPumpControlFailureAck, KindPumpControlRepaired, KindPumpControlRepairedAck, true}
)

func (p protocol) message(kind Kind, i int) Message {
	if p.indexed {
		return Indexed(kind, i)
	}
	return Signal(kind)
}

func (p protocol) received(kind Kind, i int, in []Message) bool {
	if p.indexed {
		return hasIndexed(kind, i, in)
	}
	_, ok := ExtractOnlyMatch(kind, in)
	return ok
}

// fail moves a healthy device to AwaitingAck and emits its detection message.
func (p protocol) fail(h *Health, i int, out *[]Message) {
	*h = AwaitingAck
	*out = append(*out, p.message(p.detection, i))
}

// advance runs the acknowledgement and repair steps for one device.
// An unacknowledged detection is resent every cycle. Returns true when the
// device was restored this cycle.
func (p protocol) advance(h *Health, i int, in []Message, out *[]Message) bool {
	if *h == AwaitingAck {
		if !p.received(p.ack, i, in) {
			*out = append(*out, p.message(p.detection, i))
			return false
		}
		*h = AwaitingRepair
	}
	if *h == AwaitingRepair && p.received(p.repaired, i, in) {
		*h = Healthy
		*out = append(*out, p.message(p.repairedAck, i))
		return true
	}
	return false
}

// Findings tells the mode state machine which evidence is untrustworthy.
type Findings struct {
	Level      bool
	Steam      bool
	Pump       bool
	Controller bool
}

// Equipment reports whether steam, pump or pump-controller evidence is bad.
func (f Findings) Equipment() bool {
	return f.Steam || f.Pump || f.Controller
}

// healthTracker holds one life-cycle per device, sized once at construction.
type healthTracker struct {
	level       Health
	steam       Health
	pumps       []Health
	controllers []Health

	detections int
	repairs    int
}

func newHealthTracker(pumps int) healthTracker {
	return healthTracker{
		pumps:       make([]Health, pumps),
		controllers: make([]Health, pumps),
	}
}

// acknowledge runs the acknowledgement and repair steps for every device.
func (t *healthTracker) acknowledge(in []Message, out *[]Message) {
	if levelProtocol.advance(&t.level, 0, in, out) {
		t.repairs++
	}
	if steamProtocol.advance(&t.steam, 0, in, out) {
		t.repairs++
	}
	for i := range t.pumps {
		if pumpProtocol.advance(&t.pumps[i], i, in, out) {
			t.repairs++
		}
	}
	for i := range t.controllers {
		if controlProtocol.advance(&t.controllers[i], i, in, out) {
			t.repairs++
		}
	}
}

func (t *healthTracker) findings() Findings {
	return Findings{
		Level:      t.level.Failed(),
		Steam:      t.steam.Failed(),
		Pump:       anyFailed(t.pumps),
		Controller: anyFailed(t.controllers),
	}
}

func anyFailed(hs []Health) bool {
	for _, h := range hs {
		if h.Failed() {
			return true
		}
	}
	return false
}

// checkDevices runs ack/repair processing and then the detection conditions
// against the cycle's readings, in the order level, steam, pumps, controllers.
func (c *Controller) checkDevices(in []Message, r Readings, out *[]Message) Findings {
	t := &c.health
	t.acknowledge(in, out)

	if !t.level.Failed() && (r.Level < 0 || r.Level >= c.chars.Capacity) {
		levelProtocol.fail(&t.level, 0, out)
		t.detections++
	}
	if !t.steam.Failed() && (r.Steam < 0 || r.Steam > c.chars.MaxSteamRate) {
		steamProtocol.fail(&t.steam, 0, out)
		t.detections++
	}
	for i := range t.pumps {
		if t.pumps[i].Failed() || c.pumpOpen[i] == r.Pumps[i] {
			continue
		}
		// The report is untrusted, but it is the best guess of the actuator state.
		c.pumpOpen[i] = r.Pumps[i]
		pumpProtocol.fail(&t.pumps[i], i, out)
		t.detections++
	}
	for i := range t.controllers {
		if t.controllers[i].Failed() || t.pumps[i].Failed() || c.pumpOpen[i] != r.Pumps[i] {
			continue
		}
		if r.Controllers[i] != c.pumpOpen[i] {
			controlProtocol.fail(&t.controllers[i], i, out)
			t.detections++
		}
	}
	return t.findings()
}
