package logic

// Controller is the per-boiler control state. It is not safe for concurrent
// use: the cycle driver calls Clock once per cycle and waits for it to return.
type Controller struct {
	chars Characteristics
	mode  Mode

	// Latest readings from a batch that passed transmission validation.
	waterLevel float64
	steamLevel float64

	// trustedLevel is the last level read while the level sensor was healthy.
	// estimate replaces the level reading while rescuing.
	trustedLevel float64
	estimate     float64

	valveOpen   bool
	waitingSeen bool
	pumpOpen    []bool
	health      healthTracker

	cycles               int
	transmissionFailures int
}

// NewController creates a controller in WAITING with every device healthy,
// all pumps closed and the valve closed.
func NewController(chars Characteristics) (*Controller, error) {
	if err := chars.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		chars:    chars,
		mode:     ModeWaiting,
		pumpOpen: make([]bool, chars.Pumps),
		health:   newHealthTracker(chars.Pumps),
	}, nil
}

// Clock runs one control cycle. It returns the outbound batch, which always
// ends with exactly one mode announcement for the mode reached this cycle.
func (c *Controller) Clock(in []Message) []Message {
	var out []Message
	c.cycles++

	r, ok := readBatch(in, c.chars.Pumps)
	if ok {
		c.waterLevel = r.Level
		c.steamLevel = r.Steam
	} else {
		c.transmissionFailures++
		c.mode = ModeEmergencyStop
	}

	next := c.mode
	switch c.mode {
	case ModeWaiting:
		next = c.waiting(in, &out)
	case ModeReady:
		next = c.ready(in, &out)
	case ModeNormal:
		next = c.normal(c.checkDevices(in, r, &out), &out)
	case ModeDegraded:
		next = c.degraded(c.checkDevices(in, r, &out), &out)
	case ModeRescue:
		next = c.rescue(c.checkDevices(in, r, &out), &out)
	}
	if next == ModeEmergencyStop {
		c.emergencyStop(&out)
	}

	if ok && !c.health.level.Failed() {
		c.trustedLevel = c.waterLevel
	}
	c.mode = next
	return append(out, ModeMessage(c.mode.Announcement()))
}

func (c *Controller) waiting(in []Message, out *[]Message) Mode {
	if !c.waitingSeen {
		if _, ok := ExtractOnlyMatch(KindSteamBoilerWaiting, in); !ok {
			return ModeWaiting
		}
		c.waitingSeen = true
	}

	// No steam may leave a boiler that has not started.
	if c.steamLevel != 0 || c.waterLevel < 0 || c.waterLevel >= c.chars.Capacity {
		return ModeEmergencyStop
	}

	switch {
	case c.waterLevel > c.chars.MaxNormalLevel:
		c.applyPumpPlan(0, out)
		c.setValve(true, out)
	case c.waterLevel < c.chars.MinNormalLevel:
		c.applyPumpPlan(c.PredictPumpsToOpen(), out)
		c.setValve(false, out)
	default:
		c.applyPumpPlan(0, out)
		c.setValve(false, out)
		*out = append(*out, Signal(KindProgramReady))
		return ModeReady
	}
	return ModeWaiting
}

func (c *Controller) ready(in []Message, out *[]Message) Mode {
	if _, ok := ExtractOnlyMatch(KindPhysicalUnitsReady, in); ok {
		return ModeNormal
	}
	*out = append(*out, Signal(KindProgramReady))
	return ModeReady
}

func (c *Controller) normal(f Findings, out *[]Message) Mode {
	switch {
	case !f.Level && !c.withinLimits(c.waterLevel):
		return ModeEmergencyStop
	case f.Level && f.Steam:
		return ModeEmergencyStop
	case f.Level:
		c.enterRescue()
		return ModeRescue
	case f.Equipment():
		return ModeDegraded
	}
	c.applyPumpPlan(c.PredictPumpsToOpen(), out)
	return ModeNormal
}

func (c *Controller) degraded(f Findings, out *[]Message) Mode {
	if f.Level {
		if f.Steam {
			return ModeEmergencyStop
		}
		c.enterRescue()
		return ModeRescue
	}
	if !c.withinLimits(c.waterLevel) {
		return ModeEmergencyStop
	}
	if !f.Equipment() {
		return ModeNormal
	}
	c.nudgePumps(c.waterLevel, out)
	return ModeDegraded
}

func (c *Controller) rescue(f Findings, out *[]Message) Mode {
	if f.Level && f.Equipment() {
		return ModeEmergencyStop
	}
	if !f.Level {
		if !c.withinLimits(c.waterLevel) {
			return ModeEmergencyStop
		}
		if f.Equipment() {
			return ModeDegraded
		}
		return ModeNormal
	}

	c.estimate = c.projectLevel(c.estimate, c.steamLevel, c.openPumps())
	if !c.withinLimits(c.estimate) {
		return ModeEmergencyStop
	}
	c.nudgePumps(c.estimate, out)
	return ModeRescue
}

// enterRescue seeds the level estimate from the last trusted reading,
// projected over the cycle in which the sensor failed.
func (c *Controller) enterRescue() {
	c.estimate = c.projectLevel(c.trustedLevel, c.steamLevel, c.openPumps())
}

func (c *Controller) emergencyStop(out *[]Message) {
	c.closeAllPumps(out)
	c.setValve(true, out)
}

func (c *Controller) withinLimits(level float64) bool {
	return level > c.chars.MinLimitLevel && level < c.chars.MaxLimitLevel
}

// Mode returns the current operating mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// StatusMessage returns a display string for the current state.
func (c *Controller) StatusMessage() string {
	return c.mode.String()
}

// Characteristics returns the boiler description the controller was built with.
func (c *Controller) Characteristics() Characteristics {
	return c.chars
}

// PumpStatus is the controller's view of one pump and its controller.
type PumpStatus struct {
	Open       bool
	Pump       Health
	Controller Health
}

// Counts tracks cycle outcomes since startup.
type Counts struct {
	Cycles               int
	TransmissionFailures int
	Detections           int
	Repairs              int
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Mode           Mode
	WaterLevel     float64
	SteamLevel     float64
	EstimatedLevel float64 // only meaningful in RESCUE
	ValveOpen      bool
	LevelSensor    Health
	SteamSensor    Health
	Pumps          []PumpStatus
	Counts         Counts
}

// Snapshot returns a copy of the current state; it shares no memory with c.
func (c *Controller) Snapshot() Snapshot {
	pumps := make([]PumpStatus, len(c.pumpOpen))
	for i := range pumps {
		pumps[i] = PumpStatus{
			Open:       c.pumpOpen[i],
			Pump:       c.health.pumps[i],
			Controller: c.health.controllers[i],
		}
	}
	return Snapshot{
		Mode:           c.mode,
		WaterLevel:     c.waterLevel,
		SteamLevel:     c.steamLevel,
		EstimatedLevel: c.estimate,
		ValveOpen:      c.valveOpen,
		LevelSensor:    c.health.level,
		SteamSensor:    c.health.steam,
		Pumps:          pumps,
		Counts: Counts{
			Cycles:               c.cycles,
			TransmissionFailures: c.transmissionFailures,
			Detections:           c.health.detections,
			Repairs:              c.health.repairs,
		},
	}
}

// OpenPumps returns the number of pumps the controller believes open.
func (s Snapshot) OpenPumps() int {
	n := 0
	for _, p := range s.Pumps {
		if p.Open {
			n++
		}
	}
	return n
}
