package logic

// Readings is the validated evidence of one cycle.
type Readings struct {
	Level float64
	Steam float64
	// Pumps and Controllers are indexed by pump number.
	Pumps       []bool
	Controllers []bool
}

// TransmissionValid decides whether the cycle's batch is usable at all.
// Both scalar readings must be present exactly once and each per-pump status
// array must hold exactly one report for every pump in [0, pumps).
func TransmissionValid(level, steam *Message, pumpStates, controlStates []Message, pumps int) bool {
	if level == nil || steam == nil {
		return false
	}
	return coversPumps(pumpStates, pumps) && coversPumps(controlStates, pumps)
}

func coversPumps(reports []Message, pumps int) bool {
	if len(reports) != pumps {
		return false
	}
	seen := make([]bool, pumps)
	for _, r := range reports {
		if r.Pump < 0 || r.Pump >= pumps || seen[r.Pump] {
			return false
		}
		seen[r.Pump] = true
	}
	return true
}

// readBatch extracts the required readings. ok is false on a transmission failure.
func readBatch(batch []Message, pumps int) (r Readings, ok bool) {
	var level, steam *Message
	if m, found := ExtractOnlyMatch(KindLevel, batch); found {
		level = &m
	}
	if m, found := ExtractOnlyMatch(KindSteam, batch); found {
		steam = &m
	}
	pumpStates := ExtractAllMatches(KindPumpState, batch)
	controlStates := ExtractAllMatches(KindPumpControlState, batch)

	if !TransmissionValid(level, steam, pumpStates, controlStates, pumps) {
		return Readings{}, false
	}

	r = Readings{
		Level:       level.Value,
		Steam:       steam.Value,
		Pumps:       make([]bool, pumps),
		Controllers: make([]bool, pumps),
	}
	for _, m := range pumpStates {
		r.Pumps[m.Pump] = m.Open
	}
	for _, m := range controlStates {
		r.Controllers[m.Pump] = m.Open
	}
	return r, true
}
