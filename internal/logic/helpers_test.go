package logic

import "testing"

// testCharacteristics is a two-pump boiler: set-point 500, limits (100, 900).
func testCharacteristics() Characteristics {
	return Characteristics{
		Pumps:          2,
		PumpCapacity:   10,
		Capacity:       1000,
		MaxSteamRate:   30,
		MinNormalLevel: 200,
		MaxNormalLevel: 800,
		MinLimitLevel:  100,
		MaxLimitLevel:  900,
	}
}

func newTestController(t *testing.T, pumps int) *Controller {
	t.Helper()
	chars := testCharacteristics()
	chars.Pumps = pumps
	c, err := NewController(chars)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

// batch builds a transmission-valid inbound batch with explicit pump reports.
func batch(level, steam float64, pumps, controllers []bool, extra ...Message) []Message {
	in := []Message{Reading(KindLevel, level), Reading(KindSteam, steam)}
	for i, open := range pumps {
		in = append(in, PumpReport(KindPumpState, i, open))
	}
	for i, open := range controllers {
		in = append(in, PumpReport(KindPumpControlState, i, open))
	}
	return append(in, extra...)
}

// agreeing builds a batch whose pump and controller reports match the
// controller's own belief.
func agreeing(c *Controller, level, steam float64, extra ...Message) []Message {
	open := append([]bool(nil), c.pumpOpen...)
	return batch(level, steam, open, open, extra...)
}

// setupNormalController drives a fresh controller through WAITING and READY
// into NORMAL at level 500, with no pump open.
func setupNormalController(t *testing.T, pumps int) *Controller {
	t.Helper()
	c := newTestController(t, pumps)
	c.Clock(agreeing(c, 500, 0, Signal(KindSteamBoilerWaiting)))
	if c.Mode() != ModeReady {
		t.Fatalf("setup: expected READY, got %s", c.Mode())
	}
	c.Clock(agreeing(c, 500, 0, Signal(KindPhysicalUnitsReady)))
	if c.Mode() != ModeNormal {
		t.Fatalf("setup: expected NORMAL, got %s", c.Mode())
	}
	return c
}

func countKind(out []Message, kind Kind) int {
	n := 0
	for _, m := range out {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

func contains(out []Message, want Message) bool {
	for _, m := range out {
		if m == want {
			return true
		}
	}
	return false
}

func lastMode(t *testing.T, out []Message) Announcement {
	t.Helper()
	if len(out) == 0 {
		t.Fatal("empty outbound batch")
	}
	last := out[len(out)-1]
	if last.Kind != KindMode {
		t.Fatalf("last message: expected MODE, got %s", last)
	}
	return last.Mode
}
