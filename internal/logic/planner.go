package logic

import "math"

// projectLevel returns the point estimate of the water level one cycle from
// now: the midpoint between the outcomes at the reported steam output and at
// the maximal steam rate, with open pumps feeding at full capacity.
func (c *Controller) projectLevel(level, steam float64, open int) float64 {
	waterIn := CycleLength * c.chars.PumpCapacity * float64(open)
	ifMinSteam := level + waterIn - CycleLength*steam
	ifMaxSteam := level + waterIn - CycleLength*c.chars.MaxSteamRate
	return (ifMinSteam + ifMaxSteam) / 2
}

// PredictPumpsToOpen returns the pump count in [0, N] whose projected level
// lands closest to the mid-normal set-point. Ties keep the lowest count.
func (c *Controller) PredictPumpsToOpen() int {
	target := c.chars.MidNormalLevel()
	best := 0
	closest := math.Inf(1)
	for k := 0; k <= c.chars.Pumps; k++ {
		diff := math.Abs(target - c.projectLevel(c.waterLevel, c.steamLevel, k))
		if diff < closest {
			closest = diff
			best = k
		}
	}
	return best
}

// applyPumpPlan opens or closes working pumps until target of them are open.
// Pumps already open count first, then closed ones are opened in index order.
// Failed pumps are never commanded. One message per pump whose state changes.
func (c *Controller) applyPumpPlan(target int, out *[]Message) {
	kept := 0
	for i, open := range c.pumpOpen {
		if !open || c.health.pumps[i].Failed() {
			continue
		}
		if kept < target {
			kept++
			continue
		}
		c.pumpOpen[i] = false
		*out = append(*out, Indexed(KindClosePump, i))
	}
	for i, open := range c.pumpOpen {
		if kept >= target {
			break
		}
		if open || c.health.pumps[i].Failed() {
			continue
		}
		c.pumpOpen[i] = true
		*out = append(*out, Indexed(KindOpenPump, i))
		kept++
	}
}

// nudgePumps moves the working open pump count one step toward the set-point.
// Used when the predictive estimate cannot be trusted.
func (c *Controller) nudgePumps(level float64, out *[]Message) {
	open := c.workingOpenPumps()
	if level < c.chars.MidNormalLevel() {
		open++
	} else if open > 0 {
		open--
	}
	c.applyPumpPlan(open, out)
}

// closeAllPumps closes every pump believed open, failed or not.
func (c *Controller) closeAllPumps(out *[]Message) {
	for i, open := range c.pumpOpen {
		if open {
			c.pumpOpen[i] = false
			*out = append(*out, Indexed(KindClosePump, i))
		}
	}
}

func (c *Controller) openPumps() int {
	n := 0
	for _, open := range c.pumpOpen {
		if open {
			n++
		}
	}
	return n
}

func (c *Controller) workingOpenPumps() int {
	n := 0
	for i, open := range c.pumpOpen {
		if open && !c.health.pumps[i].Failed() {
			n++
		}
	}
	return n
}

// setValve emits a VALVE toggle only when the desired state differs.
func (c *Controller) setValve(open bool, out *[]Message) {
	if c.valveOpen == open {
		return
	}
	c.valveOpen = open
	*out = append(*out, Signal(KindValve))
}
