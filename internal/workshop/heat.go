package workshop

import "genoa.ai/internal/items"

// burnPlan is the fuel a smelting session draws heat from: the carried over unit first, then the
// queued units in order. Offsets are ms since the session started.
type burnPlan struct {
	carry *Heat
	queue *Fuel
}

func newBurnPlan(sess SmeltingSession) burnPlan {
	p := burnPlan{carry: sess.HeatCarriedOver, queue: sess.Fuel}
	if p.carry != nil && p.carry.RemainingHeat <= 0 {
		p.carry = nil
	}
	if p.queue != nil && p.queue.Item.IsEmpty() {
		p.queue = nil
	}
	return p
}

// burnMs is how long heat takes to draw from fuel burning at rate heat per second.
func burnMs(heat, rate int) int64 {
	return ceilDiv(int64(heat)*1000, int64(rate))
}

// drawnAfter is the heat drawn from a unit that has burned for ms at rate. Partial seconds round
// up so heat is never free.
func drawnAfter(ms int64, rate, unitHeat int) int {
	if ms <= 0 {
		return 0
	}
	return int(min(ceilDiv(ms*int64(rate), 1000), int64(unitHeat)))
}

func (p burnPlan) carryMs() int64 {
	if p.carry == nil {
		return 0
	}
	return burnMs(p.carry.RemainingHeat, p.carry.Fuel.BurnRate.HeatPerSecond)
}

func (p burnPlan) units() int {
	if p.queue == nil {
		return 0
	}
	return p.queue.Item.Quantity()
}

func (p burnPlan) unitMs() int64 { return int64(p.queue.BurnRate.BurnTime) * 1000 }

func (p burnPlan) TotalHeat() int {
	total := 0
	if p.carry != nil {
		total += p.carry.RemainingHeat
	}
	if p.queue != nil {
		total += p.queue.TotalHeat()
	}
	return total
}

// durationToAccumulate is the burn time needed to draw heat. It reports false when the plan's
// fuel cannot supply that much.
func (p burnPlan) durationToAccumulate(heat int) (int64, bool) {
	if heat <= 0 {
		return 0, true
	}
	var off int64
	if p.carry != nil {
		if heat <= p.carry.RemainingHeat {
			return burnMs(heat, p.carry.Fuel.BurnRate.HeatPerSecond), true
		}
		heat -= p.carry.RemainingHeat
		off = p.carryMs()
	}
	if p.units() == 0 {
		return 0, false
	}
	u := p.queue.UnitHeat()
	j := (heat - 1) / u
	if j >= p.units() {
		return 0, false
	}
	return off + int64(j)*p.unitMs() + burnMs(heat-j*u, p.queue.BurnRate.HeatPerSecond), true
}

// burnPoint identifies the fuel unit alight at some point of a plan.
type burnPoint struct {
	fromCarry bool
	unit      int   // queue index when !fromCarry
	start     int64 // offset the unit was lit at
	end       int64 // offset the unit burns out at
	drawn     int   // heat drawn from the unit so far
	heat      int   // heat the unit had when lit
}

func (b burnPoint) remaining() int { return b.heat - b.drawn }

// atTime locates the unit alight ms into the plan. A unit whose burn ends exactly at ms is still
// the current one. Past the end of the fuel the last unit is reported fully drawn.
func (p burnPlan) atTime(ms int64) (burnPoint, bool) {
	if ms < 0 {
		ms = 0
	}
	var off int64
	if p.carry != nil {
		dc := p.carryMs()
		if ms <= dc || p.units() == 0 {
			return burnPoint{
				fromCarry: true,
				end:       dc,
				drawn:     drawnAfter(ms, p.carry.Fuel.BurnRate.HeatPerSecond, p.carry.RemainingHeat),
				heat:      p.carry.RemainingHeat,
			}, true
		}
		ms -= dc
		off = dc
	}
	if p.units() == 0 {
		return burnPoint{}, false
	}
	d := p.unitMs()
	j := 0
	if ms > 0 {
		j = int((ms - 1) / d)
	}
	if j >= p.units() {
		j = p.units() - 1
	}
	u := p.queue.UnitHeat()
	return burnPoint{
		unit:  j,
		start: off + int64(j)*d,
		end:   off + int64(j+1)*d,
		drawn: drawnAfter(ms-int64(j)*d, p.queue.BurnRate.HeatPerSecond, u),
		heat:  u,
	}, true
}

// atHeat locates the unit alight once exactly heat has been drawn. A unit drawn down to zero is
// still the current one.
func (p burnPlan) atHeat(heat int) (burnPoint, bool) {
	if heat < 0 {
		heat = 0
	}
	var off int64
	if p.carry != nil {
		if heat <= p.carry.RemainingHeat || p.units() == 0 {
			return burnPoint{
				fromCarry: true,
				end:       p.carryMs(),
				drawn:     min(heat, p.carry.RemainingHeat),
				heat:      p.carry.RemainingHeat,
			}, true
		}
		heat -= p.carry.RemainingHeat
		off = p.carryMs()
	}
	if p.units() == 0 {
		return burnPoint{}, false
	}
	u := p.queue.UnitHeat()
	j := 0
	if heat > 0 {
		j = (heat - 1) / u
	}
	if j >= p.units() {
		j = p.units() - 1
	}
	d := p.unitMs()
	return burnPoint{
		unit:  j,
		start: off + int64(j)*d,
		end:   off + int64(j+1)*d,
		drawn: min(heat-j*u, u),
		heat:  u,
	}, true
}

// split separates the unit alight at b from the queue units that have not been lit yet.
func (p burnPlan) split(b burnPoint) (current Fuel, unlit *Fuel) {
	if b.fromCarry {
		if p.queue != nil {
			unlit = &Fuel{Item: p.queue.Item.Clone(), BurnRate: p.queue.BurnRate}
		}
		return Fuel{Item: p.carry.Fuel.Item.Clone(), BurnRate: p.carry.Fuel.BurnRate}, unlit
	}
	_, rest := p.queue.Item.Split(b.unit)
	unit, after := rest.Split(1)
	current = Fuel{Item: unit, BurnRate: p.queue.BurnRate}
	if !after.IsEmpty() {
		unlit = &Fuel{Item: after, BurnRate: p.queue.BurnRate}
	}
	return current, unlit
}

func fuelStack(f *Fuel) items.Stack {
	if f == nil {
		return items.Stack{}
	}
	return f.Item.Clone()
}
