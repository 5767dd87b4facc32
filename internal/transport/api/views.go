package api

import (
	"fmt"

	"genoa.ai/internal/items"
	"genoa.ai/internal/protocol"
	"genoa.ai/internal/session"
	"genoa.ai/internal/workshop"
)

func emptySlotView(streamVersion int) protocol.CraftingSlotView {
	return protocol.CraftingSlotView{
		Escrow:        []any{},
		State:         "Empty",
		StreamVersion: streamVersion,
	}
}

func escrowView(s items.Stack) any {
	if s.IsStackable() {
		return protocol.StackEscrow{ItemID: s.ItemID, Quantity: s.Count}
	}
	return protocol.InstanceEscrow{ItemID: s.ItemID, Quantity: len(s.Instances), InstanceIDs: s.InstanceIDs()}
}

func fuelView(f workshop.Fuel) *protocol.FuelView {
	return &protocol.FuelView{
		BurnRate:        protocol.BurnRate{BurnTime: f.BurnRate.BurnTime, HeatPerSecond: f.BurnRate.HeatPerSecond},
		ItemID:          f.Item.ItemID,
		Quantity:        f.Item.Quantity(),
		ItemInstanceIDs: f.Item.InstanceIDs(),
	}
}

// pausedBurnView describes a unit that is not burning right now, either banked between sessions
// or left over once a session's rounds are done.
func pausedBurnView(f workshop.Fuel, remaining int) *protocol.BurningView {
	hps := f.BurnRate.HeatPerSecond
	secs := (2*remaining + hps) / (2 * hps) // rounded to nearest
	rem := protocol.LegacyDuration(secs)
	depleted := f.UnitHeat() - remaining
	return &protocol.BurningView{RemainingBurnTime: &rem, HeatDepleted: &depleted, Fuel: fuelView(f)}
}

func stateName(completed, total int) string {
	if completed == total {
		return "Completed"
	}
	return "Active"
}

func (s *Server) craftingView(c *call, slot *workshop.CraftingSlot) (protocol.CraftingSlotView, error) {
	v := emptySlotView(c.seq.Number(session.FieldCrafting))
	lock, err := slot.LockState(c.ctx)
	if err != nil {
		return v, err
	}
	if lock.Locked {
		v.State = "Locked"
		v.UnlockPrice = &protocol.Price{Cost: lock.UnlockPrice}
		return v, nil
	}
	st, err := slot.SessionState(c.ctx)
	if err != nil || st.Idle() {
		return v, err
	}
	sess := st.Session
	inst, ok := s.engine.CraftingInstantState(*sess, c.now)
	if !ok {
		return v, fmt.Errorf("crafting slot %d: recipe %s not in catalog", slot.Index()+1, sess.RecipeID)
	}

	v.SessionID = &sess.SessionID
	v.RecipeID = &sess.RecipeID
	if inst.Output.Count > 0 {
		v.Output = &protocol.ItemQuantity{ItemID: inst.Output.ItemID, Quantity: inst.Output.Count}
	}
	// Escrow shows everything the session took in, consumed or not.
	for _, in := range sess.Input {
		v.Escrow = append(v.Escrow, escrowView(in))
	}
	v.Completed = inst.CompletedRounds
	v.Available = inst.AvailableRounds
	v.Total = sess.TotalRounds
	v.NextCompletionUtc = protocol.TimestampPtr(inst.NextCompletion)
	total := protocol.Timestamp(inst.TotalCompletion)
	v.TotalCompletionUtc = &total
	v.State = stateName(inst.CompletedRounds, sess.TotalRounds)
	return v, nil
}

func (s *Server) smeltingView(c *call, slot *workshop.SmeltingSlot) (protocol.SmeltingSlotView, error) {
	v := protocol.SmeltingSlotView{CraftingSlotView: emptySlotView(c.seq.Number(session.FieldSmelting))}
	lock, err := slot.LockState(c.ctx)
	if err != nil {
		return v, err
	}
	if lock.Locked {
		v.State = "Locked"
		v.UnlockPrice = &protocol.Price{Cost: lock.UnlockPrice}
		return v, nil
	}
	st, err := slot.SessionState(c.ctx)
	if err != nil {
		return v, err
	}
	if st.Idle() {
		if carry := st.CarriedOver(); carry != nil {
			v.Burning = pausedBurnView(carry.Fuel, carry.RemainingHeat)
		}
		return v, nil
	}

	sess := st.Session
	inst, ok := s.engine.SmeltingInstantState(*sess, c.now)
	if !ok {
		return v, fmt.Errorf("smelting slot %d: cannot derive state of recipe %s", slot.Index()+1, sess.RecipeID)
	}
	if inst.Fuel != nil {
		v.Fuel = fuelView(*inst.Fuel)
	}
	v.SessionID = &sess.SessionID
	v.RecipeID = &sess.RecipeID
	v.Output = &protocol.ItemQuantity{ItemID: sess.OutputItemID, Quantity: 1}
	if !inst.Input.IsEmpty() {
		v.Escrow = append(v.Escrow, escrowView(inst.Input))
	}
	v.Completed = inst.CompletedRounds
	v.Available = inst.AvailableRounds
	v.Total = sess.TotalRounds
	v.NextCompletionUtc = protocol.TimestampPtr(inst.NextCompletion)
	total := protocol.Timestamp(inst.TotalCompletion)
	v.TotalCompletionUtc = &total
	v.State = stateName(inst.CompletedRounds, sess.TotalRounds)

	if inst.Heat.Burning {
		start, until := protocol.Timestamp(inst.Heat.BurnStart), protocol.Timestamp(inst.Heat.BurnEnd)
		v.Burning = &protocol.BurningView{BurnStartTime: &start, BurnsUntil: &until, Fuel: fuelView(inst.Heat.Fuel)}
	} else {
		v.Burning = pausedBurnView(inst.Heat.Fuel, inst.Heat.RemainingHeat)
	}
	return v, nil
}
