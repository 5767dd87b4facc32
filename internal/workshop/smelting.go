package workshop

import (
	"context"
	"fmt"
	"sort"

	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/items"
)

// HeatState describes the fuel unit a smelting slot is drawing heat from.
type HeatState struct {
	Burning       bool
	Fuel          Fuel // a single unit
	RemainingHeat int
	// Absolute burn window of the unit, set only while Burning.
	BurnStart int64
	BurnEnd   int64
}

// SmeltingInstant is the derived view of a smelting session at one instant.
type SmeltingInstant struct {
	CompletedRounds int
	AvailableRounds int
	Input           items.Stack
	Output          catalogs.ItemCount
	NextCompletion  *int64
	TotalCompletion int64
	Heat            HeatState
	// Fuel holds queued units that have not been lit yet.
	Fuel *Fuel
}

type SmeltingCollect struct {
	Rounds     int
	Output     catalogs.ItemCount
	UnusedFuel items.Stack // set only when the collect ends the session
}

type SmeltingCancel struct {
	Output     catalogs.ItemCount
	Input      items.Stack
	UnusedFuel items.Stack
}

// SmeltingInstantState derives a session's progress at now by replaying its fuel burn from the
// start. It reports false when the recipe is gone or the fuel can no longer cover it.
func (e *Engine) SmeltingInstantState(sess SmeltingSession, now int64) (SmeltingInstant, bool) {
	recipe, ok := e.cat.SmeltingRecipe(sess.RecipeID)
	if !ok {
		return SmeltingInstant{}, false
	}
	plan := newBurnPlan(sess)
	total := sess.TotalRounds
	totalHeat := recipe.HeatRequired * total
	totalMs, ok := plan.durationToAccumulate(totalHeat)
	if !ok {
		return SmeltingInstant{}, false
	}
	completion := func(round int) int64 {
		ms, _ := plan.durationToAccumulate((round + 1) * recipe.HeatRequired)
		return sess.StartTime + ms
	}

	completed := total
	if !sess.FinishedEarly {
		completed = sort.Search(total, func(k int) bool { return completion(k) > now })
	}
	available := completed - sess.CollectedRounds
	if available < 0 {
		panic(fmt.Sprintf("workshop: smelting session %s collected %d of %d completed rounds", sess.SessionID, sess.CollectedRounds, completed))
	}
	_, remaining := consumeSmelting(completed, sess.Input)

	inst := SmeltingInstant{
		CompletedRounds: completed,
		AvailableRounds: available,
		Input:           remaining,
		Output:          catalogs.ItemCount{ItemID: sess.OutputItemID, Count: available},
		TotalCompletion: sess.StartTime + totalMs,
	}
	if completed < total {
		next := completion(completed)
		inst.NextCompletion = &next
	}

	var point burnPoint
	burning := !sess.FinishedEarly && now < inst.TotalCompletion
	if burning {
		point, ok = plan.atTime(now - sess.StartTime)
	} else {
		point, ok = plan.atHeat(totalHeat)
	}
	if !ok {
		return SmeltingInstant{}, false
	}
	current, unlit := plan.split(point)
	inst.Heat = HeatState{Burning: burning, Fuel: current, RemainingHeat: point.remaining()}
	if burning {
		inst.Heat.BurnStart = sess.StartTime + point.start
		inst.Heat.BurnEnd = sess.StartTime + point.end
	}
	inst.Fuel = unlit
	return inst, true
}

// SmeltingSlot is one smelting bay of a player, bound to a store transaction.
type SmeltingSlot struct{ slot }

func (e *Engine) SmeltingSlot(doc Doc, userID string, index int) *SmeltingSlot {
	e.checkIndex(KindSmelting, index)
	return &SmeltingSlot{slot{e: e, doc: doc, userID: userID, kind: KindSmelting, index: index}}
}

func (s *SmeltingSlot) SessionState(ctx context.Context) (SmeltingState, error) {
	var st SmeltingState
	ok, err := s.doc.Get(ctx, Collection, s.userID, s.statePath(), &st)
	if err != nil {
		return SmeltingState{}, err
	}
	if !ok {
		return SmeltingState{Status: StatusIdle}, nil
	}
	if err := st.validate(); err != nil {
		return SmeltingState{}, fmt.Errorf("smelting slot %d of %s: %w", s.index, s.userID, err)
	}
	return st, nil
}

func (s *SmeltingSlot) save(ctx context.Context, st SmeltingState) error {
	if st.Idle() && st.HeatCarriedOver == nil {
		return s.doc.Delete(ctx, Collection, s.userID, s.statePath())
	}
	return s.doc.Set(ctx, Collection, s.userID, s.statePath(), st)
}

// FuelUnitsNeeded is how many units of fuelItemID must be added to the slot's banked heat to run
// rounds of the recipe. It reports false for an unknown recipe or an item that does not burn.
func (s *SmeltingSlot) FuelUnitsNeeded(ctx context.Context, recipeID string, rounds int, fuelItemID string) (int, bool, error) {
	recipe, ok := s.e.cat.SmeltingRecipe(recipeID)
	if !ok {
		return 0, false, nil
	}
	def, ok := s.e.cat.Item(fuelItemID)
	if !ok || def.BurnRate == nil {
		return 0, false, nil
	}
	st, err := s.SessionState(ctx)
	if err != nil {
		return 0, false, err
	}
	need := recipe.HeatRequired * rounds
	if carry := st.CarriedOver(); carry != nil {
		need -= carry.RemainingHeat
	}
	if need <= 0 {
		return 0, true, nil
	}
	return int(ceilDiv(int64(need), int64(def.BurnRate.TotalHeat()))), true, nil
}

// Start begins a session. Input must be one unit of the recipe's input per round; fuel is queued
// behind whatever heat the slot has banked and may be nil if the bank suffices. It reports false
// when the start is not allowed.
func (s *SmeltingSlot) Start(ctx context.Context, sessionID, recipeID string, rounds int, input items.Stack, fuel *items.Stack) (bool, error) {
	st, err := s.SessionState(ctx)
	if err != nil {
		return false, err
	}
	if !st.Idle() || rounds <= 0 {
		return false, nil
	}
	recipe, ok := s.e.cat.SmeltingRecipe(recipeID)
	if !ok {
		return false, nil
	}
	if input.ItemID != recipe.Input || input.Quantity() != rounds {
		return false, nil
	}
	if input.IsStackable() != s.e.cat.IsStackable(input.ItemID) {
		return false, nil
	}

	var queued *Fuel
	if fuel != nil && !fuel.IsEmpty() {
		def, ok := s.e.cat.Item(fuel.ItemID)
		if !ok || def.BurnRate == nil {
			return false, nil
		}
		// Fuels that leave something behind (e.g. an empty bucket) are not supported.
		if len(def.FuelReturnItems) > 0 {
			return false, nil
		}
		if fuel.IsStackable() != def.Stacks {
			return false, nil
		}
		queued = &Fuel{Item: fuel.Clone(), BurnRate: *def.BurnRate}
	}

	carry := st.HeatCarriedOver
	plan := burnPlan{carry: carry, queue: queued}
	if plan.TotalHeat() < recipe.HeatRequired*rounds {
		return false, nil
	}

	sess := SmeltingSession{
		SessionID:       sessionID,
		RecipeID:        recipeID,
		StartTime:       s.e.Now(),
		Input:           input.Clone(),
		OutputItemID:    recipe.Output,
		TotalRounds:     rounds,
		Fuel:            queued,
		HeatCarriedOver: carry,
	}
	return true, s.save(ctx, activeSmelting(sess))
}

// Instant derives the slot's current progress. It returns nil for an idle slot.
func (s *SmeltingSlot) Instant(ctx context.Context) (*SmeltingSession, *SmeltingInstant, error) {
	st, err := s.SessionState(ctx)
	if err != nil || st.Idle() {
		return nil, nil, err
	}
	inst, ok := s.e.SmeltingInstantState(*st.Session, s.e.Now())
	if !ok {
		return nil, nil, fmt.Errorf("smelting slot %d of %s: cannot derive state of recipe %s", s.index, s.userID, st.Session.RecipeID)
	}
	return st.Session, &inst, nil
}

// Collect takes every round completed since the last collect. Once the last round is collected
// the slot goes idle, banking the unit still alight and handing back fuel that was never lit.
func (s *SmeltingSlot) Collect(ctx context.Context) (*SmeltingCollect, error) {
	sess, inst, err := s.Instant(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	out := &SmeltingCollect{Rounds: inst.AvailableRounds, Output: inst.Output}
	next := *sess
	next.CollectedRounds += inst.AvailableRounds
	if next.CollectedRounds == next.TotalRounds {
		out.UnusedFuel = fuelStack(inst.Fuel)
		err = s.save(ctx, idleSmelting(bankHeat(inst.Heat)))
	} else {
		err = s.save(ctx, activeSmelting(next))
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel ends the session. Uncollected output, unconsumed input and unlit fuel go back to the
// caller; the unit alight keeps whatever heat it has left as the slot's banked heat.
func (s *SmeltingSlot) Cancel(ctx context.Context) (*SmeltingCancel, error) {
	sess, inst, err := s.Instant(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	if err := s.save(ctx, idleSmelting(bankHeat(inst.Heat))); err != nil {
		return nil, err
	}
	return &SmeltingCancel{
		Output:     inst.Output,
		Input:      inst.Input,
		UnusedFuel: fuelStack(inst.Fuel),
	}, nil
}

// FinishNow completes every remaining round immediately, drawing the heat they need from the fuel
// at once. The output still has to be collected.
func (s *SmeltingSlot) FinishNow(ctx context.Context) (bool, error) {
	sess, inst, err := s.Instant(ctx)
	if err != nil || sess == nil {
		return false, err
	}
	if inst.CompletedRounds == sess.TotalRounds {
		return false, nil
	}
	next := *sess
	next.FinishedEarly = true
	return true, s.save(ctx, activeSmelting(next))
}

func bankHeat(h HeatState) *Heat {
	if h.RemainingHeat <= 0 {
		return nil
	}
	return &Heat{Fuel: h.Fuel, RemainingHeat: h.RemainingHeat}
}
