package workshop

import (
	"context"
	"fmt"

	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/items"
)

// CraftingInstant is the derived view of a crafting session at one instant.
type CraftingInstant struct {
	CompletedRounds int
	AvailableRounds int
	// Input is the escrow not yet consumed by completed rounds.
	Input           []items.Stack
	Output          catalogs.ItemCount
	NextCompletion  *int64 // nil once every round has completed
	TotalCompletion int64
}

type CraftingCollect struct {
	Rounds int
	Output catalogs.ItemCount
}

type CraftingCancel struct {
	Output catalogs.ItemCount
	Input  []items.Stack
}

// CraftingInstantState derives a session's progress at now. It reports false when the session's
// recipe is no longer in the catalog.
func (e *Engine) CraftingInstantState(sess CraftingSession, now int64) (CraftingInstant, bool) {
	recipe, ok := e.cat.CraftingRecipe(sess.RecipeID)
	if !ok {
		return CraftingInstant{}, false
	}
	roundMs := int64(recipe.Duration) * 1000
	total := sess.TotalRounds

	completed := total
	if !sess.FinishedEarly {
		elapsed := now + e.grace - sess.StartTime
		if elapsed < 0 {
			elapsed = 0
		}
		completed = int(min(elapsed/roundMs, int64(total)))
	}
	available := completed - sess.CollectedRounds
	if available < 0 {
		panic(fmt.Sprintf("workshop: crafting session %s collected %d of %d completed rounds", sess.SessionID, sess.CollectedRounds, completed))
	}

	_, remaining := consumeCrafting(recipe, completed, sess.Input)

	inst := CraftingInstant{
		CompletedRounds: completed,
		AvailableRounds: available,
		Input:           remaining,
		Output:          catalogs.ItemCount{ItemID: recipe.Output.ItemID, Count: recipe.Output.Count * available},
		TotalCompletion: sess.StartTime + int64(total)*roundMs,
	}
	if completed < total {
		next := sess.StartTime + int64(completed+1)*roundMs
		inst.NextCompletion = &next
	}
	return inst, true
}

// CraftingSlot is one crafting bay of a player, bound to a store transaction.
type CraftingSlot struct{ slot }

func (e *Engine) CraftingSlot(doc Doc, userID string, index int) *CraftingSlot {
	e.checkIndex(KindCrafting, index)
	return &CraftingSlot{slot{e: e, doc: doc, userID: userID, kind: KindCrafting, index: index}}
}

func (s *CraftingSlot) SessionState(ctx context.Context) (CraftingState, error) {
	var st CraftingState
	ok, err := s.doc.Get(ctx, Collection, s.userID, s.statePath(), &st)
	if err != nil {
		return CraftingState{}, err
	}
	if !ok {
		return CraftingState{Status: StatusIdle}, nil
	}
	if err := st.validate(); err != nil {
		return CraftingState{}, fmt.Errorf("crafting slot %d of %s: %w", s.index, s.userID, err)
	}
	return st, nil
}

func (s *CraftingSlot) save(ctx context.Context, st CraftingState) error {
	if st.Idle() {
		return s.doc.Delete(ctx, Collection, s.userID, s.statePath())
	}
	return s.doc.Set(ctx, Collection, s.userID, s.statePath(), st)
}

// Start begins a session. Ingredients must already be out of the inventory and must supply exactly
// what rounds of the recipe consume. It reports false when the start is not allowed.
func (s *CraftingSlot) Start(ctx context.Context, sessionID, recipeID string, rounds int, ingredients []items.Stack) (bool, error) {
	st, err := s.SessionState(ctx)
	if err != nil {
		return false, err
	}
	if !st.Idle() || rounds <= 0 {
		return false, nil
	}
	recipe, ok := s.e.cat.CraftingRecipe(recipeID)
	if !ok {
		return false, nil
	}
	// Recipes that hand back items (e.g. an emptied bucket) are not supported.
	if len(recipe.ReturnItems) > 0 {
		return false, nil
	}
	if !matchesRecipe(recipe, rounds, ingredients) {
		return false, nil
	}

	sess := CraftingSession{
		SessionID:   sessionID,
		RecipeID:    recipeID,
		StartTime:   s.e.Now(),
		Input:       cloneStacks(ingredients),
		TotalRounds: rounds,
	}
	return true, s.save(ctx, activeCrafting(sess))
}

// Instant derives the slot's current progress. It returns nil for an idle slot.
func (s *CraftingSlot) Instant(ctx context.Context) (*CraftingSession, *CraftingInstant, error) {
	st, err := s.SessionState(ctx)
	if err != nil || st.Idle() {
		return nil, nil, err
	}
	inst, ok := s.e.CraftingInstantState(*st.Session, s.e.Now())
	if !ok {
		return nil, nil, fmt.Errorf("crafting slot %d of %s: unknown recipe %s", s.index, s.userID, st.Session.RecipeID)
	}
	return st.Session, &inst, nil
}

// Collect takes every round completed since the last collect. It returns nil when the slot is idle
// and a zero count when nothing new has completed.
func (s *CraftingSlot) Collect(ctx context.Context) (*CraftingCollect, error) {
	sess, inst, err := s.Instant(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	next := *sess
	next.CollectedRounds += inst.AvailableRounds
	if next.CollectedRounds == next.TotalRounds {
		err = s.save(ctx, CraftingState{Status: StatusIdle})
	} else {
		err = s.save(ctx, activeCrafting(next))
	}
	if err != nil {
		return nil, err
	}
	return &CraftingCollect{Rounds: inst.AvailableRounds, Output: inst.Output}, nil
}

// Cancel ends the session, handing back uncollected output and unconsumed escrow.
func (s *CraftingSlot) Cancel(ctx context.Context) (*CraftingCancel, error) {
	sess, inst, err := s.Instant(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	if err := s.save(ctx, CraftingState{Status: StatusIdle}); err != nil {
		return nil, err
	}
	return &CraftingCancel{Output: inst.Output, Input: inst.Input}, nil
}

// FinishNow completes every remaining round immediately. The output still has to be collected.
func (s *CraftingSlot) FinishNow(ctx context.Context) (bool, error) {
	sess, inst, err := s.Instant(ctx)
	if err != nil || sess == nil {
		return false, err
	}
	if inst.CompletedRounds == sess.TotalRounds {
		return false, nil
	}
	next := *sess
	next.FinishedEarly = true
	return true, s.save(ctx, activeCrafting(next))
}
