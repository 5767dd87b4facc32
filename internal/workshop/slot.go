// Package workshop implements the timed production engine behind a player's crafting and
// smelting slots.
//
// Slots persist only the facts of a production session (when it started, what went in). Progress
// is never stored: the instant state is recomputed from the session and the current time on every
// read.
package workshop

import (
	"context"
	"fmt"
	"strconv"

	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/clock"
	"genoa.ai/internal/tuning"
)

// Collection is the store collection holding player documents.
const Collection = "player"

// Doc is the part of a store transaction the workshop needs. *store.Tx satisfies it.
type Doc interface {
	Get(ctx context.Context, collection, id, path string, out any) (bool, error)
	Set(ctx context.Context, collection, id, path string, value any) error
	Delete(ctx context.Context, collection, id, path string) error
}

type Kind string

const (
	KindCrafting Kind = "crafting"
	KindSmelting Kind = "smelting"
)

// Engine holds the read-only inputs shared by every slot: reference data, time and tuning.
type Engine struct {
	cat   *catalogs.Catalogs
	clk   clock.Clock
	grace int64

	unlockPrices map[Kind][]int
}

func NewEngine(cat *catalogs.Catalogs, clk clock.Clock, tune tuning.Tuning) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Engine{
		cat:   cat,
		clk:   clk,
		grace: tune.CraftingGracePeriodMs,
		unlockPrices: map[Kind][]int{
			KindCrafting: append([]int(nil), tune.Slots.CraftingUnlockPrices...),
			KindSmelting: append([]int(nil), tune.Slots.SmeltingUnlockPrices...),
		},
	}
}

func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cat }

func (e *Engine) Now() int64 { return clock.Millis(e.clk) }

// UnlockPrice is the reference price of a slot. Zero means the slot is never locked.
func (e *Engine) UnlockPrice(kind Kind, index int) int {
	prices := e.unlockPrices[kind]
	if index < 0 || index >= len(prices) {
		return 0
	}
	return prices[index]
}

// slot is the lockable base shared by crafting and smelting slots.
type slot struct {
	e      *Engine
	doc    Doc
	userID string
	kind   Kind
	index  int
}

type LockState struct {
	Locked      bool
	UnlockPrice int
}

func (s slot) Index() int { return s.index }

func (s slot) Kind() Kind { return s.kind }

func (s slot) statePath() string {
	return "workshop." + string(s.kind) + "." + strconv.Itoa(s.index)
}

func (s slot) lockPath() string {
	return "workshop.lock." + string(s.kind) + "." + strconv.Itoa(s.index)
}

func (s slot) LockState(ctx context.Context) (LockState, error) {
	price := s.e.UnlockPrice(s.kind, s.index)
	var locked bool
	ok, err := s.doc.Get(ctx, Collection, s.userID, s.lockPath(), &locked)
	if err != nil {
		return LockState{}, err
	}
	if !ok {
		locked = price > 0
	}
	return LockState{Locked: locked, UnlockPrice: price}, nil
}

// Unlock flips a locked slot to unlocked. It reports false if the slot was already unlocked.
// Charging for the unlock is the caller's business.
func (s slot) Unlock(ctx context.Context) (bool, error) {
	st, err := s.LockState(ctx)
	if err != nil {
		return false, err
	}
	if !st.Locked {
		return false, nil
	}
	if err := s.doc.Set(ctx, Collection, s.userID, s.lockPath(), false); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) checkIndex(kind Kind, index int) {
	if index < 0 || index >= tuning.SlotsPerKind {
		panic(fmt.Sprintf("workshop: %s slot index %d out of range", kind, index))
	}
}
