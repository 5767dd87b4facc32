package workshop

import (
	"fmt"

	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/items"
)

// Status discriminates persisted slot states.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
)

type CraftingSession struct {
	SessionID       string        `json:"session_id"`
	RecipeID        string        `json:"recipe_id"`
	StartTime       int64         `json:"start_time"` // unix ms
	Input           []items.Stack `json:"input"`
	TotalRounds     int           `json:"total_rounds"`
	CollectedRounds int           `json:"collected_rounds"`
	FinishedEarly   bool          `json:"finished_early"`
}

// CraftingState is what a crafting slot persists. Idle slots persist nothing.
type CraftingState struct {
	Status  Status           `json:"status"`
	Session *CraftingSession `json:"session,omitempty"`
}

func (s CraftingState) Idle() bool { return s.Status != StatusActive || s.Session == nil }

// Fuel is a quantity of one fuel item together with the burn rate it was queued at.
type Fuel struct {
	Item     items.Stack       `json:"item"`
	BurnRate catalogs.BurnRate `json:"burn_rate"`
}

// UnitHeat is the heat released by one unit of the fuel.
func (f Fuel) UnitHeat() int { return f.BurnRate.TotalHeat() }

func (f Fuel) TotalHeat() int { return f.UnitHeat() * f.Item.Quantity() }

// Heat is a single partially burned fuel unit. Fuel.Item always holds exactly one unit.
type Heat struct {
	Fuel          Fuel `json:"fuel"`
	RemainingHeat int  `json:"remaining_heat"`
}

type SmeltingSession struct {
	SessionID       string      `json:"session_id"`
	RecipeID        string      `json:"recipe_id"`
	StartTime       int64       `json:"start_time"` // unix ms
	Input           items.Stack `json:"input"`
	OutputItemID    string      `json:"output_item_id"`
	TotalRounds     int         `json:"total_rounds"`
	CollectedRounds int         `json:"collected_rounds"`
	// Fuel queued behind HeatCarriedOver, burned front first.
	Fuel            *Fuel `json:"fuel,omitempty"`
	HeatCarriedOver *Heat `json:"heat_carried_over,omitempty"`
	FinishedEarly   bool  `json:"finished_early"`
}

// SmeltingState is what a smelting slot persists. An idle slot keeps only its banked heat.
type SmeltingState struct {
	Status          Status           `json:"status"`
	Session         *SmeltingSession `json:"session,omitempty"`
	HeatCarriedOver *Heat            `json:"heat_carried_over,omitempty"`
}

func (s SmeltingState) Idle() bool { return s.Status != StatusActive || s.Session == nil }

// CarriedOver returns the banked heat of the slot, whichever variant it is in.
func (s SmeltingState) CarriedOver() *Heat {
	if s.Idle() {
		return s.HeatCarriedOver
	}
	return s.Session.HeatCarriedOver
}

func activeCrafting(sess CraftingSession) CraftingState {
	return CraftingState{Status: StatusActive, Session: &sess}
}

func activeSmelting(sess SmeltingSession) SmeltingState {
	return SmeltingState{Status: StatusActive, Session: &sess}
}

func idleSmelting(heat *Heat) SmeltingState {
	if heat != nil && heat.RemainingHeat <= 0 {
		heat = nil
	}
	return SmeltingState{Status: StatusIdle, HeatCarriedOver: heat}
}

func (s CraftingState) validate() error {
	switch s.Status {
	case StatusIdle:
		return nil
	case StatusActive:
		if s.Session == nil {
			return fmt.Errorf("active crafting state without session")
		}
		return nil
	default:
		return fmt.Errorf("unknown crafting status %q", s.Status)
	}
}

func (s SmeltingState) validate() error {
	switch s.Status {
	case StatusIdle:
		return nil
	case StatusActive:
		if s.Session == nil {
			return fmt.Errorf("active smelting state without session")
		}
		return nil
	default:
		return fmt.Errorf("unknown smelting status %q", s.Status)
	}
}
