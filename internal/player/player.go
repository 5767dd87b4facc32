// Package player is the per-player aggregate: inventory and hotbar, ruby balance and workshop
// slots, all read and written through one store transaction.
package player

import (
	"context"

	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/clock"
	"genoa.ai/internal/tuning"
	"genoa.ai/internal/workshop"
)

// Doc is the part of a store transaction the player aggregate needs. *store.Tx satisfies it.
type Doc interface {
	workshop.Doc
	Increment(ctx context.Context, collection, id, path string, delta int64) (int64, error)
}

const collection = workshop.Collection

type Player struct {
	UserID    string
	Inventory *Inventory
	Rubies    *Rubies
	Workshop  *Workshop
}

type Workshop struct {
	Crafting [tuning.SlotsPerKind]*workshop.CraftingSlot
	Smelting [tuning.SlotsPerKind]*workshop.SmeltingSlot
}

func New(doc Doc, userID string, engine *workshop.Engine, clk clock.Clock) *Player {
	if clk == nil {
		clk = clock.RealClock{}
	}
	p := &Player{
		UserID:    userID,
		Inventory: &Inventory{doc: doc, userID: userID, cat: engine.Catalogs(), clk: clk},
		Rubies:    &Rubies{doc: doc, userID: userID},
		Workshop:  &Workshop{},
	}
	for i := 0; i < tuning.SlotsPerKind; i++ {
		p.Workshop.Crafting[i] = engine.CraftingSlot(doc, userID, i)
		p.Workshop.Smelting[i] = engine.SmeltingSlot(doc, userID, i)
	}
	return p
}

// catalog is the slice of the item catalog the inventory consults.
type catalog interface {
	IsStackable(id string) bool
	Item(id string) (catalogs.ItemDef, bool)
}
