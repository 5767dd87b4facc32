package workshop

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/clock"
	"genoa.ai/internal/items"
	"genoa.ai/internal/persistence/store"
	"genoa.ai/internal/tuning"
)

const (
	itemLog    = "log"
	itemPlanks = "planks"
	itemStick  = "stick"
	itemCobble = "cobblestone"
	itemStone  = "stone"
	itemOre    = "iron_ore"
	itemIngot  = "iron_ingot"
	itemCoal   = "coal"
	itemStraw  = "straw"
	itemLava   = "lava_bucket"
	itemBucket = "bucket"
	itemPick   = "pickaxe"
	itemShard  = "shard"
	itemAmber  = "amber"
)

func testCatalogs() *catalogs.Catalogs {
	defs := []catalogs.ItemDef{
		{ID: itemLog, Stacks: true},
		{ID: itemPlanks, Stacks: true},
		{ID: itemStick, Stacks: true},
		{ID: itemCobble, Stacks: true},
		{ID: itemStone, Stacks: true},
		{ID: itemOre, Stacks: true},
		{ID: itemIngot, Stacks: true},
		{ID: itemBucket, Stacks: true},
		{ID: itemCoal, Stacks: true, BurnRate: &catalogs.BurnRate{BurnTime: 80, HeatPerSecond: 10}},
		{ID: itemStraw, Stacks: true, BurnRate: &catalogs.BurnRate{BurnTime: 15, HeatPerSecond: 1}},
		{ID: itemLava, Stacks: false, BurnRate: &catalogs.BurnRate{BurnTime: 1000, HeatPerSecond: 20},
			FuelReturnItems: []catalogs.ItemCount{{ItemID: itemBucket, Count: 1}}},
		{ID: itemPick, Stacks: false, BurnRate: &catalogs.BurnRate{BurnTime: 10, HeatPerSecond: 10}},
		{ID: itemShard, Stacks: false},
		{ID: itemAmber, Stacks: true},
	}
	c := &catalogs.Catalogs{
		Items:    catalogs.ItemCatalog{Defs: map[string]catalogs.ItemDef{}},
		Crafting: catalogs.CraftingCatalog{ByID: map[string]catalogs.CraftingRecipe{}},
		Smelting: catalogs.SmeltingCatalog{ByID: map[string]catalogs.SmeltingRecipe{}},
	}
	for _, d := range defs {
		c.Items.Defs[d.ID] = d
		c.Items.Order = append(c.Items.Order, d.ID)
	}
	for _, r := range []catalogs.CraftingRecipe{
		{ID: "planks", Inputs: []catalogs.IngredientGroup{{ItemIDs: []string{itemLog}, Count: 1}},
			Output: catalogs.ItemCount{ItemID: itemPlanks, Count: 4}, Duration: 10},
		{ID: "pickaxe", Inputs: []catalogs.IngredientGroup{
			{ItemIDs: []string{itemPlanks, itemCobble}, Count: 3},
			{ItemIDs: []string{itemStick}, Count: 2},
		}, Output: catalogs.ItemCount{ItemID: itemPick, Count: 1}, Duration: 30},
		{ID: "amber", Inputs: []catalogs.IngredientGroup{{ItemIDs: []string{itemShard}, Count: 2}},
			Output: catalogs.ItemCount{ItemID: itemAmber, Count: 1}, Duration: 5},
		{ID: "bucketed", Inputs: []catalogs.IngredientGroup{{ItemIDs: []string{itemLog}, Count: 1}},
			Output: catalogs.ItemCount{ItemID: itemPlanks, Count: 1},
			ReturnItems: []catalogs.ItemCount{{ItemID: itemBucket, Count: 1}}, Duration: 10},
	} {
		c.Crafting.ByID[r.ID] = r
	}
	for _, r := range []catalogs.SmeltingRecipe{
		{ID: "stone", Input: itemCobble, Output: itemStone, HeatRequired: 10},
		{ID: "ingot", Input: itemOre, Output: itemIngot, HeatRequired: 200},
		{ID: "glass_shard", Input: itemShard, Output: itemAmber, HeatRequired: 10},
	} {
		c.Smelting.ByID[r.ID] = r
	}
	return c
}

type fixture struct {
	ctx    context.Context
	clk    *clock.Manual
	engine *Engine
	tx     *store.Tx
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "workshop.sqlite"), store.RetryPolicy{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	clk := clock.NewManual(time.UnixMilli(0))
	return &fixture{
		ctx:    context.Background(),
		clk:    clk,
		engine: NewEngine(testCatalogs(), clk, tuning.Defaults()),
		tx:     st.Begin(),
	}
}

func (f *fixture) crafting(i int) *CraftingSlot { return f.engine.CraftingSlot(f.tx, "0123456789ABCDEF", i) }

func (f *fixture) smelting(i int) *SmeltingSlot { return f.engine.SmeltingSlot(f.tx, "0123456789ABCDEF", i) }

func (f *fixture) at(ms int64) { f.clk.Set(time.UnixMilli(ms)) }

func TestUnlockExactlyOnce(t *testing.T) {
	f := newFixture(t)

	first := f.crafting(0)
	ls, err := first.LockState(f.ctx)
	if err != nil {
		t.Fatalf("lock state: %v", err)
	}
	if ls.Locked || ls.UnlockPrice != 0 {
		t.Fatalf("first slot should start unlocked: %+v", ls)
	}
	if ok, _ := first.Unlock(f.ctx); ok {
		t.Fatalf("unlocking an unlocked slot should fail")
	}

	second := f.smelting(1)
	ls, _ = second.LockState(f.ctx)
	if !ls.Locked || ls.UnlockPrice != 5 {
		t.Fatalf("second smelting slot should be locked at 5: %+v", ls)
	}
	ok, err := second.Unlock(f.ctx)
	if err != nil || !ok {
		t.Fatalf("unlock: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Unlock(f.ctx); ok {
		t.Fatalf("second unlock should fail")
	}
	ls, _ = second.LockState(f.ctx)
	if ls.Locked {
		t.Fatalf("slot still locked after unlock")
	}
	// Other slots are unaffected.
	if ls, _ := f.crafting(1).LockState(f.ctx); !ls.Locked {
		t.Fatalf("crafting slot 1 should still be locked")
	}
}

func TestPriceToFinish(t *testing.T) {
	cases := []struct {
		remaining int
		want      Price
	}{
		{0, Price{0, 0}},
		{-3, Price{0, 0}},
		{1, Price{5, 0}},
		{10, Price{5, 0}},
		{11, Price{10, 10}},
		{25, Price{15, 20}},
		{60, Price{30, 50}},
	}
	for _, c := range cases {
		if got := PriceToFinish(c.remaining); got != c.want {
			t.Fatalf("PriceToFinish(%d) = %+v, want %+v", c.remaining, got, c.want)
		}
	}
}

func TestRemainingSeconds(t *testing.T) {
	if got := RemainingSeconds(30000, 25000); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := RemainingSeconds(30000, 25001); got != 5 {
		t.Fatalf("expected partial second to round up, got %d", got)
	}
	if got := RemainingSeconds(30000, 30500); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := RemainingSeconds(30000, 32000); got != -2 {
		t.Fatalf("expected -2, got %d", got)
	}
}

func TestCorruptStateIsAnError(t *testing.T) {
	f := newFixture(t)
	if err := f.tx.Set(f.ctx, Collection, "0123456789ABCDEF", "workshop.crafting.2", map[string]any{"status": "paused"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := f.crafting(2).SessionState(f.ctx); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func stack(id string, n int) items.Stack { return items.Counted(id, n) }

func defaultsForTest() tuning.Tuning { return tuning.Defaults() }
