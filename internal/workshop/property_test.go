package workshop

import (
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/items"
)

func drawCraftingSession(t *rapid.T) CraftingSession {
	rounds := rapid.IntRange(1, 12).Draw(t, "rounds")
	return CraftingSession{
		SessionID:     "s",
		RecipeID:      "pickaxe",
		StartTime:     rapid.Int64Range(0, 1<<40).Draw(t, "start"),
		Input:         []items.Stack{stack(itemCobble, rounds), stack(itemPlanks, 2*rounds), stack(itemStick, 2*rounds)},
		TotalRounds:   rounds,
		FinishedEarly: rapid.Bool().Draw(t, "finishedEarly"),
	}
}

func drawSmeltingSession(t *rapid.T) SmeltingSession {
	sess := SmeltingSession{
		SessionID:    "s",
		RecipeID:     "stone",
		StartTime:    rapid.Int64Range(0, 1<<40).Draw(t, "start"),
		OutputItemID: itemStone,
	}
	if rapid.Bool().Draw(t, "carry") {
		sess.HeatCarriedOver = &Heat{
			Fuel: Fuel{Item: stack(itemCoal, 1), BurnRate: catalogs.BurnRate{
				BurnTime:      rapid.IntRange(1, 30).Draw(t, "carryBurnTime"),
				HeatPerSecond: rapid.IntRange(1, 2000).Draw(t, "carryRate"),
			}},
		}
		sess.HeatCarriedOver.RemainingHeat = rapid.IntRange(1, sess.HeatCarriedOver.Fuel.UnitHeat()).Draw(t, "carryHeat")
	}
	if units := rapid.IntRange(0, 6).Draw(t, "units"); units > 0 {
		sess.Fuel = &Fuel{Item: stack(itemStraw, units), BurnRate: catalogs.BurnRate{
			BurnTime:      rapid.IntRange(1, 30).Draw(t, "burnTime"),
			HeatPerSecond: rapid.IntRange(1, 2000).Draw(t, "rate"),
		}}
	}
	available := newBurnPlan(sess).TotalHeat()
	if available < 10 {
		t.Skip("not enough heat for a single round")
	}
	sess.TotalRounds = rapid.IntRange(1, min(available/10, 50)).Draw(t, "rounds")
	sess.Input = stack(itemCobble, sess.TotalRounds)
	sess.FinishedEarly = rapid.Bool().Draw(t, "finishedEarly")
	return sess
}

func TestCraftingInstantProperties(t *testing.T) {
	e := NewEngine(testCatalogs(), nil, defaultsForTest())
	rapid.Check(t, func(t *rapid.T) {
		sess := drawCraftingSession(t)
		t1 := sess.StartTime + rapid.Int64Range(-10_000, 600_000).Draw(t, "dt1")
		t2 := t1 + rapid.Int64Range(0, 600_000).Draw(t, "dt2")

		a, ok := e.CraftingInstantState(sess, t1)
		if !ok {
			t.Fatalf("instant failed")
		}
		again, _ := e.CraftingInstantState(sess, t1)
		if !reflect.DeepEqual(a, again) {
			t.Fatalf("instant state not idempotent: %+v vs %+v", a, again)
		}
		b, _ := e.CraftingInstantState(sess, t2)
		if a.CompletedRounds > b.CompletedRounds {
			t.Fatalf("completed rounds went backwards: %d at %d, %d at %d", a.CompletedRounds, t1, b.CompletedRounds, t2)
		}
		if a.CompletedRounds < 0 || a.CompletedRounds > sess.TotalRounds {
			t.Fatalf("completed rounds out of range: %d", a.CompletedRounds)
		}

		// Escrow is conserved: what completed rounds consumed plus what remains is what went in.
		consumed, _ := consumeCrafting(testCatalogs().Crafting.ByID["pickaxe"], a.CompletedRounds, sess.Input)
		total := items.Total(append(consumed, a.Input...))
		if !reflect.DeepEqual(total, items.Total(sess.Input)) {
			t.Fatalf("escrow not conserved: %v vs %v", total, items.Total(sess.Input))
		}

		done := sess.StartTime + int64(sess.TotalRounds)*30_000
		c, _ := e.CraftingInstantState(sess, done)
		if c.CompletedRounds != sess.TotalRounds || c.NextCompletion != nil {
			t.Fatalf("session not complete at its total completion time: %+v", c)
		}
	})
}

func TestSmeltingInstantProperties(t *testing.T) {
	e := NewEngine(testCatalogs(), nil, defaultsForTest())
	rapid.Check(t, func(t *rapid.T) {
		sess := drawSmeltingSession(t)
		plan := newBurnPlan(sess)
		available := plan.TotalHeat()
		t1 := sess.StartTime + rapid.Int64Range(-1_000, 400_000).Draw(t, "dt1")
		t2 := t1 + rapid.Int64Range(0, 400_000).Draw(t, "dt2")

		a, ok := e.SmeltingInstantState(sess, t1)
		if !ok {
			t.Fatalf("instant failed")
		}
		again, _ := e.SmeltingInstantState(sess, t1)
		if !reflect.DeepEqual(a, again) {
			t.Fatalf("instant state not idempotent")
		}
		b, _ := e.SmeltingInstantState(sess, t2)
		if a.CompletedRounds > b.CompletedRounds {
			t.Fatalf("completed rounds went backwards")
		}

		for _, inst := range []SmeltingInstant{a, b} {
			if inst.Heat.RemainingHeat < 0 || inst.Heat.RemainingHeat > inst.Heat.Fuel.UnitHeat() {
				t.Fatalf("remaining heat out of range: %+v", inst.Heat)
			}
			left := inst.Heat.RemainingHeat
			if inst.Fuel != nil {
				left += inst.Fuel.TotalHeat()
			}
			drawn := available - left
			if drawn < 0 || drawn > available {
				t.Fatalf("drawn heat %d outside [0, %d]", drawn, available)
			}
			if drawn < 10*inst.CompletedRounds && !sess.FinishedEarly {
				t.Fatalf("%d rounds completed on only %d heat", inst.CompletedRounds, drawn)
			}
			if inst.Input.Quantity()+inst.CompletedRounds != sess.TotalRounds {
				t.Fatalf("input escrow not conserved")
			}
		}

		// At total completion exactly the required heat has been drawn.
		end, _ := e.SmeltingInstantState(sess, a.TotalCompletion)
		left := end.Heat.RemainingHeat
		if end.Fuel != nil {
			left += end.Fuel.TotalHeat()
		}
		if end.CompletedRounds != sess.TotalRounds || available-left != 10*sess.TotalRounds {
			t.Fatalf("at completion: rounds=%d drawn=%d want %d", end.CompletedRounds, available-left, 10*sess.TotalRounds)
		}
	})
}
