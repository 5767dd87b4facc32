package workshop

import (
	"fmt"

	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/items"
)

// groupOf returns the index of the first recipe input group accepting itemID, or -1.
func groupOf(recipe catalogs.CraftingRecipe, itemID string) int {
	for i, g := range recipe.Inputs {
		if g.Accepts(itemID) {
			return i
		}
	}
	return -1
}

// matchesRecipe reports whether ingredients supply exactly count*rounds of every input group.
func matchesRecipe(recipe catalogs.CraftingRecipe, rounds int, ingredients []items.Stack) bool {
	provided := make([]int, len(recipe.Inputs))
	for _, in := range ingredients {
		if in.Quantity() <= 0 {
			return false
		}
		g := groupOf(recipe, in.ItemID)
		if g < 0 {
			return false
		}
		provided[g] += in.Quantity()
	}
	for i, g := range recipe.Inputs {
		if provided[i] != g.Count*rounds {
			return false
		}
	}
	return true
}

// consumeCrafting removes what rounds of the recipe consume from the escrow, front first per input
// group. It returns the consumed and the remaining stacks; empty stacks are dropped from both.
// Escrow always covers every started round, so a shortfall is a data model bug and panics.
func consumeCrafting(recipe catalogs.CraftingRecipe, rounds int, escrow []items.Stack) (consumed, remaining []items.Stack) {
	need := make([]int, len(recipe.Inputs))
	for i, g := range recipe.Inputs {
		need[i] = g.Count * rounds
	}
	for _, in := range escrow {
		g := groupOf(recipe, in.ItemID)
		if g < 0 {
			panic(fmt.Sprintf("workshop: escrowed item %s does not belong to recipe %s", in.ItemID, recipe.ID))
		}
		taken, rest := in.Split(need[g])
		need[g] -= taken.Quantity()
		if !taken.IsEmpty() {
			consumed = append(consumed, taken)
		}
		if !rest.IsEmpty() {
			remaining = append(remaining, rest)
		}
	}
	for i, n := range need {
		if n != 0 {
			panic(fmt.Sprintf("workshop: escrow for recipe %s short by %d in input group %d", recipe.ID, n, i))
		}
	}
	return consumed, remaining
}

// consumeSmelting removes one input unit per completed round from the front of the escrow.
func consumeSmelting(rounds int, escrow items.Stack) (consumed, remaining items.Stack) {
	if rounds > escrow.Quantity() {
		panic(fmt.Sprintf("workshop: smelting escrow of %d cannot cover %d rounds", escrow.Quantity(), rounds))
	}
	return escrow.Split(rounds)
}

func cloneStacks(in []items.Stack) []items.Stack {
	out := make([]items.Stack, 0, len(in))
	for _, s := range in {
		out = append(out, s.Clone())
	}
	return out
}
