package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"genoa.ai/internal/audit"
	"genoa.ai/internal/persistence/store"
	"genoa.ai/internal/player"
	"genoa.ai/internal/workshop"
)

type playerSummary struct {
	UserID      string
	Purchased   int
	Earned      int
	Items       int
	ActiveSlots int
}

// playerDoc is the subset of a player document the summary reads.
type playerDoc struct {
	Rubies    player.Balance          `json:"rubies"`
	Inventory map[string]player.Entry `json:"inventory"`
	Workshop  struct {
		Crafting map[string]workshop.CraftingState `json:"crafting"`
		Smelting map[string]workshop.SmeltingState `json:"smelting"`
	} `json:"workshop"`
}

func summarizePlayers(ctx context.Context, st *store.Store) ([]playerSummary, error) {
	docs, err := st.List(ctx, workshop.Collection)
	if err != nil {
		return nil, err
	}
	out := make([]playerSummary, 0, len(docs))
	for _, d := range docs {
		var pd playerDoc
		if err := json.Unmarshal(d.Value, &pd); err != nil {
			return nil, fmt.Errorf("player %s: %w", d.ID, err)
		}
		s := playerSummary{UserID: d.ID, Purchased: pd.Rubies.Purchased, Earned: pd.Rubies.Earned}
		for _, e := range pd.Inventory {
			s.Items += e.Count + len(e.Instances)
		}
		for _, c := range pd.Workshop.Crafting {
			if !c.Idle() {
				s.ActiveSlots++
			}
		}
		for _, c := range pd.Workshop.Smelting {
			if !c.Idle() {
				s.ActiveSlots++
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func grantRubies(ctx context.Context, st *store.Store, engine *workshop.Engine, trail *audit.Trail, userID string, purchased, earned int) (player.Balance, error) {
	if purchased < 0 || earned < 0 || purchased+earned == 0 {
		return player.Balance{}, errors.New("nothing to grant")
	}
	var b player.Balance
	err := st.Run(ctx, func(tx *store.Tx) error {
		p := player.New(tx, userID, engine, nil)
		if purchased > 0 {
			if err := p.Rubies.AddPurchased(ctx, purchased); err != nil {
				return err
			}
		}
		if earned > 0 {
			if err := p.Rubies.AddEarned(ctx, earned); err != nil {
				return err
			}
		}
		var err error
		b, err = p.Rubies.Get(ctx)
		return err
	})
	if err != nil {
		return player.Balance{}, err
	}
	trail.Record(audit.Entry{Time: engine.Now(), UserID: userID, Action: audit.ActionGrantRubies, Rubies: purchased + earned})
	return b, nil
}

func grantItems(ctx context.Context, st *store.Store, engine *workshop.Engine, trail *audit.Trail, userID, itemID string, count int) ([]string, error) {
	if _, ok := engine.Catalogs().Item(itemID); !ok {
		return nil, fmt.Errorf("unknown item %s", itemID)
	}
	if count <= 0 {
		return nil, errors.New("count must be positive")
	}
	var minted []string
	err := st.Run(ctx, func(tx *store.Tx) error {
		var err error
		minted, err = player.New(tx, userID, engine, nil).Inventory.AddItems(ctx, itemID, count, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	trail.Record(audit.Entry{Time: engine.Now(), UserID: userID, Action: audit.ActionGrantItems, ItemID: itemID, Quantity: count})
	return minted, nil
}

func filterAudit(entries []audit.Entry, userID, action string) []audit.Entry {
	var out []audit.Entry
	for _, e := range entries {
		if userID != "" && e.UserID != userID {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		out = append(out, e)
	}
	return out
}
