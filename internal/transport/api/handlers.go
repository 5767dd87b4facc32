package api

import (
	"errors"
	"io"
	"net/http"
	"sort"

	"genoa.ai/internal/audit"
	"genoa.ai/internal/player"
	"genoa.ai/internal/protocol"
	"genoa.ai/internal/session"
)

func (s *Server) handleSignIn(rw http.ResponseWriter, r *http.Request) {
	s.stats.Requests.Add(1)
	deny := func(err error) {
		if !errors.Is(err, session.ErrBadTicket) && !errors.Is(err, session.ErrSessionExists) {
			s.log.Printf("signin: %v", err)
		}
		s.stats.Denied.Add(1)
		code := protocol.ErrUnauthorized
		if errors.Is(err, session.ErrSessionExists) {
			code = protocol.ErrSessionTaken
		}
		rw.Header().Set("X-Genoa-Error", code)
		rw.WriteHeader(http.StatusForbidden)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		deny(err)
		return
	}
	var req protocol.SignInRequest
	if err := s.schemas.Decode(protocol.SchemaSignIn, body, &req); err != nil {
		deny(session.ErrBadTicket)
		return
	}
	rec, err := s.sessions.SignIn(r.Context(), r.Header.Get("Session-Id"), req.SessionTicket)
	if err != nil {
		deny(err)
		return
	}

	s.trail.Record(audit.Entry{
		Time:      rec.CreatedAt,
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
		Action:    audit.ActionSignIn,
	})
	writeJSON(rw, protocol.Envelope{
		Result: protocol.SignInResult{
			BasePath:            AuthBasePath,
			AuthenticationToken: rec.Token,
			ClientProperties:    map[string]any{},
			Tokens:              map[string]any{},
			Updates:             map[string]int{},
		},
		Updates: map[string]int{},
	})
}

type catalogItemView struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Category string             `json:"category"`
	Rarity   string             `json:"rarity"`
	Stacks   bool               `json:"stacks"`
	BurnRate *protocol.BurnRate `json:"burnRate"`
}

type craftingRecipeView struct {
	ID          string                  `json:"id"`
	Category    string                  `json:"category"`
	Deprecated  bool                    `json:"deprecated"`
	Duration    string                  `json:"duration"`
	Ingredients []recipeIngredientView  `json:"ingredients"`
	Output      protocol.ItemQuantity   `json:"output"`
	ReturnItems []protocol.ItemQuantity `json:"returnItems"`
}

type recipeIngredientView struct {
	Items    []string `json:"items"`
	Quantity int      `json:"quantity"`
}

type smeltingRecipeView struct {
	ID           string `json:"id"`
	Deprecated   bool   `json:"deprecated"`
	InputItemID  string `json:"inputItemId"`
	Output       string `json:"output"`
	HeatRequired int    `json:"heatRequired"`
}

// buildCatalogViews renders the catalogs once; they never change while the process runs.
func (s *Server) buildCatalogViews() {
	s.catalogOnce.Do(func() {
		itemsOut := make([]catalogItemView, 0, len(s.cat.Items.Order))
		for _, id := range s.cat.Items.Order {
			d := s.cat.Items.Defs[id]
			v := catalogItemView{ID: d.ID, Name: d.Name, Category: d.Category, Rarity: d.Rarity, Stacks: d.Stacks}
			if d.BurnRate != nil {
				v.BurnRate = &protocol.BurnRate{BurnTime: d.BurnRate.BurnTime, HeatPerSecond: d.BurnRate.HeatPerSecond}
			}
			itemsOut = append(itemsOut, v)
		}
		s.itemsView = map[string]any{
			"efficiencyCategories": map[string]any{},
			"items":                itemsOut,
		}

		crafting := make([]craftingRecipeView, 0, len(s.cat.Crafting.ByID))
		for _, r := range s.cat.Crafting.ByID {
			v := craftingRecipeView{
				ID:          r.ID,
				Category:    r.Category,
				Deprecated:  r.Deprecated,
				Duration:    protocol.LegacyDuration(r.Duration),
				Ingredients: []recipeIngredientView{},
				Output:      protocol.ItemQuantity{ItemID: r.Output.ItemID, Quantity: r.Output.Count},
				ReturnItems: []protocol.ItemQuantity{},
			}
			for _, in := range r.Inputs {
				v.Ingredients = append(v.Ingredients, recipeIngredientView{Items: in.ItemIDs, Quantity: in.Count})
			}
			for _, ri := range r.ReturnItems {
				v.ReturnItems = append(v.ReturnItems, protocol.ItemQuantity{ItemID: ri.ItemID, Quantity: ri.Count})
			}
			crafting = append(crafting, v)
		}
		sort.Slice(crafting, func(i, j int) bool { return crafting[i].ID < crafting[j].ID })

		smelting := make([]smeltingRecipeView, 0, len(s.cat.Smelting.ByID))
		for _, r := range s.cat.Smelting.ByID {
			smelting = append(smelting, smeltingRecipeView{
				ID:           r.ID,
				Deprecated:   r.Deprecated,
				InputItemID:  r.Input,
				Output:       r.Output,
				HeatRequired: r.HeatRequired,
			})
		}
		sort.Slice(smelting, func(i, j int) bool { return smelting[i].ID < smelting[j].ID })

		s.recipesView = map[string]any{"crafting": crafting, "smelting": smelting}
	})
}

func (s *Server) catalogItems() any {
	s.buildCatalogViews()
	return s.itemsView
}

func (s *Server) catalogRecipes() any {
	s.buildCatalogViews()
	return s.recipesView
}

func (s *Server) getRubies(c *call) (any, error) {
	b, err := c.player.Rubies.Get(c.ctx)
	if err != nil {
		return nil, err
	}
	return b.Total(), nil
}

func (s *Server) getSplitRubies(c *call) (any, error) {
	b, err := c.player.Rubies.Get(c.ctx)
	if err != nil {
		return nil, err
	}
	return protocol.SplitRubies{Purchased: b.Purchased, Earned: b.Earned}, nil
}

func hotbarView(h player.Hotbar) []*protocol.HotbarView {
	out := make([]*protocol.HotbarView, len(h))
	for i, slot := range h {
		if slot == nil {
			continue
		}
		v := &protocol.HotbarView{ID: slot.ItemID, Count: slot.Count}
		if slot.IsInstance() {
			id, health := slot.InstanceID, slot.Health
			v.Count, v.InstanceID, v.Health = 1, &id, &health
		}
		out[i] = v
	}
	return out
}

func (s *Server) getInventory(c *call) (any, error) {
	hotbar, err := c.player.Inventory.Hotbar(c.ctx)
	if err != nil {
		return nil, err
	}
	entries, err := c.player.Inventory.Entries(c.ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := protocol.InventoryView{
		Hotbar:            hotbarView(hotbar),
		StackableItems:    []protocol.StackableView{},
		NonStackableItems: []protocol.NonStackableView{},
	}
	for _, id := range ids {
		e := entries[id]
		unlocked := protocol.OnDate{On: protocol.Timestamp(e.FirstSeen)}
		seen := protocol.OnDate{On: protocol.Timestamp(e.LastSeen)}
		if s.cat.IsStackable(id) {
			out.StackableItems = append(out.StackableItems, protocol.StackableView{
				ID: id, Owned: e.Count, Fragments: 1, Unlocked: unlocked, Seen: seen,
			})
			continue
		}
		instances := []protocol.InstanceView{}
		for _, iid := range e.InstanceIDs() {
			instances = append(instances, protocol.InstanceView{ID: iid, Health: e.Instances[iid]})
		}
		out.NonStackableItems = append(out.NonStackableItems, protocol.NonStackableView{
			ID: id, Instances: instances, Fragments: 1, Unlocked: unlocked, Seen: seen,
		})
	}
	return out, nil
}

func (s *Server) putHotbar(c *call) (any, error) {
	var req []*protocol.HotbarRequestSlot
	if err := s.schemas.Decode(protocol.SchemaHotbar, c.body, &req); err != nil || len(req) != player.HotbarSize {
		return nil, reject(protocol.ErrProtoBadRequest)
	}
	var want [player.HotbarSize]*player.HotbarRequest
	for i, slot := range req {
		if slot == nil {
			continue
		}
		w := &player.HotbarRequest{ItemID: slot.ID, Count: slot.Count}
		if slot.InstanceID != nil {
			if slot.Count != 1 {
				return nil, reject(protocol.ErrBadRequest)
			}
			w.InstanceID = *slot.InstanceID
		}
		want[i] = w
	}

	h, ok, err := c.player.Inventory.ApplyHotbar(c.ctx, want)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reject(protocol.ErrBadRequest)
	}
	c.seq.Invalidate(session.FieldInventory)
	c.record(audit.Entry{Action: audit.ActionHotbar})
	return hotbarView(h), nil
}
