package api

import (
	"strconv"

	"genoa.ai/internal/audit"
	"genoa.ai/internal/items"
	"genoa.ai/internal/player"
	"genoa.ai/internal/protocol"
	"genoa.ai/internal/session"
	"genoa.ai/internal/tuning"
	"genoa.ai/internal/workshop"
)

// slotCall is a request addressed to one workshop slot. Index is 0-based.
type slotCall struct {
	*call
	kind  workshop.Kind
	index int
}

func (c slotCall) crafting() *workshop.CraftingSlot { return c.player.Workshop.Crafting[c.index] }
func (c slotCall) smelting() *workshop.SmeltingSlot { return c.player.Workshop.Smelting[c.index] }

func (c slotCall) field() session.Field {
	if c.kind == workshop.KindCrafting {
		return session.FieldCrafting
	}
	return session.FieldSmelting
}

func (c slotCall) lock() (workshop.LockState, error) {
	if c.kind == workshop.KindCrafting {
		return c.crafting().LockState(c.ctx)
	}
	return c.smelting().LockState(c.ctx)
}

func (c slotCall) entry(action string) audit.Entry {
	return audit.Entry{Action: action, Kind: string(c.kind), Slot: c.index + 1}
}

// slotHandler resolves the 1-based {slot} path value before calling fn.
func (s *Server) slotHandler(kind workshop.Kind, fn func(c slotCall) (any, error)) handler {
	return func(c *call) (any, error) {
		n, err := strconv.Atoi(c.r.PathValue("slot"))
		if err != nil || n < 1 || n > tuning.SlotsPerKind {
			return nil, reject(protocol.ErrBadRequest)
		}
		return fn(slotCall{call: c, kind: kind, index: n - 1})
	}
}

func (s *Server) slotView(c slotCall) (any, error) {
	if c.kind == workshop.KindCrafting {
		return s.craftingView(c.call, c.crafting())
	}
	return s.smeltingView(c.call, c.smelting())
}

func (s *Server) getSlot(c slotCall) (any, error) {
	return s.slotView(c)
}

func (s *Server) getUtilityBlocks(c *call) (any, error) {
	out := protocol.UtilityBlocks{
		Crafting: map[string]protocol.CraftingSlotView{},
		Smelting: map[string]protocol.SmeltingSlotView{},
	}
	for i := 0; i < tuning.SlotsPerKind; i++ {
		cv, err := s.craftingView(c, c.player.Workshop.Crafting[i])
		if err != nil {
			return nil, err
		}
		sv, err := s.smeltingView(c, c.player.Workshop.Smelting[i])
		if err != nil {
			return nil, err
		}
		key := strconv.Itoa(i + 1)
		out.Crafting[key] = cv
		out.Smelting[key] = sv
	}
	return out, nil
}

// collectRequest takes the offered items out of the player's hotbar and inventory.
func collectRequest(c *call, req protocol.RequestItem, maxCount int) (*items.Stack, error) {
	if !req.Valid() {
		return nil, reject(protocol.ErrBadRequest)
	}
	got, err := c.player.Inventory.CollectRequestItem(c.ctx, player.ItemRequest{
		ItemID:      req.ItemID,
		Quantity:    req.Quantity,
		InstanceIDs: req.ItemInstanceIDs,
	}, maxCount)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, reject(protocol.ErrNoResource)
	}
	return got, nil
}

func (s *Server) requireUnlocked(c slotCall) error {
	lock, err := c.lock()
	if err != nil {
		return err
	}
	if lock.Locked {
		return reject(protocol.ErrSlotLocked)
	}
	return nil
}

func (s *Server) startCrafting(c slotCall) (any, error) {
	var req protocol.CraftingStartRequest
	if err := s.schemas.Decode(protocol.SchemaCraftingStart, c.body, &req); err != nil {
		return nil, reject(protocol.ErrProtoBadRequest)
	}
	if err := s.requireUnlocked(c); err != nil {
		return nil, err
	}

	ingredients := make([]items.Stack, 0, len(req.Ingredients))
	for _, in := range req.Ingredients {
		got, err := collectRequest(c.call, in, -1)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, *got)
	}

	ok, err := c.crafting().Start(c.ctx, req.SessionID, req.RecipeID, req.Multiplier, ingredients)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reject(protocol.ErrBadRequest)
	}
	c.seq.Invalidate(session.FieldCrafting, session.FieldInventory)
	e := c.entry(audit.ActionStart)
	e.WorkID, e.RecipeID, e.Rounds = req.SessionID, req.RecipeID, req.Multiplier
	c.record(e)
	return struct{}{}, nil
}

func (s *Server) startSmelting(c slotCall) (any, error) {
	var req protocol.SmeltingStartRequest
	if err := s.schemas.Decode(protocol.SchemaSmeltingStart, c.body, &req); err != nil {
		return nil, reject(protocol.ErrProtoBadRequest)
	}
	if err := s.requireUnlocked(c); err != nil {
		return nil, err
	}
	slot := c.smelting()

	input, err := collectRequest(c.call, req.Input, -1)
	if err != nil {
		return nil, err
	}

	var fuel *items.Stack
	fuelUnits := 0
	if req.Fuel != nil && req.Fuel.Quantity > 0 {
		st, err := slot.SessionState(c.ctx)
		if err != nil {
			return nil, err
		}
		if !st.Idle() {
			return nil, reject(protocol.ErrSlotBusy)
		}
		need, ok, err := slot.FuelUnitsNeeded(c.ctx, req.RecipeID, req.Multiplier, req.Fuel.ItemID)
		if err != nil {
			return nil, err
		}
		if !ok || req.Fuel.Quantity < need {
			return nil, reject(protocol.ErrBadRequest)
		}
		if need > 0 {
			fuel, err = collectRequest(c.call, *req.Fuel, need)
			if err != nil {
				return nil, err
			}
			fuelUnits = fuel.Quantity()
		}
	}

	ok, err := slot.Start(c.ctx, req.SessionID, req.RecipeID, req.Multiplier, *input, fuel)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reject(protocol.ErrBadRequest)
	}
	c.seq.Invalidate(session.FieldSmelting, session.FieldInventory)
	e := c.entry(audit.ActionStart)
	e.WorkID, e.RecipeID, e.Rounds, e.FuelUnits = req.SessionID, req.RecipeID, req.Multiplier, fuelUnits
	c.record(e)
	return struct{}{}, nil
}

func (s *Server) collect(c slotCall) (any, error) {
	var (
		output  items.Stack
		unused  items.Stack
		rounds  int
		present bool
	)
	if c.kind == workshop.KindCrafting {
		res, err := c.crafting().Collect(c.ctx)
		if err != nil {
			return nil, err
		}
		if res != nil {
			present, rounds = true, res.Rounds
			output = items.Counted(res.Output.ItemID, res.Output.Count)
		}
	} else {
		res, err := c.smelting().Collect(c.ctx)
		if err != nil {
			return nil, err
		}
		if res != nil {
			present, rounds = true, res.Rounds
			output = items.Counted(res.Output.ItemID, res.Output.Count)
			unused = res.UnusedFuel
		}
	}
	if !present {
		return nil, reject(protocol.ErrBadRequest)
	}

	c.seq.Invalidate(c.field(), session.FieldInventory, session.FieldJournal)
	if output.Count > 0 {
		if _, err := c.player.Inventory.AddItems(c.ctx, output.ItemID, output.Count, true); err != nil {
			return nil, err
		}
	}
	if err := c.player.Inventory.Give(c.ctx, unused, false); err != nil {
		return nil, err
	}
	e := c.entry(audit.ActionCollect)
	e.Rounds, e.ItemID, e.Quantity, e.FuelUnits = rounds, output.ItemID, output.Count, unused.Quantity()
	c.record(e)
	return protocol.NewCollectResult(output.ItemID, output.Count), nil
}

func (s *Server) stop(c slotCall) (any, error) {
	var (
		output  items.Stack
		refund  []items.Stack
		present bool
	)
	if c.kind == workshop.KindCrafting {
		res, err := c.crafting().Cancel(c.ctx)
		if err != nil {
			return nil, err
		}
		if res != nil {
			present = true
			output = items.Counted(res.Output.ItemID, res.Output.Count)
			refund = res.Input
		}
	} else {
		res, err := c.smelting().Cancel(c.ctx)
		if err != nil {
			return nil, err
		}
		if res != nil {
			present = true
			output = items.Counted(res.Output.ItemID, res.Output.Count)
			refund = []items.Stack{res.Input, res.UnusedFuel}
		}
	}

	if present {
		c.seq.Invalidate(c.field(), session.FieldInventory, session.FieldJournal)
		if output.Count > 0 {
			if _, err := c.player.Inventory.AddItems(c.ctx, output.ItemID, output.Count, true); err != nil {
				return nil, err
			}
		}
		for _, st := range refund {
			if err := c.player.Inventory.Give(c.ctx, st, false); err != nil {
				return nil, err
			}
		}
		e := c.entry(audit.ActionCancel)
		e.ItemID, e.Quantity = output.ItemID, output.Count
		c.record(e)
	}
	return s.slotView(c)
}

// totalCompletion reports when the slot's session will be done, or false when it is idle.
func (s *Server) totalCompletion(c slotCall) (int64, bool, error) {
	if c.kind == workshop.KindCrafting {
		st, err := c.crafting().SessionState(c.ctx)
		if err != nil || st.Idle() {
			return 0, false, err
		}
		inst, ok := s.engine.CraftingInstantState(*st.Session, c.now)
		return inst.TotalCompletion, ok, nil
	}
	st, err := c.smelting().SessionState(c.ctx)
	if err != nil || st.Idle() {
		return 0, false, err
	}
	inst, ok := s.engine.SmeltingInstantState(*st.Session, c.now)
	return inst.TotalCompletion, ok, nil
}

func (s *Server) finish(c slotCall) (any, error) {
	var req protocol.PurchaseRequest
	if err := s.schemas.Decode(protocol.SchemaPurchase, c.body, &req); err != nil {
		return nil, reject(protocol.ErrProtoBadRequest)
	}
	total, ok, err := s.totalCompletion(c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reject(protocol.ErrBadRequest)
	}
	remaining := workshop.RemainingSeconds(total, c.now)
	if remaining < 0 {
		return nil, reject(protocol.ErrBadRequest)
	}
	price := workshop.PriceToFinish(remaining)
	if req.ExpectedPurchasePrice < price.Price {
		return nil, reject(protocol.ErrPriceChanged)
	}
	paid, err := c.player.Rubies.Spend(c.ctx, price.Price)
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, reject(protocol.ErrNoResource)
	}

	var finished bool
	if c.kind == workshop.KindCrafting {
		finished, err = c.crafting().FinishNow(c.ctx)
	} else {
		finished, err = c.smelting().FinishNow(c.ctx)
	}
	if err != nil {
		return nil, err
	}
	if !finished {
		return nil, reject(protocol.ErrBadRequest)
	}
	c.seq.Invalidate(c.field())

	e := c.entry(audit.ActionFinish)
	e.Rubies = price.Price
	c.record(e)

	b, err := c.player.Rubies.Get(c.ctx)
	if err != nil {
		return nil, err
	}
	return protocol.SplitRubies{Purchased: b.Purchased, Earned: b.Earned}, nil
}

func (s *Server) finishPrice(c *call) (any, error) {
	secs, err := protocol.ParseDuration(c.r.URL.Query().Get("remainingTime"))
	if err != nil {
		return nil, reject(protocol.ErrProtoBadRequest)
	}
	price := workshop.PriceToFinish(secs)
	return protocol.FinishPrice{
		Cost:      price.Price,
		ValidTime: protocol.LegacyDuration(secs - price.ChangesAt),
	}, nil
}

func (s *Server) unlock(c slotCall) (any, error) {
	var req protocol.PurchaseRequest
	if err := s.schemas.Decode(protocol.SchemaPurchase, c.body, &req); err != nil {
		return nil, reject(protocol.ErrProtoBadRequest)
	}
	lock, err := c.lock()
	if err != nil {
		return nil, err
	}
	if !lock.Locked {
		return nil, reject(protocol.ErrBadRequest)
	}
	if req.ExpectedPurchasePrice != lock.UnlockPrice {
		return nil, reject(protocol.ErrPriceChanged)
	}
	paid, err := c.player.Rubies.Spend(c.ctx, lock.UnlockPrice)
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, reject(protocol.ErrNoResource)
	}

	var unlocked bool
	if c.kind == workshop.KindCrafting {
		unlocked, err = c.crafting().Unlock(c.ctx)
	} else {
		unlocked, err = c.smelting().Unlock(c.ctx)
	}
	if err != nil {
		return nil, err
	}
	if !unlocked {
		return nil, reject(protocol.ErrBadRequest)
	}
	c.seq.Invalidate(c.field())

	e := c.entry(audit.ActionUnlock)
	e.Rubies = lock.UnlockPrice
	c.record(e)
	return struct{}{}, nil
}
