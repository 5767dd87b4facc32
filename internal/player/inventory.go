package player

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"genoa.ai/internal/clock"
	"genoa.ai/internal/items"
)

// NewInstanceHealth is the health of a freshly minted non-stackable item.
const NewInstanceHealth = 100.0

// Entry is one inventory line. Stackable items keep Count; non-stackable items keep Instances.
type Entry struct {
	Count     int                `json:"count,omitempty"`
	Instances map[string]float64 `json:"instances,omitempty"` // instance id -> health
	FirstSeen int64              `json:"first_seen"`
	LastSeen  int64              `json:"last_seen"`
}

// InstanceIDs returns the entry's instance ids in a stable order.
func (e Entry) InstanceIDs() []string {
	ids := make([]string, 0, len(e.Instances))
	for id := range e.Instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Inventory struct {
	doc    Doc
	userID string
	cat    catalog
	clk    clock.Clock
}

func entryPath(itemID string) string { return "inventory." + itemID }

// Entries returns every inventory line keyed by item id.
func (inv *Inventory) Entries(ctx context.Context) (map[string]Entry, error) {
	out := map[string]Entry{}
	if _, err := inv.doc.Get(ctx, collection, inv.userID, "inventory", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (inv *Inventory) entry(ctx context.Context, itemID string) (Entry, bool, error) {
	var e Entry
	ok, err := inv.doc.Get(ctx, collection, inv.userID, entryPath(itemID), &e)
	return e, ok, err
}

func (inv *Inventory) put(ctx context.Context, itemID string, e Entry) error {
	return inv.doc.Set(ctx, collection, inv.userID, entryPath(itemID), e)
}

func (inv *Inventory) now() int64 { return clock.Millis(inv.clk) }

func (inv *Inventory) entryOrNew(ctx context.Context, itemID string) (Entry, error) {
	e, ok, err := inv.entry(ctx, itemID)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		now := inv.now()
		e = Entry{FirstSeen: now, LastSeen: now}
	}
	if e.Instances == nil && !inv.cat.IsStackable(itemID) {
		e.Instances = map[string]float64{}
	}
	return e, nil
}

// AddItems adds count of an item. Non-stackable items get fresh instance ids, which are returned.
func (inv *Inventory) AddItems(ctx context.Context, itemID string, count int, updateLastSeen bool) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("inventory: non-positive count %d for %s", count, itemID)
	}
	e, err := inv.entryOrNew(ctx, itemID)
	if err != nil {
		return nil, err
	}
	var minted []string
	if inv.cat.IsStackable(itemID) {
		e.Count += count
	} else {
		for i := 0; i < count; i++ {
			id := uuid.NewString()
			e.Instances[id] = NewInstanceHealth
			minted = append(minted, id)
		}
	}
	if updateLastSeen {
		e.LastSeen = inv.now()
	}
	return minted, inv.put(ctx, itemID, e)
}

// AddExistingInstance returns a known instance to the inventory. It reports false if the instance
// is already there.
func (inv *Inventory) AddExistingInstance(ctx context.Context, itemID string, in items.Instance, updateLastSeen bool) (bool, error) {
	if inv.cat.IsStackable(itemID) {
		return false, nil
	}
	e, err := inv.entryOrNew(ctx, itemID)
	if err != nil {
		return false, err
	}
	if _, dup := e.Instances[in.ID]; dup {
		return false, nil
	}
	e.Instances[in.ID] = in.Health
	if updateLastSeen {
		e.LastSeen = inv.now()
	}
	return true, inv.put(ctx, itemID, e)
}

// Give puts a stack back into the inventory, keeping instance ids and health.
func (inv *Inventory) Give(ctx context.Context, s items.Stack, updateLastSeen bool) error {
	if s.IsEmpty() {
		return nil
	}
	if s.IsStackable() {
		_, err := inv.AddItems(ctx, s.ItemID, s.Count, updateLastSeen)
		return err
	}
	for _, in := range s.Instances {
		if _, err := inv.AddExistingInstance(ctx, s.ItemID, in, updateLastSeen); err != nil {
			return err
		}
	}
	return nil
}

// RemoveStackable takes count units out of the inventory. It reports false if there are not enough.
func (inv *Inventory) RemoveStackable(ctx context.Context, itemID string, count int) (bool, error) {
	if count <= 0 {
		return false, fmt.Errorf("inventory: non-positive count %d for %s", count, itemID)
	}
	e, ok, err := inv.entry(ctx, itemID)
	if err != nil || !ok || e.Instances != nil || e.Count < count {
		return false, err
	}
	e.Count -= count
	return true, inv.put(ctx, itemID, e)
}

// RemoveInstance takes one instance out of the inventory, or returns nil if it is not there.
func (inv *Inventory) RemoveInstance(ctx context.Context, itemID, instanceID string) (*items.Instance, error) {
	e, ok, err := inv.entry(ctx, itemID)
	if err != nil || !ok {
		return nil, err
	}
	health, ok := e.Instances[instanceID]
	if !ok {
		return nil, nil
	}
	delete(e.Instances, instanceID)
	if err := inv.put(ctx, itemID, e); err != nil {
		return nil, err
	}
	return &items.Instance{ID: instanceID, Health: health}, nil
}

// ItemRequest names items a client wants to commit: a count for stackable items or a list of
// instance ids for non-stackable ones.
type ItemRequest struct {
	ItemID      string
	Quantity    int
	InstanceIDs []string
}

// CollectRequestItem removes the requested items, hotbar first and then the inventory proper. A
// maxCount >= 0 caps how many are taken. It returns nil when the request cannot be satisfied; the
// caller's transaction must then be discarded, since earlier removals may already be applied.
func (inv *Inventory) CollectRequestItem(ctx context.Context, req ItemRequest, maxCount int) (*items.Stack, error) {
	hotbar, err := inv.Hotbar(ctx)
	if err != nil {
		return nil, err
	}

	if inv.cat.IsStackable(req.ItemID) {
		if req.InstanceIDs != nil {
			return nil, nil
		}
		target := req.Quantity
		if maxCount >= 0 {
			target = min(target, maxCount)
		}
		collected := 0
		for i, slot := range hotbar {
			if collected >= target {
				break
			}
			if slot == nil || slot.ItemID != req.ItemID || slot.InstanceID != "" || slot.Count <= 0 {
				continue
			}
			taken, err := inv.TakeFromHotbar(ctx, i, min(target-collected, slot.Count))
			if err != nil {
				return nil, err
			}
			collected += taken.Count
		}
		if collected < target {
			ok, err := inv.RemoveStackable(ctx, req.ItemID, target-collected)
			if err != nil || !ok {
				return nil, err
			}
		}
		s := items.Counted(req.ItemID, target)
		return &s, nil
	}

	if req.InstanceIDs == nil {
		return nil, nil
	}
	instances := []items.Instance{}
	for _, id := range req.InstanceIDs {
		if maxCount >= 0 && len(instances) == maxCount {
			break
		}
		var found *items.Instance
		for i, slot := range hotbar {
			if slot == nil || slot.ItemID != req.ItemID || slot.InstanceID != id {
				continue
			}
			taken, err := inv.TakeFromHotbar(ctx, i, 0)
			if err != nil {
				return nil, err
			}
			in := instanceOf(taken)
			found = &in
			hotbar[i] = nil
			break
		}
		if found == nil {
			found, err = inv.RemoveInstance(ctx, req.ItemID, id)
			if err != nil || found == nil {
				return nil, err
			}
		}
		instances = append(instances, *found)
	}
	s := items.Of(req.ItemID, instances...)
	return &s, nil
}
