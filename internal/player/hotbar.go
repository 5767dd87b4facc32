package player

import (
	"context"
	"fmt"

	"genoa.ai/internal/items"
)

const (
	HotbarSize     = 7
	MaxHotbarStack = 64
)

// HotbarSlot holds either a stack of a stackable item or a single instance.
type HotbarSlot struct {
	ItemID     string  `json:"item_id"`
	Count      int     `json:"count"`
	InstanceID string  `json:"instance_id,omitempty"`
	Health     float64 `json:"health,omitempty"`
}

func (s *HotbarSlot) IsInstance() bool { return s != nil && s.InstanceID != "" }

func instanceOf(s *HotbarSlot) items.Instance {
	return items.Instance{ID: s.InstanceID, Health: s.Health}
}

type Hotbar [HotbarSize]*HotbarSlot

func (inv *Inventory) Hotbar(ctx context.Context) (Hotbar, error) {
	var h Hotbar
	if _, err := inv.doc.Get(ctx, collection, inv.userID, "hotbar", &h); err != nil {
		return Hotbar{}, err
	}
	return h, nil
}

func (inv *Inventory) saveHotbar(ctx context.Context, h Hotbar) error {
	return inv.doc.Set(ctx, collection, inv.userID, "hotbar", h)
}

func checkHotbarIndex(i int) error {
	if i < 0 || i >= HotbarSize {
		return fmt.Errorf("hotbar: slot %d out of range", i)
	}
	return nil
}

// TakeFromHotbar removes count items from a hotbar slot; count 0 takes the whole slot. It returns
// nil when the slot is empty or holds fewer than count.
func (inv *Inventory) TakeFromHotbar(ctx context.Context, index, count int) (*HotbarSlot, error) {
	if err := checkHotbarIndex(index); err != nil {
		return nil, err
	}
	h, err := inv.Hotbar(ctx)
	if err != nil {
		return nil, err
	}
	slot := h[index]
	if slot == nil {
		return nil, nil
	}
	have := 1
	if !slot.IsInstance() {
		have = slot.Count
	}
	if count == 0 {
		count = have
	}
	if count > have {
		return nil, nil
	}
	taken := *slot
	if !slot.IsInstance() {
		taken.Count = count
	}
	if count == have {
		h[index] = nil
	} else {
		slot.Count -= count
	}
	return &taken, inv.saveHotbar(ctx, h)
}

// PutStackableOnHotbar adds count units to an empty slot or a slot holding the same item, up to
// MaxHotbarStack. The units must already be out of the inventory.
func (inv *Inventory) PutStackableOnHotbar(ctx context.Context, index int, itemID string, count int) (bool, error) {
	if err := checkHotbarIndex(index); err != nil {
		return false, err
	}
	if count <= 0 {
		return false, fmt.Errorf("hotbar: non-positive count %d", count)
	}
	h, err := inv.Hotbar(ctx)
	if err != nil {
		return false, err
	}
	slot := h[index]
	switch {
	case slot == nil:
		if count > MaxHotbarStack {
			return false, nil
		}
		h[index] = &HotbarSlot{ItemID: itemID, Count: count}
	case !slot.IsInstance() && slot.ItemID == itemID && slot.Count+count <= MaxHotbarStack:
		slot.Count += count
	default:
		return false, nil
	}
	return true, inv.saveHotbar(ctx, h)
}

// PutInstanceOnHotbar places one instance into an empty slot.
func (inv *Inventory) PutInstanceOnHotbar(ctx context.Context, index int, itemID, instanceID string, health float64) (bool, error) {
	if err := checkHotbarIndex(index); err != nil {
		return false, err
	}
	h, err := inv.Hotbar(ctx)
	if err != nil {
		return false, err
	}
	if h[index] != nil {
		return false, nil
	}
	h[index] = &HotbarSlot{ItemID: itemID, Count: 1, InstanceID: instanceID, Health: health}
	return true, inv.saveHotbar(ctx, h)
}

// HotbarRequest is the desired content of one hotbar slot, nil for empty.
type HotbarRequest struct {
	ItemID     string
	Count      int
	InstanceID string
}

type hotbarAction struct {
	kind       string // "remove", "take", "put"
	index      int
	itemID     string
	count      int
	instanceID string
}

// ApplyHotbar moves items between the inventory and the hotbar until the hotbar matches want.
// Moves that cannot be made (missing items, full stacks) are skipped. It reports false without
// touching anything if want names a stackable item by instance or vice versa.
func (inv *Inventory) ApplyHotbar(ctx context.Context, want [HotbarSize]*HotbarRequest) (Hotbar, bool, error) {
	current, err := inv.Hotbar(ctx)
	if err != nil {
		return Hotbar{}, false, err
	}

	var actions []hotbarAction
	for i := 0; i < HotbarSize; i++ {
		req, have := want[i], current[i]
		if req == nil {
			if have != nil {
				actions = append(actions, hotbarAction{kind: "remove", index: i})
			}
			continue
		}
		stackable := req.InstanceID == ""
		if stackable != inv.cat.IsStackable(req.ItemID) {
			return Hotbar{}, false, nil
		}
		switch {
		case have == nil:
			actions = append(actions, hotbarAction{kind: "put", index: i, itemID: req.ItemID, count: req.Count, instanceID: req.InstanceID})
		case stackable && !have.IsInstance() && have.ItemID == req.ItemID:
			if d := req.Count - have.Count; d > 0 {
				actions = append(actions, hotbarAction{kind: "put", index: i, itemID: req.ItemID, count: d})
			} else if d < 0 {
				actions = append(actions, hotbarAction{kind: "take", index: i, itemID: req.ItemID, count: -d})
			}
		case !stackable && have.IsInstance() && have.ItemID == req.ItemID && have.InstanceID == req.InstanceID:
		default:
			actions = append(actions,
				hotbarAction{kind: "remove", index: i},
				hotbarAction{kind: "put", index: i, itemID: req.ItemID, count: req.Count, instanceID: req.InstanceID})
		}
	}

	// Clear first so items moving between slots are back in the inventory before they are placed.
	for _, a := range actions {
		var err error
		switch a.kind {
		case "remove":
			err = inv.hotbarToInventory(ctx, a.index, 0)
		case "take":
			err = inv.hotbarToInventory(ctx, a.index, a.count)
		}
		if err != nil {
			return Hotbar{}, false, err
		}
	}
	for _, a := range actions {
		if a.kind != "put" {
			continue
		}
		var err error
		if a.instanceID != "" {
			err = inv.inventoryInstanceToHotbar(ctx, a.index, a.itemID, a.instanceID)
		} else {
			err = inv.inventoryStackToHotbar(ctx, a.index, a.itemID, a.count)
		}
		if err != nil {
			return Hotbar{}, false, err
		}
	}

	h, err := inv.Hotbar(ctx)
	return h, true, err
}

func (inv *Inventory) hotbarToInventory(ctx context.Context, index, count int) error {
	taken, err := inv.TakeFromHotbar(ctx, index, count)
	if err != nil || taken == nil {
		return err
	}
	if taken.IsInstance() {
		_, err = inv.AddExistingInstance(ctx, taken.ItemID, instanceOf(taken), false)
		return err
	}
	_, err = inv.AddItems(ctx, taken.ItemID, taken.Count, false)
	return err
}

func (inv *Inventory) inventoryStackToHotbar(ctx context.Context, index int, itemID string, count int) error {
	h, err := inv.Hotbar(ctx)
	if err != nil {
		return err
	}
	if slot := h[index]; slot != nil && (slot.IsInstance() || slot.ItemID != itemID || slot.Count+count > MaxHotbarStack) {
		return nil
	}
	ok, err := inv.RemoveStackable(ctx, itemID, count)
	if err != nil || !ok {
		return err
	}
	_, err = inv.PutStackableOnHotbar(ctx, index, itemID, count)
	return err
}

func (inv *Inventory) inventoryInstanceToHotbar(ctx context.Context, index int, itemID, instanceID string) error {
	h, err := inv.Hotbar(ctx)
	if err != nil {
		return err
	}
	if h[index] != nil {
		return nil
	}
	in, err := inv.RemoveInstance(ctx, itemID, instanceID)
	if err != nil || in == nil {
		return err
	}
	_, err = inv.PutInstanceOnHotbar(ctx, index, itemID, in.ID, in.Health)
	return err
}
