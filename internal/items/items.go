// Package items holds the item records that move between a player's inventory and workshop
// escrow: a stackable count or an ordered list of individually addressable instances.
package items

// Instance is one non-stackable item with its mutable per-instance attributes.
type Instance struct {
	ID     string  `json:"instance_id"`
	Health float64 `json:"health"`
}

// Stack is a quantity of a single item id. Non-stackable items carry their instances
// (Instances != nil); stackable items carry only Count.
type Stack struct {
	ItemID    string     `json:"item_id"`
	Count     int        `json:"count,omitempty"`
	Instances []Instance `json:"instances"`
}

func Counted(itemID string, count int) Stack {
	return Stack{ItemID: itemID, Count: count}
}

func Of(itemID string, instances ...Instance) Stack {
	out := make([]Instance, len(instances))
	copy(out, instances)
	return Stack{ItemID: itemID, Instances: out}
}

func (s Stack) IsStackable() bool { return s.Instances == nil }

func (s Stack) Quantity() int {
	if s.IsStackable() {
		return s.Count
	}
	return len(s.Instances)
}

func (s Stack) IsEmpty() bool { return s.Quantity() <= 0 }

// Split takes up to n units from the front of the stack. Instances are taken in stored order.
func (s Stack) Split(n int) (taken, rest Stack) {
	if n < 0 {
		n = 0
	}
	if q := s.Quantity(); n > q {
		n = q
	}
	if s.IsStackable() {
		return Counted(s.ItemID, n), Counted(s.ItemID, s.Count-n)
	}
	return Of(s.ItemID, s.Instances[:n]...), Of(s.ItemID, s.Instances[n:]...)
}

func (s Stack) Clone() Stack {
	if s.IsStackable() {
		return s
	}
	return Of(s.ItemID, s.Instances...)
}

// InstanceIDs lists instance ids in order, or nil for stackable items.
func (s Stack) InstanceIDs() []string {
	if s.IsStackable() {
		return nil
	}
	ids := make([]string, 0, len(s.Instances))
	for _, in := range s.Instances {
		ids = append(ids, in.ID)
	}
	return ids
}

// Total sums quantities per item id.
func Total(stacks []Stack) map[string]int {
	out := map[string]int{}
	for _, s := range stacks {
		if s.IsEmpty() {
			continue
		}
		out[s.ItemID] += s.Quantity()
	}
	return out
}
