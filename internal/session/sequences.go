package session

import (
	"context"
)

// Field is a client cache category whose sequence number moves whenever it changes.
type Field string

const (
	FieldProfile     Field = "profile"
	FieldInventory   Field = "inventory"
	FieldCrafting    Field = "crafting"
	FieldSmelting    Field = "smelting"
	FieldBoosts      Field = "boosts"
	FieldBuildplates Field = "buildplates"
	FieldJournal     Field = "journal"
	FieldChallenges  Field = "challenges"
	FieldTokens      Field = "tokens"
)

// Fields lists every category in wire order.
var Fields = []Field{
	FieldProfile, FieldInventory, FieldCrafting, FieldSmelting, FieldBoosts,
	FieldBuildplates, FieldJournal, FieldChallenges, FieldTokens,
}

// wireNames maps fields to the keys of the "updates" object clients receive.
var wireNames = map[Field]string{
	FieldProfile:     "characterProfile",
	FieldInventory:   "inventory",
	FieldCrafting:    "crafting",
	FieldSmelting:    "smelting",
	FieldBoosts:      "boosts",
	FieldBuildplates: "buildplates",
	FieldJournal:     "playerJournal",
	FieldChallenges:  "challenges",
	FieldTokens:      "tokens",
}

// Doc is the part of a store transaction sequences need.
type Doc interface {
	Get(ctx context.Context, collection, id, path string, out any) (bool, error)
	Increment(ctx context.Context, collection, id, path string, delta int64) (int64, error)
}

// Sequences tracks which categories a request changed. Commit must run inside the transaction
// that made the changes so the counters move atomically with them.
type Sequences struct {
	sessionID string
	values    map[Field]int
	invalid   map[Field]bool
}

func LoadSequences(ctx context.Context, doc Doc, sessionID string) (*Sequences, error) {
	values := map[Field]int{}
	if _, err := doc.Get(ctx, Collection, sessionID, "sequence_numbers", &values); err != nil {
		return nil, err
	}
	return &Sequences{sessionID: sessionID, values: values, invalid: map[Field]bool{}}, nil
}

// Number is the value the client will see for f once pending changes are committed.
func (s *Sequences) Number(f Field) int {
	if s.invalid[f] {
		return s.values[f] + 1
	}
	return s.values[f]
}

func (s *Sequences) Invalidate(fields ...Field) {
	for _, f := range fields {
		s.invalid[f] = true
	}
}

// Commit bumps every invalidated counter and returns the client update map.
func (s *Sequences) Commit(ctx context.Context, doc Doc) (map[string]int, error) {
	updates := map[string]int{}
	for _, f := range Fields {
		if !s.invalid[f] {
			continue
		}
		v, err := doc.Increment(ctx, Collection, s.sessionID, "sequence_numbers."+string(f), 1)
		if err != nil {
			return nil, err
		}
		s.values[f] = int(v)
		delete(s.invalid, f)
		updates[wireNames[f]] = int(v)
	}
	return updates, nil
}
