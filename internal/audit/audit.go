// Package audit describes committed workshop and economy actions and fans them out to the
// configured sinks.
package audit

import (
	"log"
	"sync"
)

// Entry is one committed player action.
type Entry struct {
	Time      int64  `json:"time"` // unix ms
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Action    string `json:"action"`

	Kind      string `json:"kind,omitempty"` // crafting | smelting
	Slot      int    `json:"slot,omitempty"` // 1-based
	WorkID    string `json:"work_session_id,omitempty"`
	RecipeID  string `json:"recipe_id,omitempty"`
	Rounds    int    `json:"rounds,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	Rubies    int    `json:"rubies,omitempty"`
	FuelUnits int    `json:"fuel_units,omitempty"`
}

const (
	ActionSignIn          = "SIGN_IN"
	ActionStart           = "START"
	ActionCollect         = "COLLECT"
	ActionCancel          = "CANCEL"
	ActionFinish          = "FINISH"
	ActionUnlock          = "UNLOCK"
	ActionHotbar          = "HOTBAR"
	ActionGrantRubies     = "GRANT_RUBIES"
	ActionGrantItems      = "GRANT_ITEMS"
	ActionSnapshotRestore = "SNAPSHOT_RESTORE"
)

type Sink interface {
	WriteAudit(Entry) error
}

// Trail delivers entries to every sink. A failing sink is logged and does not stop the others.
type Trail struct {
	logger *log.Logger

	mu     sync.Mutex
	sinks  []Sink
	counts map[string]uint64
}

func NewTrail(logger *log.Logger, sinks ...Sink) *Trail {
	return &Trail{logger: logger, sinks: sinks, counts: map[string]uint64{}}
}

func (t *Trail) Add(s Sink) {
	t.mu.Lock()
	t.sinks = append(t.sinks, s)
	t.mu.Unlock()
}

func (t *Trail) Record(entries ...Entry) {
	if t == nil {
		return
	}
	t.mu.Lock()
	sinks := append([]Sink(nil), t.sinks...)
	for _, e := range entries {
		t.counts[e.Action]++
	}
	t.mu.Unlock()

	for _, e := range entries {
		for _, s := range sinks {
			if err := s.WriteAudit(e); err != nil && t.logger != nil {
				t.logger.Printf("audit sink: %v", err)
			}
		}
	}
}

// Counts returns the number of recorded entries per action.
func (t *Trail) Counts() map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint64, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
