package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SlotsPerKind is the number of crafting (and smelting) slots every player owns.
const SlotsPerKind = 3

type Tuning struct {
	// Crafting rounds complete this many ms before their nominal completion time.
	CraftingGracePeriodMs int64 `yaml:"crafting_grace_period_ms"`
	SessionExpirySeconds  int   `yaml:"session_expiry_seconds"`

	Slots        SlotTuning        `yaml:"slots"`
	Transactions TransactionTuning `yaml:"transactions"`

	SnapshotEveryMinutes int `yaml:"snapshot_every_minutes"`
}

// SlotTuning holds per-slot unlock prices in rubies. A price of 0 means the slot starts unlocked.
type SlotTuning struct {
	CraftingUnlockPrices []int `yaml:"crafting_unlock_prices"`
	SmeltingUnlockPrices []int `yaml:"smelting_unlock_prices"`
}

// TransactionTuning bounds the optimistic-transaction retry loop.
type TransactionTuning struct {
	MaxAttempts      int `yaml:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms"`
}

func Defaults() Tuning {
	return Tuning{
		CraftingGracePeriodMs: 500,
		SessionExpirySeconds:  3600,
		Slots: SlotTuning{
			CraftingUnlockPrices: []int{0, 5, 10},
			SmeltingUnlockPrices: []int{0, 5, 10},
		},
		Transactions: TransactionTuning{
			MaxAttempts:      8,
			InitialBackoffMs: 5,
			MaxBackoffMs:     250,
		},
		SnapshotEveryMinutes: 30,
	}
}

// Load reads a tuning file on top of Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.CraftingGracePeriodMs < 0 {
		return fmt.Errorf("crafting_grace_period_ms must be >= 0")
	}
	if t.SessionExpirySeconds <= 0 {
		return fmt.Errorf("session_expiry_seconds must be > 0")
	}
	check := func(name string, prices []int) error {
		if len(prices) != SlotsPerKind {
			return fmt.Errorf("%s: expected %d prices, got %d", name, SlotsPerKind, len(prices))
		}
		for i, p := range prices {
			if p < 0 {
				return fmt.Errorf("%s[%d]: negative price", name, i)
			}
		}
		return nil
	}
	if err := check("slots.crafting_unlock_prices", t.Slots.CraftingUnlockPrices); err != nil {
		return err
	}
	if err := check("slots.smelting_unlock_prices", t.Slots.SmeltingUnlockPrices); err != nil {
		return err
	}
	if t.Transactions.MaxAttempts <= 0 {
		return fmt.Errorf("transactions.max_attempts must be > 0")
	}
	if t.Transactions.InitialBackoffMs < 0 || t.Transactions.MaxBackoffMs < t.Transactions.InitialBackoffMs {
		return fmt.Errorf("transactions: invalid backoff range")
	}
	return nil
}
