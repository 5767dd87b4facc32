package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Catalogs struct {
	Items    ItemCatalog
	Crafting CraftingCatalog
	Smelting SmeltingCatalog
}

type ItemCatalog struct {
	Order  []string
	Defs   map[string]ItemDef
	Digest string
}

type ItemDef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"` // "Construction","Equipment","Items","Nature","Mobs"
	Rarity   string `json:"rarity,omitempty"`
	Stacks   bool   `json:"stacks"`

	// Fuel-capable items only.
	BurnRate        *BurnRate   `json:"burn_rate,omitempty"`
	FuelReturnItems []ItemCount `json:"fuel_return_items,omitempty"`
}

// BurnRate describes how one unit of a fuel item burns.
type BurnRate struct {
	BurnTime      int `json:"burn_time"` // seconds
	HeatPerSecond int `json:"heat_per_second"`
}

// TotalHeat is the heat released by one unit burning to completion.
func (b BurnRate) TotalHeat() int { return b.BurnTime * b.HeatPerSecond }

type CraftingCatalog struct {
	ByID   map[string]CraftingRecipe
	Digest string
}

type CraftingRecipe struct {
	ID          string            `json:"id"`
	Deprecated  bool              `json:"deprecated"`
	Category    string            `json:"category"`
	Inputs      []IngredientGroup `json:"inputs"`
	Output      ItemCount         `json:"output"`
	ReturnItems []ItemCount       `json:"return_items"`
	Duration    int               `json:"duration"` // seconds per round
}

// IngredientGroup is one recipe input: any of ItemIDs may supply Count units per round.
type IngredientGroup struct {
	ItemIDs []string `json:"item_ids"`
	Count   int      `json:"count"`
}

func (g IngredientGroup) Accepts(itemID string) bool {
	for _, id := range g.ItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

type SmeltingCatalog struct {
	ByID   map[string]SmeltingRecipe
	Digest string
}

type SmeltingRecipe struct {
	ID           string `json:"id"`
	Deprecated   bool   `json:"deprecated"`
	Input        string `json:"input"`
	Output       string `json:"output"`
	HeatRequired int    `json:"heat_required"` // per round
}

type ItemCount struct {
	ItemID string `json:"item_id"`
	Count  int    `json:"count"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadCrafting(filepath.Join(configDir, "recipes", "crafting"), &c.Crafting); err != nil {
		return nil, err
	}
	if err := loadSmelting(filepath.Join(configDir, "recipes", "smelting"), &c.Smelting); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogs) Item(id string) (ItemDef, bool) {
	d, ok := c.Items.Defs[id]
	return d, ok
}

// IsStackable reports false for unknown items.
func (c *Catalogs) IsStackable(id string) bool {
	return c.Items.Defs[id].Stacks
}

func (c *Catalogs) CraftingRecipe(id string) (CraftingRecipe, bool) {
	r, ok := c.Crafting.ByID[id]
	return r, ok
}

func (c *Catalogs) SmeltingRecipe(id string) (SmeltingRecipe, bool) {
	r, ok := c.Smelting.ByID[id]
	return r, ok
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = make(map[string]ItemDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %s", d.ID)
		}
		if d.BurnRate != nil && (d.BurnRate.BurnTime <= 0 || d.BurnRate.HeatPerSecond <= 0) {
			return fmt.Errorf("items.json: %s: burn_rate must be positive", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Order = ids
	return nil
}

func loadCrafting(dir string, out *CraftingCatalog) error {
	out.ByID = map[string]CraftingRecipe{}
	digest, err := readJSONDir(dir, func(name string, b []byte) error {
		var r CraftingRecipe
		if err := json.Unmarshal(b, &r); err != nil {
			return fmt.Errorf("crafting recipe %s: %w", name, err)
		}
		if r.ID == "" {
			return fmt.Errorf("crafting recipe %s: missing id", name)
		}
		if r.Duration <= 0 {
			return fmt.Errorf("crafting recipe %s: duration must be positive", r.ID)
		}
		if r.Output.Count <= 0 {
			return fmt.Errorf("crafting recipe %s: output count must be positive", r.ID)
		}
		for i, in := range r.Inputs {
			if in.Count <= 0 || len(in.ItemIDs) == 0 {
				return fmt.Errorf("crafting recipe %s: input %d is empty", r.ID, i)
			}
		}
		out.ByID[r.ID] = r
		return nil
	})
	if err != nil {
		return err
	}
	out.Digest = digest
	return nil
}

func loadSmelting(dir string, out *SmeltingCatalog) error {
	out.ByID = map[string]SmeltingRecipe{}
	digest, err := readJSONDir(dir, func(name string, b []byte) error {
		var r SmeltingRecipe
		if err := json.Unmarshal(b, &r); err != nil {
			return fmt.Errorf("smelting recipe %s: %w", name, err)
		}
		if r.ID == "" {
			return fmt.Errorf("smelting recipe %s: missing id", name)
		}
		if r.HeatRequired <= 0 {
			return fmt.Errorf("smelting recipe %s: heat_required must be positive", r.ID)
		}
		out.ByID[r.ID] = r
		return nil
	})
	if err != nil {
		return err
	}
	out.Digest = digest
	return nil
}

// readJSONDir feeds every *.json file in dir (sorted by name) to fn and returns a digest over
// their concatenated contents. A missing directory is an empty catalog.
func readJSONDir(dir string, fn func(name string, b []byte) error) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return sha256Hex(nil), nil
		}
		return "", err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		concat.Write(b)
		concat.WriteByte('\n')
		if err := fn(filepath.Base(p), b); err != nil {
			return "", err
		}
	}
	return sha256Hex(concat.Bytes()), nil
}

func (c *Catalogs) validate() error {
	known := func(id string) bool {
		_, ok := c.Items.Defs[id]
		return ok
	}
	for _, r := range c.Crafting.ByID {
		for _, in := range r.Inputs {
			for _, id := range in.ItemIDs {
				if !known(id) {
					return fmt.Errorf("crafting recipe %s: unknown input item %s", r.ID, id)
				}
			}
		}
		if !known(r.Output.ItemID) {
			return fmt.Errorf("crafting recipe %s: unknown output item %s", r.ID, r.Output.ItemID)
		}
	}
	for _, r := range c.Smelting.ByID {
		if !known(r.Input) {
			return fmt.Errorf("smelting recipe %s: unknown input item %s", r.ID, r.Input)
		}
		if !known(r.Output) {
			return fmt.Errorf("smelting recipe %s: unknown output item %s", r.ID, r.Output)
		}
	}
	return nil
}
