package protocol

// Sign-in (client -> server)
type SignInRequest struct {
	SessionTicket string `json:"sessionTicket"`
}

type SignInResult struct {
	BasePath            string         `json:"basePath"`
	AuthenticationToken string         `json:"authenticationToken"`
	ClientProperties    map[string]any `json:"clientProperties"`
	MixedReality        any            `json:"mixedReality"`
	MRToken             any            `json:"mrToken"`
	Streams             any            `json:"streams"`
	Tokens              map[string]any `json:"tokens"`
	Updates             map[string]int `json:"updates"`
}

// RequestItem names items the client offers from its inventory. Non-stackable items list their
// instance ids, one per unit of Quantity.
type RequestItem struct {
	ItemID          string   `json:"itemId"`
	Quantity        int      `json:"quantity"`
	ItemInstanceIDs []string `json:"itemInstanceIds"`
}

type CraftingStartRequest struct {
	SessionID   string        `json:"sessionId"`
	RecipeID    string        `json:"recipeId"`
	Multiplier  int           `json:"multiplier"`
	Ingredients []RequestItem `json:"ingredients"`
}

type SmeltingStartRequest struct {
	SessionID  string       `json:"sessionId"`
	RecipeID   string       `json:"recipeId"`
	Multiplier int          `json:"multiplier"`
	Input      RequestItem  `json:"input"`
	Fuel       *RequestItem `json:"fuel"`
}

// PurchaseRequest is the body of finish and unlock calls.
type PurchaseRequest struct {
	ExpectedPurchasePrice int `json:"expectedPurchasePrice"`
}

type HotbarRequestSlot struct {
	ID         string  `json:"id"`
	Count      int     `json:"count"`
	InstanceID *string `json:"instanceId"`
}

// Workshop views (server -> client)

type ItemQuantity struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// StackEscrow and InstanceEscrow are the two shapes of items held by a slot. Clients read
// stackables with a null itemInstanceIds and non-stackables from instanceIds.
type StackEscrow struct {
	ItemID          string   `json:"itemId"`
	Quantity        int      `json:"quantity"`
	ItemInstanceIDs []string `json:"itemInstanceIds"`
}

type InstanceEscrow struct {
	ItemID      string   `json:"itemId"`
	Quantity    int      `json:"quantity"`
	InstanceIDs []string `json:"instanceIds"`
}

type Price struct {
	Cost     int `json:"cost"`
	Discount int `json:"discount"`
}

type CraftingSlotView struct {
	SessionID          *string       `json:"sessionId"`
	RecipeID           *string       `json:"recipeId"`
	Output             *ItemQuantity `json:"output"`
	Escrow             []any         `json:"escrow"`
	Completed          int           `json:"completed"`
	Available          int           `json:"available"`
	Total              int           `json:"total"`
	NextCompletionUtc  *string       `json:"nextCompletionUtc"`
	TotalCompletionUtc *string       `json:"totalCompletionUtc"`
	State              string        `json:"state"`
	BoostState         any           `json:"boostState"`
	UnlockPrice        *Price        `json:"unlockPrice"`
	StreamVersion      int           `json:"streamVersion"`
}

type BurnRate struct {
	BurnTime      int `json:"burnTime"`
	HeatPerSecond int `json:"heatPerSecond"`
}

type FuelView struct {
	BurnRate        BurnRate `json:"burnRate"`
	ItemID          string   `json:"itemId"`
	Quantity        int      `json:"quantity"`
	ItemInstanceIDs []string `json:"itemInstanceIds"`
}

// BurningView is either a live burn window (BurnStartTime/BurnsUntil) or a paused unit
// (RemainingBurnTime/HeatDepleted).
type BurningView struct {
	BurnStartTime     *string   `json:"burnStartTime,omitempty"`
	BurnsUntil        *string   `json:"burnsUntil,omitempty"`
	RemainingBurnTime *string   `json:"remainingBurnTime,omitempty"`
	HeatDepleted      *int      `json:"heatDepleted,omitempty"`
	Fuel              *FuelView `json:"fuel"`
}

type SmeltingSlotView struct {
	Fuel    *FuelView    `json:"fuel"`
	Burning *BurningView `json:"burning"`
	CraftingSlotView
}

type RewardItem struct {
	ID     string `json:"id"`
	Amount int    `json:"amount"`
}

type Rewards struct {
	Inventory     []RewardItem `json:"inventory"`
	Buildplates   []any        `json:"buildplates"`
	Challenges    []any        `json:"challenges"`
	PersonaItems  []any        `json:"personaItems"`
	UtilityBlocks []any        `json:"utilityBlocks"`
}

type CollectResult struct {
	Rewards Rewards `json:"rewards"`
}

// NewCollectResult reports a single collected stack.
func NewCollectResult(itemID string, amount int) CollectResult {
	return CollectResult{Rewards: Rewards{
		Inventory:     []RewardItem{{ID: itemID, Amount: amount}},
		Buildplates:   []any{},
		Challenges:    []any{},
		PersonaItems:  []any{},
		UtilityBlocks: []any{},
	}}
}

type SplitRubies struct {
	Purchased int `json:"purchased"`
	Earned    int `json:"earned"`
}

type FinishPrice struct {
	Cost      int    `json:"cost"`
	Discount  int    `json:"discount"`
	ValidTime string `json:"validTime"`
}

type UtilityBlocks struct {
	Crafting map[string]CraftingSlotView `json:"crafting"`
	Smelting map[string]SmeltingSlotView `json:"smelting"`
}

// Inventory views

type HotbarView struct {
	ID         string   `json:"id"`
	Count      int      `json:"count"`
	InstanceID *string  `json:"instanceId"`
	Health     *float64 `json:"health"`
}

type OnDate struct {
	On string `json:"on"`
}

type StackableView struct {
	ID        string `json:"id"`
	Owned     int    `json:"owned"`
	Fragments int    `json:"fragments"`
	Unlocked  OnDate `json:"unlocked"`
	Seen      OnDate `json:"seen"`
}

type InstanceView struct {
	ID     string  `json:"id"`
	Health float64 `json:"health"`
}

type NonStackableView struct {
	ID        string         `json:"id"`
	Instances []InstanceView `json:"instances"`
	Fragments int            `json:"fragments"`
	Unlocked  OnDate         `json:"unlocked"`
	Seen      OnDate         `json:"seen"`
}

type InventoryView struct {
	Hotbar            []*HotbarView      `json:"hotbar"`
	StackableItems    []StackableView    `json:"stackableItems"`
	NonStackableItems []NonStackableView `json:"nonStackableItems"`
}
