package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"genoa.ai/internal/audit"
	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/clock"
	"genoa.ai/internal/persistence/store"
	"genoa.ai/internal/player"
	"genoa.ai/internal/protocol"
	"genoa.ai/internal/session"
	"genoa.ai/internal/tuning"
	"genoa.ai/internal/workshop"
)

const (
	itemCobble = "6f2c1a10-5b7e-4c6f-8f1e-1c2d3e4f5a01"
	itemStone  = "6f2c1a10-5b7e-4c6f-8f1e-1c2d3e4f5a02"
	itemPlanks = "6f2c1a10-5b7e-4c6f-8f1e-1c2d3e4f5a04"
	itemCoal   = "6f2c1a10-5b7e-4c6f-8f1e-1c2d3e4f5a05"
	itemStick  = "6f2c1a10-5b7e-4c6f-8f1e-1c2d3e4f5a06"

	recipeStick = "7a1e0c44-2b3d-4e5f-9a6b-7c8d9e0f1a02"
	recipeStone = "8b2f1d55-3c4e-4f60-8b7c-8d9e0f1a2b01"

	testUser = "0123456789ABCDEF"
)

type fixture struct {
	t      *testing.T
	clk    *clock.Manual
	st     *store.Store
	engine *workshop.Engine
	trail  *audit.Trail
	ts     *httptest.Server

	sessionID string
	token     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	require.NoError(t, err)
	st, err := store.Open(filepath.Join(t.TempDir(), "genoa.sqlite"), store.RetryPolicy{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clk := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	engine := workshop.NewEngine(cat, clk, tuning.Defaults())
	trail := audit.NewTrail(nil)
	srv, err := NewServer(Config{
		Store:    st,
		Engine:   engine,
		Sessions: session.NewManager(st, clk, time.Hour),
		Trail:    trail,
		Clock:    clk,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{t: t, clk: clk, st: st, engine: engine, trail: trail, ts: ts}
}

func (f *fixture) signIn() {
	f.t.Helper()
	f.sessionID = uuid.NewString()
	status, _, body := f.rawSignIn(f.sessionID, testUser+"-ticket")
	require.Equal(f.t, http.StatusOK, status)
	var env struct {
		Result protocol.SignInResult `json:"result"`
	}
	require.NoError(f.t, json.Unmarshal(body, &env))
	require.Equal(f.t, AuthBasePath, env.Result.BasePath)
	require.Len(f.t, env.Result.AuthenticationToken, 32)
	f.token = env.Result.AuthenticationToken
}

func (f *fixture) rawSignIn(sessionID, ticket string) (int, http.Header, []byte) {
	f.t.Helper()
	b, _ := json.Marshal(protocol.SignInRequest{SessionTicket: ticket})
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+protocol.BasePath+"/player/profile/signin", bytes.NewReader(b))
	require.NoError(f.t, err)
	req.Header.Set("Session-Id", sessionID)
	return f.send(req)
}

func (f *fixture) send(req *http.Request) (int, http.Header, []byte) {
	f.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(f.t, err)
	return resp.StatusCode, resp.Header, body
}

// do calls an authenticated route; path is relative to /auth/api/v1.1.
func (f *fixture) do(method, path string, body any) (int, http.Header, []byte) {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.ts.URL+AuthBasePath+protocol.BasePath+path, r)
	require.NoError(f.t, err)
	req.Header.Set("Session-Id", f.sessionID)
	req.Header.Set("Authorization", "Genoa "+f.token)
	return f.send(req)
}

type envelope struct {
	Result  json.RawMessage `json:"result"`
	Updates map[string]int  `json:"updates"`
}

// ok asserts a 200 and decodes the envelope's result into out.
func (f *fixture) ok(method, path string, body, out any) envelope {
	f.t.Helper()
	status, hdr, raw := f.do(method, path, body)
	require.Equal(f.t, http.StatusOK, status, "%s %s: %s", method, path, hdr.Get("X-Genoa-Error"))
	var env envelope
	require.NoError(f.t, json.Unmarshal(raw, &env))
	if out != nil {
		require.NoError(f.t, json.Unmarshal(env.Result, out))
	}
	return env
}

// rejected asserts an empty 400 carrying code.
func (f *fixture) rejected(method, path string, body any, code string) {
	f.t.Helper()
	status, hdr, raw := f.do(method, path, body)
	require.Equal(f.t, http.StatusBadRequest, status)
	require.Equal(f.t, code, hdr.Get("X-Genoa-Error"))
	require.Empty(f.t, raw)
}

func (f *fixture) seed(fn func(ctx context.Context, p *player.Player) error) {
	f.t.Helper()
	ctx := context.Background()
	require.NoError(f.t, f.st.Run(ctx, func(tx *store.Tx) error {
		return fn(ctx, player.New(tx, testUser, f.engine, f.clk))
	}))
}

func (f *fixture) owned(itemID string) int {
	f.t.Helper()
	var inv protocol.InventoryView
	f.ok(http.MethodGet, "/inventory/survival", nil, &inv)
	for _, s := range inv.StackableItems {
		if s.ID == itemID {
			return s.Owned
		}
	}
	return 0
}

func stackable(itemID string, n int) protocol.RequestItem {
	return protocol.RequestItem{ItemID: itemID, Quantity: n}
}

func TestSignInAndAuthentication(t *testing.T) {
	f := newFixture(t)
	f.signIn()

	var total int
	env := f.ok(http.MethodGet, "/player/rubies", nil, &total)
	require.Zero(t, total)
	require.Nil(t, env.Updates)

	good := f.token
	f.token = "0000"
	status, hdr, _ := f.do(http.MethodGet, "/player/rubies", nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, protocol.ErrUnauthorized, hdr.Get("X-Genoa-Error"))
	f.token = good

	status, hdr, _ = f.rawSignIn(f.sessionID, testUser+"-again")
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, protocol.ErrSessionTaken, hdr.Get("X-Genoa-Error"))

	status, _, _ = f.rawSignIn(uuid.NewString(), "lowercase0123456-x")
	require.Equal(t, http.StatusForbidden, status)

	require.EqualValues(t, 1, f.trail.Counts()[audit.ActionSignIn])
}

func TestCatalogRoutes(t *testing.T) {
	f := newFixture(t)
	f.signIn()

	var items struct {
		Items []catalogItemView `json:"items"`
	}
	f.ok(http.MethodGet, "/inventory/catalogv3", nil, &items)
	require.Len(t, items.Items, 17)

	var recipes struct {
		Crafting []craftingRecipeView `json:"crafting"`
		Smelting []smeltingRecipeView `json:"smelting"`
	}
	f.ok(http.MethodGet, "/recipes", nil, &recipes)
	require.Len(t, recipes.Crafting, 6)
	require.Len(t, recipes.Smelting, 3)
}

func TestCraftingLifecycle(t *testing.T) {
	f := newFixture(t)
	f.signIn()
	f.seed(func(ctx context.Context, p *player.Player) error {
		_, err := p.Inventory.AddItems(ctx, itemPlanks, 10, true)
		return err
	})

	env := f.ok(http.MethodPost, "/crafting/1/start", protocol.CraftingStartRequest{
		SessionID:   uuid.NewString(),
		RecipeID:    recipeStick,
		Multiplier:  2,
		Ingredients: []protocol.RequestItem{stackable(itemPlanks, 4)},
	}, nil)
	require.Equal(t, map[string]int{"crafting": 2, "inventory": 2}, env.Updates)
	require.Equal(t, 6, f.owned(itemPlanks))

	var view protocol.CraftingSlotView
	f.ok(http.MethodGet, "/crafting/1", nil, &view)
	require.Equal(t, "Active", view.State)
	require.Equal(t, 0, view.Completed)
	require.Equal(t, 2, view.Total)
	require.Equal(t, 2, view.StreamVersion)
	require.Equal(t, "2024-03-01T12:00:10.000Z", *view.TotalCompletionUtc)
	require.Equal(t, "2024-03-01T12:00:05.000Z", *view.NextCompletionUtc)

	f.clk.Advance(5 * time.Second)
	var got protocol.CollectResult
	env = f.ok(http.MethodPost, "/crafting/1/collectItems", nil, &got)
	require.Equal(t, []protocol.RewardItem{{ID: itemStick, Amount: 4}}, got.Rewards.Inventory)
	require.Equal(t, 3, env.Updates["crafting"])
	require.Equal(t, 2, env.Updates["playerJournal"])
	require.Equal(t, 4, f.owned(itemStick))

	f.clk.Advance(5 * time.Second)
	f.ok(http.MethodPost, "/crafting/1/collectItems", nil, &got)
	require.Equal(t, 8, f.owned(itemStick))

	f.ok(http.MethodGet, "/crafting/1", nil, &view)
	require.Equal(t, "Empty", view.State)
	require.Nil(t, view.SessionID)

	f.rejected(http.MethodPost, "/crafting/1/collectItems", nil, protocol.ErrBadRequest)
	require.EqualValues(t, 2, f.trail.Counts()[audit.ActionCollect])
}

func TestCraftingStopRefundsEscrow(t *testing.T) {
	f := newFixture(t)
	f.signIn()
	f.seed(func(ctx context.Context, p *player.Player) error {
		_, err := p.Inventory.AddItems(ctx, itemPlanks, 6, true)
		return err
	})
	f.ok(http.MethodPost, "/crafting/1/start", protocol.CraftingStartRequest{
		SessionID:   uuid.NewString(),
		RecipeID:    recipeStick,
		Multiplier:  3,
		Ingredients: []protocol.RequestItem{stackable(itemPlanks, 6)},
	}, nil)

	f.clk.Advance(7 * time.Second)
	var view protocol.CraftingSlotView
	f.ok(http.MethodPost, "/crafting/1/stop", nil, &view)
	require.Equal(t, "Empty", view.State)
	require.Equal(t, 4, f.owned(itemStick))
	require.Equal(t, 4, f.owned(itemPlanks))

	// Stopping an idle slot still answers with its view.
	f.ok(http.MethodPost, "/crafting/1/stop", nil, &view)
	require.Equal(t, "Empty", view.State)
}

func TestStartRejectionRollsBack(t *testing.T) {
	f := newFixture(t)
	f.signIn()
	f.seed(func(ctx context.Context, p *player.Player) error {
		_, err := p.Inventory.AddItems(ctx, itemCobble, 4, true)
		return err
	})

	// No fuel and no banked heat: the input taken from the inventory has to come back.
	f.rejected(http.MethodPost, "/smelting/1/start", protocol.SmeltingStartRequest{
		SessionID:  uuid.NewString(),
		RecipeID:   recipeStone,
		Multiplier: 4,
		Input:      stackable(itemCobble, 4),
	}, protocol.ErrBadRequest)
	require.Equal(t, 4, f.owned(itemCobble))

	f.rejected(http.MethodPost, "/crafting/1/start", protocol.CraftingStartRequest{
		SessionID:   uuid.NewString(),
		RecipeID:    recipeStick,
		Multiplier:  1,
		Ingredients: []protocol.RequestItem{stackable(itemPlanks, 2)},
	}, protocol.ErrNoResource)

	f.rejected(http.MethodPost, "/crafting/1/start", map[string]any{"recipeId": "nope"}, protocol.ErrProtoBadRequest)
	f.rejected(http.MethodGet, "/crafting/4", nil, protocol.ErrBadRequest)
	f.rejected(http.MethodGet, "/smelting/x", nil, protocol.ErrBadRequest)
}

func TestLockedSlotUnlock(t *testing.T) {
	f := newFixture(t)
	f.signIn()

	var view protocol.CraftingSlotView
	f.ok(http.MethodGet, "/crafting/2", nil, &view)
	require.Equal(t, "Locked", view.State)
	require.Equal(t, &protocol.Price{Cost: 5}, view.UnlockPrice)

	f.rejected(http.MethodPost, "/crafting/2/unlock", protocol.PurchaseRequest{ExpectedPurchasePrice: 5}, protocol.ErrNoResource)
	f.seed(func(ctx context.Context, p *player.Player) error { return p.Rubies.AddPurchased(ctx, 7) })
	f.rejected(http.MethodPost, "/crafting/2/unlock", protocol.PurchaseRequest{ExpectedPurchasePrice: 4}, protocol.ErrPriceChanged)
	f.rejected(http.MethodPost, "/crafting/1/unlock", protocol.PurchaseRequest{ExpectedPurchasePrice: 5}, protocol.ErrBadRequest)

	env := f.ok(http.MethodPost, "/crafting/2/unlock", protocol.PurchaseRequest{ExpectedPurchasePrice: 5}, nil)
	require.Equal(t, map[string]int{"crafting": 2}, env.Updates)

	var split protocol.SplitRubies
	f.ok(http.MethodGet, "/player/splitRubies", nil, &split)
	require.Equal(t, protocol.SplitRubies{Purchased: 2}, split)

	f.ok(http.MethodGet, "/crafting/2", nil, &view)
	require.Equal(t, "Empty", view.State)

	var blocks protocol.UtilityBlocks
	f.ok(http.MethodGet, "/player/utilityBlocks", nil, &blocks)
	require.Equal(t, "Empty", blocks.Crafting["2"].State)
	require.Equal(t, "Locked", blocks.Crafting["3"].State)
	require.Equal(t, "Locked", blocks.Smelting["2"].State)
}

func TestFinishPriceAndFinish(t *testing.T) {
	f := newFixture(t)
	f.signIn()

	var quote protocol.FinishPrice
	f.ok(http.MethodGet, "/crafting/finish/price?remainingTime=00:01:35", nil, &quote)
	require.Equal(t, protocol.FinishPrice{Cost: 50, ValidTime: "00:00:5"}, quote)
	f.rejected(http.MethodGet, "/smelting/finish/price?remainingTime=soon", nil, protocol.ErrProtoBadRequest)

	f.seed(func(ctx context.Context, p *player.Player) error {
		if _, err := p.Inventory.AddItems(ctx, itemPlanks, 4, true); err != nil {
			return err
		}
		return p.Rubies.AddEarned(ctx, 6)
	})
	f.ok(http.MethodPost, "/crafting/1/start", protocol.CraftingStartRequest{
		SessionID:   uuid.NewString(),
		RecipeID:    recipeStick,
		Multiplier:  2,
		Ingredients: []protocol.RequestItem{stackable(itemPlanks, 4)},
	}, nil)

	f.rejected(http.MethodPost, "/crafting/1/finish", protocol.PurchaseRequest{ExpectedPurchasePrice: 4}, protocol.ErrPriceChanged)

	var split protocol.SplitRubies
	f.ok(http.MethodPost, "/crafting/1/finish", protocol.PurchaseRequest{ExpectedPurchasePrice: 5}, &split)
	require.Equal(t, protocol.SplitRubies{Earned: 1}, split)

	var view protocol.CraftingSlotView
	f.ok(http.MethodGet, "/crafting/1", nil, &view)
	require.Equal(t, "Completed", view.State)
	require.Equal(t, 2, view.Available)
	require.Nil(t, view.NextCompletionUtc)

	// Nothing left to finish: the charge is rolled back with the rejection.
	f.seed(func(ctx context.Context, p *player.Player) error { return p.Rubies.AddEarned(ctx, 10) })
	f.rejected(http.MethodPost, "/crafting/1/finish", protocol.PurchaseRequest{ExpectedPurchasePrice: 5}, protocol.ErrBadRequest)
	f.ok(http.MethodGet, "/player/splitRubies", nil, &split)
	require.Equal(t, protocol.SplitRubies{Earned: 11}, split)
}

func TestSmeltingWithFuelAndStop(t *testing.T) {
	f := newFixture(t)
	f.signIn()
	f.seed(func(ctx context.Context, p *player.Player) error {
		if _, err := p.Inventory.AddItems(ctx, itemCobble, 4, true); err != nil {
			return err
		}
		_, err := p.Inventory.AddItems(ctx, itemCoal, 3, true)
		return err
	})

	fuel := stackable(itemCoal, 3)
	f.ok(http.MethodPost, "/smelting/1/start", protocol.SmeltingStartRequest{
		SessionID:  uuid.NewString(),
		RecipeID:   recipeStone,
		Multiplier: 4,
		Input:      stackable(itemCobble, 4),
		Fuel:       &fuel,
	}, nil)
	// 400 heat needed, one coal gives 800.
	require.Equal(t, 2, f.owned(itemCoal))
	require.Equal(t, 0, f.owned(itemCobble))

	var view protocol.SmeltingSlotView
	f.ok(http.MethodGet, "/smelting/1", nil, &view)
	require.Equal(t, "Active", view.State)
	require.Equal(t, &protocol.ItemQuantity{ItemID: itemStone, Quantity: 1}, view.Output)
	require.Nil(t, view.Fuel)
	require.NotNil(t, view.Burning)
	require.Equal(t, "2024-03-01T12:00:00.000Z", *view.Burning.BurnStartTime)
	require.Equal(t, "2024-03-01T12:01:20.000Z", *view.Burning.BurnsUntil)

	f.clk.Advance(15 * time.Second)
	f.ok(http.MethodPost, "/smelting/1/stop", nil, &view)
	require.Equal(t, "Empty", view.State)
	require.NotNil(t, view.Burning)
	require.Equal(t, "00:00:65", *view.Burning.RemainingBurnTime)
	require.Equal(t, 150, *view.Burning.HeatDepleted)

	require.Equal(t, 1, f.owned(itemStone))
	require.Equal(t, 3, f.owned(itemCobble))
	require.Equal(t, 2, f.owned(itemCoal))

	// The banked coal covers a new three-round session without fresh fuel.
	f.ok(http.MethodPost, "/smelting/1/start", protocol.SmeltingStartRequest{
		SessionID:  uuid.NewString(),
		RecipeID:   recipeStone,
		Multiplier: 3,
		Input:      stackable(itemCobble, 3),
	}, nil)
	f.clk.Advance(30 * time.Second)
	var got protocol.CollectResult
	f.ok(http.MethodPost, "/smelting/1/collectItems", nil, &got)
	require.Equal(t, []protocol.RewardItem{{ID: itemStone, Amount: 3}}, got.Rewards.Inventory)
	require.Equal(t, 4, f.owned(itemStone))
}

func TestHotbarFeedsEscrow(t *testing.T) {
	f := newFixture(t)
	f.signIn()
	f.seed(func(ctx context.Context, p *player.Player) error {
		_, err := p.Inventory.AddItems(ctx, itemPlanks, 10, true)
		return err
	})

	hotbar := make([]*protocol.HotbarRequestSlot, player.HotbarSize)
	hotbar[0] = &protocol.HotbarRequestSlot{ID: itemPlanks, Count: 3}
	status, _, raw := f.do(http.MethodPut, "/inventory/survival/hotbar", hotbar)
	require.Equal(t, http.StatusOK, status)
	var slots []*protocol.HotbarView
	require.NoError(t, json.Unmarshal(raw, &slots))
	require.Len(t, slots, player.HotbarSize)
	require.Equal(t, &protocol.HotbarView{ID: itemPlanks, Count: 3}, slots[0])
	require.Nil(t, slots[1])
	require.Equal(t, 7, f.owned(itemPlanks))

	f.rejected(http.MethodPut, "/inventory/survival/hotbar", hotbar[:3], protocol.ErrProtoBadRequest)

	f.ok(http.MethodPost, "/crafting/1/start", protocol.CraftingStartRequest{
		SessionID:   uuid.NewString(),
		RecipeID:    recipeStick,
		Multiplier:  2,
		Ingredients: []protocol.RequestItem{stackable(itemPlanks, 4)},
	}, nil)

	var inv protocol.InventoryView
	f.ok(http.MethodGet, "/inventory/survival", nil, &inv)
	require.Nil(t, inv.Hotbar[0])
	require.Equal(t, 6, f.owned(itemPlanks))
}
