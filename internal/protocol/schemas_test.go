package protocol_test

import (
	"testing"

	"genoa.ai/internal/protocol"
)

const (
	guidA = "6f2c1a10-5b7e-4c6f-8f1e-1c2d3e4f5a01"
	guidB = "7a1e0c44-2b3d-4e5f-9a6b-7c8d9e0f1a02"
	guidC = "0d4c2a1b-9e8f-4a7b-8c6d-5e4f3a2b1c0d"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	s, err := protocol.LoadSchemas()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	accept := func(name, body string, out any) {
		t.Helper()
		if err := s.Decode(name, []byte(body), out); err != nil {
			t.Fatalf("%s rejected %s: %v", name, body, err)
		}
	}
	reject := func(name, body string, out any) {
		t.Helper()
		if err := s.Decode(name, []byte(body), out); err == nil {
			t.Fatalf("%s accepted %s", name, body)
		}
	}

	var signin protocol.SignInRequest
	accept(protocol.SchemaSignIn, `{"sessionTicket":"0123456789ABCDEF-x"}`, &signin)
	if signin.SessionTicket != "0123456789ABCDEF-x" {
		t.Fatalf("ticket=%q", signin.SessionTicket)
	}
	reject(protocol.SchemaSignIn, `{}`, &signin)

	var cs protocol.CraftingStartRequest
	accept(protocol.SchemaCraftingStart, `{"sessionId":"`+guidA+`","recipeId":"`+guidB+`","multiplier":2,
	  "ingredients":[{"itemId":"`+guidA+`","quantity":4,"itemInstanceIds":null}]}`, &cs)
	if cs.Multiplier != 2 || len(cs.Ingredients) != 1 || cs.Ingredients[0].Quantity != 4 || cs.Ingredients[0].ItemInstanceIDs != nil {
		t.Fatalf("decoded %+v", cs)
	}
	reject(protocol.SchemaCraftingStart, `{"sessionId":"not-a-guid","recipeId":"`+guidB+`","multiplier":1,"ingredients":[]}`, &cs)
	reject(protocol.SchemaCraftingStart, `{"sessionId":"`+guidA+`","recipeId":"`+guidB+`","multiplier":0,"ingredients":[]}`, &cs)
	reject(protocol.SchemaCraftingStart, `{"sessionId":"`+guidA+`","recipeId":"`+guidB+`","multiplier":1.5,"ingredients":[]}`, &cs)
	reject(protocol.SchemaCraftingStart, `{"sessionId":"`+guidA+`","recipeId":"`+guidB+`","multiplier":1,
	  "ingredients":[{"itemId":"`+guidA+`","quantity":0,"itemInstanceIds":null}]}`, &cs)
	reject(protocol.SchemaCraftingStart, `{"sessionId":"`+guidA+`","recipeId":"`+guidB+`","multiplier":1,
	  "ingredients":[{"itemId":"`+guidA+`","quantity":1,"itemInstanceIds":["XYZ"]}]}`, &cs)

	var ss protocol.SmeltingStartRequest
	accept(protocol.SchemaSmeltingStart, `{"sessionId":"`+guidA+`","recipeId":"`+guidB+`","multiplier":1,
	  "input":{"itemId":"`+guidA+`","quantity":1,"itemInstanceIds":null}}`, &ss)
	if ss.Fuel != nil {
		t.Fatalf("fuel=%+v", ss.Fuel)
	}
	accept(protocol.SchemaSmeltingStart, `{"sessionId":"`+guidA+`","recipeId":"`+guidB+`","multiplier":1,
	  "input":{"itemId":"`+guidA+`","quantity":1,"itemInstanceIds":null},
	  "fuel":{"itemId":"`+guidC+`","quantity":0,"itemInstanceIds":null}}`, &ss)
	if ss.Fuel == nil || ss.Fuel.ItemID != guidC {
		t.Fatalf("fuel=%+v", ss.Fuel)
	}

	var pr protocol.PurchaseRequest
	accept(protocol.SchemaPurchase, `{"expectedPurchasePrice":5}`, &pr)
	reject(protocol.SchemaPurchase, `{"expectedPurchasePrice":0}`, &pr)
	reject(protocol.SchemaPurchase, `{"expectedPurchasePrice":"5"}`, &pr)

	var hb []*protocol.HotbarRequestSlot
	accept(protocol.SchemaHotbar, `[null,{"id":"`+guidA+`","count":64},{"id":"`+guidB+`","count":1,"instanceId":"`+guidC+`"},null,null,null,null]`, &hb)
	if len(hb) != 7 || hb[0] != nil || hb[1].Count != 64 || hb[2].InstanceID == nil {
		t.Fatalf("hotbar=%+v", hb)
	}
	reject(protocol.SchemaHotbar, `[null,null,null]`, &hb)
	reject(protocol.SchemaHotbar, `[{"id":"`+guidA+`","count":65},null,null,null,null,null,null]`, &hb)

	reject(protocol.SchemaPurchase, `{`, &pr)
}

func TestRequestItemValid(t *testing.T) {
	if !(protocol.RequestItem{Quantity: 3}).Valid() {
		t.Fatalf("stackable request should be valid")
	}
	if !(protocol.RequestItem{Quantity: 2, ItemInstanceIDs: []string{guidA, guidB}}).Valid() {
		t.Fatalf("matching instance list should be valid")
	}
	if (protocol.RequestItem{Quantity: 3, ItemInstanceIDs: []string{guidA}}).Valid() {
		t.Fatalf("short instance list should be invalid")
	}
}
