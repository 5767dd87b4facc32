package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://genoa.ai/schemas/"

// Request body schemas.
const (
	SchemaSignIn        = "signin.schema.json"
	SchemaCraftingStart = "crafting_start.schema.json"
	SchemaSmeltingStart = "smelting_start.schema.json"
	SchemaPurchase      = "purchase.schema.json"
	SchemaHotbar        = "hotbar.schema.json"
)

// Schemas holds the compiled request schemas.
type Schemas struct {
	byName map[string]*jsonschema.Schema
}

// LoadSchemas compiles every embedded schema.
func LoadSchemas() (*Schemas, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7

	names, err := fs.Glob(schemaFS, "schemas/*.schema.json")
	if err != nil {
		return nil, err
	}
	for _, p := range names {
		b, err := schemaFS.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+strings.TrimPrefix(p, "schemas/"), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", p, err)
		}
	}

	s := &Schemas{byName: map[string]*jsonschema.Schema{}}
	for _, name := range []string{SchemaSignIn, SchemaCraftingStart, SchemaSmeltingStart, SchemaPurchase, SchemaHotbar} {
		compiled, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		s.byName[name] = compiled
	}
	return s, nil
}

// Decode validates raw against the named schema and then unmarshals it into out.
func (s *Schemas) Decode(name string, raw []byte, out any) error {
	sch, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("protocol: unknown schema %s", name)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	return nil
}

// Valid checks what the schema cannot express: instance ids, when given, match the quantity.
func (r RequestItem) Valid() bool {
	return r.ItemInstanceIDs == nil || len(r.ItemInstanceIDs) == r.Quantity
}
