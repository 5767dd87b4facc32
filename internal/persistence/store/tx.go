package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type docKey struct {
	collection string
	id         string
}

type doc struct {
	value   any
	version int64
	existed bool // present when loaded
	exists  bool // present now
	dirty   bool
}

// Tx is a unit of work against the store. Paths are dot-separated keys into the document's JSON
// object tree; the empty path addresses the whole document. A Tx is not safe for concurrent use.
type Tx struct {
	s     *Store
	docs  map[docKey]*doc
	order []docKey
	done  bool
}

func (t *Tx) doc(ctx context.Context, collection, id string) (*doc, error) {
	if t.done {
		return nil, fmt.Errorf("store: transaction already finished")
	}
	k := docKey{collection: collection, id: id}
	if d, ok := t.docs[k]; ok {
		return d, nil
	}
	d, err := t.s.load(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	t.docs[k] = d
	t.order = append(t.order, k)
	return d, nil
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func lookup(root any, parts []string) (any, bool) {
	cur := root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// normalize converts v to the generic JSON shape stored in documents.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get decodes the value at path into out. It reports false when the document or path is absent
// or holds JSON null.
func (t *Tx) Get(ctx context.Context, collection, id, path string, out any) (bool, error) {
	d, err := t.doc(ctx, collection, id)
	if err != nil {
		return false, err
	}
	if !d.exists {
		return false, nil
	}
	v, ok := lookup(d.value, splitPath(path))
	if !ok || v == nil {
		return false, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("store: decode %s/%s %q: %w", collection, id, path, err)
	}
	return true, nil
}

// Exists reports whether path holds a non-null value.
func (t *Tx) Exists(ctx context.Context, collection, id, path string) (bool, error) {
	d, err := t.doc(ctx, collection, id)
	if err != nil {
		return false, err
	}
	if !d.exists {
		return false, nil
	}
	v, ok := lookup(d.value, splitPath(path))
	return ok && v != nil, nil
}

// Set stores value at path, creating the document and intermediate objects as needed.
func (t *Tx) Set(ctx context.Context, collection, id, path string, value any) error {
	d, err := t.doc(ctx, collection, id)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s %q: %w", collection, id, path, err)
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		d.value = v
		d.exists = true
		d.dirty = true
		return nil
	}
	if !d.exists {
		d.value = map[string]any{}
		d.exists = true
	}
	parent, err := parentOf(d, parts, true)
	if err != nil {
		return fmt.Errorf("store: set %s/%s %q: %w", collection, id, path, err)
	}
	parent[parts[len(parts)-1]] = v
	d.dirty = true
	return nil
}

// CreateIfNotExists sets path to value only when it is absent. It reports whether it wrote.
func (t *Tx) CreateIfNotExists(ctx context.Context, collection, id, path string, value any) (bool, error) {
	ok, err := t.Exists(ctx, collection, id, path)
	if err != nil || ok {
		return false, err
	}
	return true, t.Set(ctx, collection, id, path, value)
}

// Increment adds delta to the number at path. An absent value counts as zero.
func (t *Tx) Increment(ctx context.Context, collection, id, path string, delta int64) (int64, error) {
	d, err := t.doc(ctx, collection, id)
	if err != nil {
		return 0, err
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		return 0, fmt.Errorf("store: increment %s/%s: empty path", collection, id)
	}
	if !d.exists {
		d.value = map[string]any{}
		d.exists = true
	}
	parent, err := parentOf(d, parts, true)
	if err != nil {
		return 0, fmt.Errorf("store: increment %s/%s %q: %w", collection, id, path, err)
	}
	leaf := parts[len(parts)-1]
	var cur int64
	switch n := parent[leaf].(type) {
	case nil:
	case float64:
		cur = int64(n)
	default:
		return 0, fmt.Errorf("store: increment %s/%s %q: not a number", collection, id, path)
	}
	cur += delta
	parent[leaf] = float64(cur)
	d.dirty = true
	return cur, nil
}

// Delete removes the value at path. Deleting the empty path removes the document.
func (t *Tx) Delete(ctx context.Context, collection, id, path string) error {
	d, err := t.doc(ctx, collection, id)
	if err != nil {
		return err
	}
	if !d.exists {
		return nil
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		d.value = nil
		d.exists = false
		d.dirty = true
		return nil
	}
	parent, err := parentOf(d, parts, false)
	if err != nil || parent == nil {
		return nil
	}
	leaf := parts[len(parts)-1]
	if _, ok := parent[leaf]; ok {
		delete(parent, leaf)
		d.dirty = true
	}
	return nil
}

func parentOf(d *doc, parts []string, create bool) (map[string]any, error) {
	cur, ok := d.value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document root is not an object")
	}
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok || next == nil {
			if !create {
				return nil, nil
			}
			m := map[string]any{}
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%q is not an object", p)
		}
		cur = m
	}
	return cur, nil
}

// Commit applies the transaction. It returns ErrConflict when a touched document changed since it
// was loaded. A Tx cannot be reused after Commit.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("store: transaction already finished")
	}
	t.done = true
	return t.s.commit(ctx, t)
}
