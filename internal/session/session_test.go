package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genoa.ai/internal/clock"
	"genoa.ai/internal/persistence/store"
)

const ticket = "0123456789ABCDEF-ticket-payload"

func newManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "genoa.sqlite"), store.RetryPolicy{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	clk := clock.NewManual(time.UnixMilli(1_700_000_000_000))
	return NewManager(st, clk, time.Minute), st
}

func TestUserIDFromTicket(t *testing.T) {
	cases := []struct {
		ticket string
		want   string
		err    bool
	}{
		{ticket: ticket, want: "0123456789ABCDEF"},
		{ticket: "0123456789abcdef-x", err: true},
		{ticket: "0123456789ABCDEF", err: true},
		{ticket: "0123456789ABCDE-x", err: true},
		{ticket: "", err: true},
	}
	for _, tc := range cases {
		got, err := UserIDFromTicket(tc.ticket)
		if tc.err {
			if !errors.Is(err, ErrBadTicket) {
				t.Fatalf("%q: err=%v", tc.ticket, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q err=%v", tc.ticket, got, err)
		}
	}
}

func TestSignInAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)

	rec, err := m.SignIn(ctx, "sess-1", ticket)
	require.NoError(t, err)
	require.Equal(t, "0123456789ABCDEF", rec.UserID)
	require.Len(t, rec.Token, 32)
	for _, f := range Fields {
		require.Equal(t, 1, rec.Sequences[f], f)
	}

	_, err = m.SignIn(ctx, "sess-1", ticket)
	require.ErrorIs(t, err, ErrSessionExists)

	id, err := m.Authenticate(ctx, "sess-1", "Genoa "+rec.Token)
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: "0123456789ABCDEF", SessionID: "sess-1"}, id)

	for _, bad := range []string{"", rec.Token, "Bearer " + rec.Token, "Genoa wrong", "Genoa " + rec.Token + " x"} {
		_, err := m.Authenticate(ctx, "sess-1", bad)
		require.ErrorIs(t, err, ErrUnauthorized, bad)
	}
	_, err = m.Authenticate(ctx, "sess-2", "Genoa "+rec.Token)
	require.ErrorIs(t, err, ErrUnauthorized)

	// Authentication survives a cold cache.
	m.Forget()
	fresh := NewManager(st, nil, time.Minute)
	id, err = fresh.Authenticate(ctx, "sess-1", "Genoa "+rec.Token)
	require.NoError(t, err)
	require.Equal(t, "sess-1", id.SessionID)
}

func TestSequencesCommitInsideTransaction(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)
	_, err := m.SignIn(ctx, "sess-1", ticket)
	require.NoError(t, err)

	var updates map[string]int
	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		seq, err := LoadSequences(ctx, tx, "sess-1")
		if err != nil {
			return err
		}
		seq.Invalidate(FieldCrafting, FieldInventory, FieldJournal)
		if seq.Number(FieldCrafting) != 2 || seq.Number(FieldSmelting) != 1 {
			t.Fatalf("crafting=%d smelting=%d", seq.Number(FieldCrafting), seq.Number(FieldSmelting))
		}
		updates, err = seq.Commit(ctx, tx)
		return err
	}))
	require.Equal(t, map[string]int{"crafting": 2, "inventory": 2, "playerJournal": 2}, updates)

	// A rolled-back request leaves the counters untouched.
	rollback := errors.New("rollback")
	err = st.Run(ctx, func(tx *store.Tx) error {
		seq, err := LoadSequences(ctx, tx, "sess-1")
		if err != nil {
			return err
		}
		seq.Invalidate(FieldCrafting)
		if _, err := seq.Commit(ctx, tx); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		seq, err := LoadSequences(ctx, tx, "sess-1")
		require.NoError(t, err)
		require.Equal(t, 2, seq.Number(FieldCrafting))
		require.Equal(t, 1, seq.Number(FieldSmelting))
		updates, err := seq.Commit(ctx, tx)
		require.NoError(t, err)
		require.Empty(t, updates)
		return nil
	}))
}
