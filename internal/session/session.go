// Package session handles sign-in, request authentication, client sequence numbers and the
// per-session serialization of requests.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"genoa.ai/internal/clock"
	"genoa.ai/internal/persistence/store"
)

// Collection is the store collection holding session records, keyed by session id.
const Collection = "session"

var (
	ErrBadTicket     = errors.New("session: malformed session ticket")
	ErrSessionExists = errors.New("session: session id already in use")
	ErrUnauthorized  = errors.New("session: unauthorized")
)

var userIDPattern = regexp.MustCompile(`^[0-9A-F]{16}$`)

type Record struct {
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id"`
	Token     string        `json:"token"`
	CreatedAt int64         `json:"created_at"`
	Sequences map[Field]int `json:"sequence_numbers"`
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    string
	SessionID string
}

type Manager struct {
	st    *store.Store
	clk   clock.Clock
	cache *cache.Cache
}

// NewManager caches authenticated sessions in memory for expiry.
func NewManager(st *store.Store, clk clock.Clock, expiry time.Duration) *Manager {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{st: st, clk: clk, cache: cache.New(expiry, 2*expiry)}
}

// UserIDFromTicket extracts the player id from a "<USERID>-..." session ticket.
func UserIDFromTicket(ticket string) (string, error) {
	parts := strings.Split(ticket, "-")
	if len(parts) < 2 || !userIDPattern.MatchString(parts[0]) {
		return "", ErrBadTicket
	}
	return parts[0], nil
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// SignIn creates a new session for the ticket's player under the client-chosen session id.
func (m *Manager) SignIn(ctx context.Context, sessionID, ticket string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrBadTicket
	}
	userID, err := UserIDFromTicket(ticket)
	if err != nil {
		return nil, err
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	rec := &Record{
		UserID:    userID,
		SessionID: sessionID,
		Token:     token,
		CreatedAt: clock.Millis(m.clk),
		Sequences: map[Field]int{},
	}
	for _, f := range Fields {
		rec.Sequences[f] = 1
	}

	err = m.st.Run(ctx, func(tx *store.Tx) error {
		created, err := tx.CreateIfNotExists(ctx, Collection, sessionID, "", rec)
		if err != nil {
			return err
		}
		if !created {
			return ErrSessionExists
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.cache.SetDefault(sessionID, Identity{UserID: userID, SessionID: sessionID})
	return rec, nil
}

// Authenticate checks a "Genoa <token>" authorization header against the session record.
func (m *Manager) Authenticate(ctx context.Context, sessionID, authorization string) (Identity, error) {
	scheme, token, ok := strings.Cut(authorization, " ")
	if sessionID == "" || !ok || scheme != "Genoa" || token == "" || strings.Contains(token, " ") {
		return Identity{}, ErrUnauthorized
	}
	key := sessionID + "\x00" + token
	if v, ok := m.cache.Get(key); ok {
		return v.(Identity), nil
	}

	var rec Record
	var found bool
	err := m.st.Run(ctx, func(tx *store.Tx) error {
		var err error
		found, err = tx.Get(ctx, Collection, sessionID, "", &rec)
		return err
	})
	if err != nil {
		return Identity{}, err
	}
	if !found || rec.Token != token {
		return Identity{}, ErrUnauthorized
	}
	id := Identity{UserID: rec.UserID, SessionID: rec.SessionID}
	m.cache.SetDefault(key, id)
	return id, nil
}

// Forget drops cached authentications, e.g. after a snapshot import replaced the session table.
func (m *Manager) Forget() { m.cache.Flush() }

// Cached is the number of cached authentications.
func (m *Manager) Cached() int { return m.cache.ItemCount() }
