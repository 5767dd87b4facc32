// Package api serves the player-facing REST API. Every authenticated request is queued behind
// earlier requests of the same session and runs inside one store transaction: the player's
// inventory, rubies, workshop slots and the session's sequence numbers all commit together or
// not at all.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"genoa.ai/internal/audit"
	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/clock"
	"genoa.ai/internal/persistence/store"
	"genoa.ai/internal/player"
	"genoa.ai/internal/protocol"
	"genoa.ai/internal/session"
	"genoa.ai/internal/workshop"
)

// AuthBasePath prefixes every authenticated route; clients learn it from the sign-in response.
const AuthBasePath = "/auth"

const maxBodyBytes = 64 * 1024

type Config struct {
	Logger      *log.Logger
	Store       *store.Store
	Engine      *workshop.Engine
	Sessions    *session.Manager
	Coordinator *session.Coordinator
	Schemas     *protocol.Schemas
	Trail       *audit.Trail
	Clock       clock.Clock
}

type Server struct {
	log      *log.Logger
	st       *store.Store
	engine   *workshop.Engine
	cat      *catalogs.Catalogs
	sessions *session.Manager
	coord    *session.Coordinator
	schemas  *protocol.Schemas
	trail    *audit.Trail
	clk      clock.Clock

	catalogOnce sync.Once
	itemsView   any
	recipesView any

	stats Stats
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Engine == nil || cfg.Sessions == nil {
		return nil, errors.New("api: store, engine and sessions are required")
	}
	s := &Server{
		log:      cfg.Logger,
		st:       cfg.Store,
		engine:   cfg.Engine,
		cat:      cfg.Engine.Catalogs(),
		sessions: cfg.Sessions,
		coord:    cfg.Coordinator,
		schemas:  cfg.Schemas,
		trail:    cfg.Trail,
		clk:      cfg.Clock,
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.coord == nil {
		s.coord = session.NewCoordinator()
	}
	if s.clk == nil {
		s.clk = clock.RealClock{}
	}
	if s.schemas == nil {
		sch, err := protocol.LoadSchemas()
		if err != nil {
			return nil, err
		}
		s.schemas = sch
	}
	return s, nil
}

// Stats counts request outcomes for the metrics endpoint.
type Stats struct {
	Requests  atomic.Uint64
	Rejected  atomic.Uint64
	Denied    atomic.Uint64
	Conflicts atomic.Uint64
	Failed    atomic.Uint64
}

func (s *Server) Stats() *Stats { return &s.stats }

// QueuedSessions is the number of sessions with requests in flight.
func (s *Server) QueuedSessions() int { return s.coord.Active() }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+protocol.BasePath+"/player/profile/signin", s.handleSignIn)

	auth := func(pattern string) string {
		method, path, _ := strings.Cut(pattern, " ")
		return method + " " + AuthBasePath + protocol.BasePath + path
	}
	mux.Handle(auth("GET /inventory/catalogv3"), s.plain(s.catalogItems))
	mux.Handle(auth("GET /recipes"), s.plain(s.catalogRecipes))

	mux.Handle(auth("GET /player/rubies"), s.wrap(updatesNone, s.getRubies))
	mux.Handle(auth("GET /player/splitRubies"), s.wrap(updatesNone, s.getSplitRubies))
	mux.Handle(auth("GET /inventory/survival"), s.wrap(updatesNone, s.getInventory))
	mux.Handle(auth("PUT /inventory/survival/hotbar"), s.wrap(updatesRaw, s.putHotbar))
	mux.Handle(auth("GET /player/utilityBlocks"), s.wrap(updatesNone, s.getUtilityBlocks))

	for _, kind := range []workshop.Kind{workshop.KindCrafting, workshop.KindSmelting} {
		k := kind
		base := "/" + string(k)
		mux.Handle(auth("GET "+base+"/finish/price"), s.wrap(updatesNone, s.finishPrice))
		mux.Handle(auth("GET "+base+"/{slot}"), s.wrap(updatesSend, s.slotHandler(k, s.getSlot)))
		mux.Handle(auth("POST "+base+"/{slot}/collectItems"), s.wrap(updatesSend, s.slotHandler(k, s.collect)))
		mux.Handle(auth("POST "+base+"/{slot}/stop"), s.wrap(updatesSend, s.slotHandler(k, s.stop)))
		mux.Handle(auth("POST "+base+"/{slot}/finish"), s.wrap(updatesSend, s.slotHandler(k, s.finish)))
		mux.Handle(auth("POST "+base+"/{slot}/unlock"), s.wrap(updatesSend, s.slotHandler(k, s.unlock)))
	}
	mux.Handle(auth("POST /crafting/{slot}/start"), s.wrap(updatesSend, s.slotHandler(workshop.KindCrafting, s.startCrafting)))
	mux.Handle(auth("POST /smelting/{slot}/start"), s.wrap(updatesSend, s.slotHandler(workshop.KindSmelting, s.startSmelting)))

	return s.accessLog(mux)
}

type updatesMode int

const (
	updatesNone updatesMode = iota // envelope with "updates": null
	updatesSend                    // envelope with the committed sequence numbers
	updatesRaw                     // bare result, no envelope
)

// rejection is a business-rule refusal. The transaction is rolled back and the client gets an
// empty 400.
type rejection struct{ code string }

func (r *rejection) Error() string { return "rejected: " + r.code }

func reject(code string) error { return &rejection{code: code} }

// call is the per-attempt state of one authenticated request. A conflicting transaction is run
// again from scratch, so everything here is rebuilt on each attempt.
type call struct {
	ctx    context.Context
	r      *http.Request
	body   []byte
	id     session.Identity
	tx     *store.Tx
	player *player.Player
	seq    *session.Sequences
	now    int64
	audits []audit.Entry
}

func (c *call) record(e audit.Entry) {
	e.Time = c.now
	e.UserID = c.id.UserID
	e.SessionID = c.id.SessionID
	c.audits = append(c.audits, e)
}

type handler func(c *call) (any, error)

func (s *Server) authenticate(rw http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	id, err := s.sessions.Authenticate(r.Context(), r.Header.Get("Session-Id"), r.Header.Get("Authorization"))
	if err != nil {
		if !errors.Is(err, session.ErrUnauthorized) {
			s.log.Printf("authenticate: %v", err)
		}
		s.stats.Denied.Add(1)
		rw.Header().Set("X-Genoa-Error", protocol.ErrUnauthorized)
		rw.WriteHeader(http.StatusForbidden)
		return session.Identity{}, false
	}
	return id, true
}

// plain serves authenticated requests that touch no player state.
func (s *Server) plain(fn func() any) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		s.stats.Requests.Add(1)
		if _, ok := s.authenticate(rw, r); !ok {
			return
		}
		writeJSON(rw, protocol.Envelope{Result: fn()})
	})
}

func (s *Server) wrap(mode updatesMode, fn handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		s.stats.Requests.Add(1)
		id, ok := s.authenticate(rw, r)
		if !ok {
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil || len(body) > maxBodyBytes {
			s.fail(rw, reject(protocol.ErrProtoBadRequest))
			return
		}

		var (
			result  any
			updates map[string]int
			audits  []audit.Entry
		)
		err = s.coord.Do(r.Context(), id.SessionID, func(ctx context.Context) error {
			return s.st.Run(ctx, func(tx *store.Tx) error {
				c := &call{ctx: ctx, r: r, body: body, id: id, tx: tx, now: clock.Millis(s.clk)}
				c.player = player.New(tx, id.UserID, s.engine, s.clk)
				seq, err := session.LoadSequences(ctx, tx, id.SessionID)
				if err != nil {
					return err
				}
				c.seq = seq

				res, err := fn(c)
				if err != nil {
					return err
				}
				up, err := seq.Commit(ctx, tx)
				if err != nil {
					return err
				}
				result, updates, audits = res, up, c.audits
				return nil
			})
		})
		if err != nil {
			s.fail(rw, err)
			return
		}
		s.trail.Record(audits...)

		switch mode {
		case updatesRaw:
			writeJSON(rw, result)
		case updatesSend:
			if updates == nil {
				updates = map[string]int{}
			}
			writeJSON(rw, protocol.Envelope{Result: result, Updates: updates})
		default:
			writeJSON(rw, protocol.Envelope{Result: result})
		}
	})
}

func (s *Server) fail(rw http.ResponseWriter, err error) {
	var rej *rejection
	switch {
	case errors.As(err, &rej):
		s.stats.Rejected.Add(1)
		rw.Header().Set("X-Genoa-Error", rej.code)
		rw.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, store.ErrRetriesExhausted):
		s.stats.Conflicts.Add(1)
		s.log.Printf("request abandoned: %v", err)
		rw.Header().Set("X-Genoa-Error", protocol.ErrConflict)
		rw.WriteHeader(http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.stats.Failed.Add(1)
		rw.WriteHeader(http.StatusServiceUnavailable)
	default:
		s.stats.Failed.Add(1)
		s.log.Printf("request failed: %v", err)
		rw.Header().Set("X-Genoa-Error", protocol.ErrInternal)
		rw.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(rw, fmt.Sprintf("encode: %v", err), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = rw.Write(b)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Printf("%s %s %d %s", r.Method, r.URL.RequestURI(), rec.status, time.Since(start).Round(time.Microsecond))
	})
}
