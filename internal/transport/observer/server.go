package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"genoa.ai/internal/audit"
	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/clock"
	"genoa.ai/internal/observerproto"
)

type subscriber struct {
	id      string
	out     chan []byte
	filter  atomic.Pointer[observerproto.SubscribeMsg]
	dropped atomic.Uint64
}

// Server streams audit entries to loopback admin clients. It is an audit.Sink.
type Server struct {
	cat   *catalogs.Catalogs
	trail *audit.Trail
	clk   clock.Clock
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewServer(cat *catalogs.Catalogs, trail *audit.Trail, clk clock.Clock, logger *log.Logger) *Server {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Server{
		cat:   cat,
		trail: trail,
		clk:   clk,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
		subs: map[string]*subscriber{},
	}
}

// WriteAudit fans e out to matching subscribers. Slow subscribers lose entries instead of
// blocking the request that produced them.
func (s *Server) WriteAudit(e audit.Entry) error {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	if len(subs) == 0 {
		return nil
	}

	b, err := json.Marshal(observerproto.AuditMsg{Type: "AUDIT", ProtocolVersion: observerproto.Version, Entry: e})
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if f := sub.filter.Load(); f != nil && !f.Matches(e) {
			continue
		}
		select {
		case sub.out <- b:
		default:
			sub.dropped.Add(1)
		}
	}
	return nil
}

func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			ServerTime:      clock.Millis(s.clk),
			ActionCounts:    map[string]uint64{},
			Subscribers:     s.Subscribers(),
		}
		if s.cat != nil {
			resp.Catalogs = observerproto.CatalogDigests{
				Items:    s.cat.Items.Digest,
				Crafting: s.cat.Crafting.Digest,
				Smelting: s.cat.Smelting.Digest,
			}
		}
		if s.trail != nil {
			resp.ActionCounts = s.trail.Counts()
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sb := &subscriber{id: fmt.Sprintf("A%d", s.nextID.Add(1)), out: make(chan []byte, 1024)}
		sb.filter.Store(&sub)
		s.mu.Lock()
		s.subs[sb.id] = sb
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, sb.id)
			s.mu.Unlock()
		}()
		if s.log != nil {
			s.log.Printf("audit subscriber %s connected from %s", sb.id, r.RemoteAddr)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sb.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				case <-ticker.C:
					n := sb.dropped.Swap(0)
					if n == 0 {
						continue
					}
					b, _ := json.Marshal(observerproto.DroppedMsg{Type: "DROPPED", ProtocolVersion: observerproto.Version, Count: n})
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := decodeSubscribe(msg); ok {
				sb.filter.Store(&sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func decodeSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
