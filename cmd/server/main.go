package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"genoa.ai/internal/audit"
	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/clock"
	persistlog "genoa.ai/internal/persistence/log"
	"genoa.ai/internal/persistence/snapshot"
	"genoa.ai/internal/persistence/store"
	"genoa.ai/internal/protocol"
	"genoa.ai/internal/session"
	"genoa.ai/internal/transport/api"
	"genoa.ai/internal/transport/observer"
	"genoa.ai/internal/tuning"
	"genoa.ai/internal/workshop"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory (items.json, recipes/)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		snapPath   = flag.String("snapshot", "", "snapshot to import before serving (optional)")
		keepSnaps  = flag.Int("keep_snapshots", 48, "number of periodic snapshots to keep")
		noAudit    = flag.Bool("disable_audit_log", false, "do not write audit entries to <data>/audit")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}
	st, err := store.Open(filepath.Join(*dataDir, "genoa.sqlite"), store.RetryPolicy{
		MaxAttempts:     tune.Transactions.MaxAttempts,
		InitialInterval: time.Duration(tune.Transactions.InitialBackoffMs) * time.Millisecond,
		MaxInterval:     time.Duration(tune.Transactions.MaxBackoffMs) * time.Millisecond,
	})
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := recordCatalogs(ctx, st, *configDir, cats); err != nil {
		logger.Printf("record catalogs: %v", err)
	}

	snapDir := filepath.Join(*dataDir, "snapshots")
	if p := strings.TrimSpace(*snapPath); p != "" {
		h, err := snapshot.Import(ctx, st, p)
		if err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		if h.Catalogs != "" && h.Catalogs != catalogsDigest(cats) {
			logger.Printf("snapshot %s was taken with different catalogs", filepath.Base(p))
		}
		logger.Printf("imported snapshot=%s documents=%d", filepath.Base(p), h.Documents)
	}

	clk := clock.RealClock{}
	engine := workshop.NewEngine(cats, clk, tune)
	sessions := session.NewManager(st, clk, time.Duration(tune.SessionExpirySeconds)*time.Second)
	coord := session.NewCoordinator()

	trail := audit.NewTrail(logger)
	if !*noAudit {
		auditLog := persistlog.NewAuditLogger(*dataDir)
		defer auditLog.Close()
		trail.Add(auditLog)
	}

	schemas, err := protocol.LoadSchemas()
	if err != nil {
		logger.Fatalf("load schemas: %v", err)
	}
	apiSrv, err := api.NewServer(api.Config{
		Logger:      log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmicroseconds),
		Store:       st,
		Engine:      engine,
		Sessions:    sessions,
		Coordinator: coord,
		Schemas:     schemas,
		Trail:       trail,
		Clock:       clk,
	})
	if err != nil {
		logger.Fatalf("api: %v", err)
	}

	if every := tune.SnapshotEveryMinutes; every > 0 {
		go snapshotLoop(ctx, logger, st, snapDir, cats, time.Duration(every)*time.Minute, *keepSnaps)
	}

	mux := http.NewServeMux()
	mux.Handle("/", apiSrv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		writeMetrics(rw, metricsSource{api: apiSrv, trail: trail, sessions: sessions})
	})

	enableAdminHTTP := envBool("GENOA_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("GENOA_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only operator endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			players, err := st.List(r.Context(), workshop.Collection)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{
				"players":         len(players),
				"queued_sessions": apiSrv.QueuedSessions(),
				"cached_sessions": sessions.Cached(),
				"actions":         trail.Counts(),
				"catalogs":        catalogsDigest(cats),
			})
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 30*time.Second)
			defer cancel2()
			path, err := snapshot.Export(ctx2, st, snapDir, clk.Now(), catalogsDigest(cats))
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path})
		})

		obsSrv := observer.NewServer(cats, trail, clk, logger)
		trail.Add(obsSrv)
		mux.HandleFunc("/admin/v1/audit/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/audit/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (GENOA_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (GENOA_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// recordCatalogs stores the loaded reference data so snapshots and the admin tool can tell which
// catalogs a database was served with.
func recordCatalogs(ctx context.Context, st *store.Store, configDir string, cats *catalogs.Catalogs) error {
	raw, err := os.ReadFile(filepath.Join(configDir, "items.json"))
	if err != nil {
		return err
	}
	if err := st.UpsertCatalog(ctx, "items", cats.Items.Digest, raw); err != nil {
		return err
	}
	crafting, err := json.Marshal(cats.Crafting.ByID)
	if err != nil {
		return err
	}
	if err := st.UpsertCatalog(ctx, "crafting", cats.Crafting.Digest, crafting); err != nil {
		return err
	}
	smelting, err := json.Marshal(cats.Smelting.ByID)
	if err != nil {
		return err
	}
	return st.UpsertCatalog(ctx, "smelting", cats.Smelting.Digest, smelting)
}

func catalogsDigest(cats *catalogs.Catalogs) string {
	return cats.Items.Digest[:12] + "-" + cats.Crafting.Digest[:12] + "-" + cats.Smelting.Digest[:12]
}

func snapshotLoop(ctx context.Context, logger *log.Logger, st *store.Store, dir string, cats *catalogs.Catalogs, every time.Duration, keep int) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			path, err := snapshot.Export(ctx, st, dir, now, catalogsDigest(cats))
			if err != nil {
				logger.Printf("snapshot: %v", err)
				continue
			}
			logger.Printf("snapshot written: %s", filepath.Base(path))
			if err := snapshot.Prune(dir, keep); err != nil {
				logger.Printf("snapshot prune: %v", err)
			}
		}
	}
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
