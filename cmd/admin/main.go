package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"genoa.ai/internal/audit"
	"genoa.ai/internal/catalogs"
	"genoa.ai/internal/clock"
	persistlog "genoa.ai/internal/persistence/log"
	"genoa.ai/internal/persistence/snapshot"
	"genoa.ai/internal/persistence/store"
	"genoa.ai/internal/tuning"
	"genoa.ai/internal/workshop"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "player":
			playerCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "snapshots":
			snapshotsCmd(os.Args[2:])
			return
		case "grant-rubies":
			grantRubiesCmd(os.Args[2:])
			return
		case "grant-items":
			grantItemsCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func fatal(code int, args ...any) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(code)
}

func openStore(dataDir string) *store.Store {
	st, err := store.Open(filepath.Join(dataDir, "genoa.sqlite"), store.RetryPolicy{})
	if err != nil {
		fatal(1, "open store:", err)
	}
	return st
}

// openEngine loads the catalogs needed to interpret player documents.
func openEngine(configDir string) *workshop.Engine {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		fatal(1, "load catalogs:", err)
	}
	tune, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		tune = tuning.Defaults()
	}
	return workshop.NewEngine(cats, clock.RealClock{}, tune)
}

func adminTrail(dataDir string) (*audit.Trail, func()) {
	l := persistlog.NewToolAuditLogger(dataDir, "admin")
	return audit.NewTrail(nil, l), func() { _ = l.Close() }
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	st := openStore(*dataDir)
	defer st.Close()

	rows, err := summarizePlayers(context.Background(), st)
	if err != nil {
		fatal(1, "list players:", err)
	}
	for _, r := range rows {
		fmt.Printf("%s rubies=%d+%d items=%d active_slots=%d\n", r.UserID, r.Purchased, r.Earned, r.Items, r.ActiveSlots)
	}
}

func playerCmd(args []string) {
	fs := flag.NewFlagSet("player", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	userID := fs.String("user", "", "player id")
	_ = fs.Parse(args)
	if strings.TrimSpace(*userID) == "" {
		fatal(2, "missing -user")
	}

	st := openStore(*dataDir)
	defer st.Close()

	var doc map[string]any
	var found bool
	err := st.Run(context.Background(), func(tx *store.Tx) error {
		var err error
		found, err = tx.Get(context.Background(), workshop.Collection, *userID, "", &doc)
		return err
	})
	if err != nil {
		fatal(1, "read player:", err)
	}
	if !found {
		fatal(1, "no such player:", *userID)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(doc)
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	userID := fs.String("user", "", "only entries of this player")
	action := fs.String("action", "", "only entries with this action (e.g. FINISH)")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadAudit(*dataDir)
	if err != nil {
		fatal(1, "read audit:", err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range filterAudit(entries, *userID, strings.ToUpper(*action)) {
		_ = enc.Encode(e)
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	st := openStore(*dataDir)
	defer st.Close()

	digest, _ := st.CatalogDigest(context.Background(), "items")
	path, err := snapshot.Export(context.Background(), st, filepath.Join(*dataDir, "snapshots"), time.Now(), digest)
	if err != nil {
		fatal(1, "export:", err)
	}
	fmt.Println(path)
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot to restore (required)")
	_ = fs.Parse(args)
	if strings.TrimSpace(*snapPath) == "" {
		fatal(2, "missing -snapshot")
	}

	st := openStore(*dataDir)
	defer st.Close()

	h, err := snapshot.Import(context.Background(), st, *snapPath)
	if err != nil {
		fatal(1, "import:", err)
	}
	trail, closeTrail := adminTrail(*dataDir)
	defer closeTrail()
	trail.Record(audit.Entry{Time: time.Now().UnixMilli(), Action: audit.ActionSnapshotRestore, Quantity: h.Documents})
	fmt.Printf("restored %d documents taken at %s\n", h.Documents, time.UnixMilli(h.TakenAt).UTC().Format(time.RFC3339))
	fmt.Println("restart the server: cached sessions still point at the replaced data")
}

func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	files, err := snapshot.List(filepath.Join(*dataDir, "snapshots"))
	if err != nil {
		fatal(1, "list:", err)
	}
	for _, p := range files {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Printf("%s unreadable: %v\n", filepath.Base(p), err)
			continue
		}
		fmt.Printf("%s taken=%s documents=%d catalogs=%s\n",
			filepath.Base(p), time.UnixMilli(h.TakenAt).UTC().Format(time.RFC3339), h.Documents, h.Catalogs)
	}
}

func grantRubiesCmd(args []string) {
	fs := flag.NewFlagSet("grant-rubies", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	configDir := fs.String("configs", "./configs", "config directory")
	userID := fs.String("user", "", "player id")
	purchased := fs.Int("purchased", 0, "purchased rubies to add")
	earned := fs.Int("earned", 0, "earned rubies to add")
	_ = fs.Parse(args)
	if strings.TrimSpace(*userID) == "" {
		fatal(2, "missing -user")
	}

	st := openStore(*dataDir)
	defer st.Close()
	trail, closeTrail := adminTrail(*dataDir)
	defer closeTrail()

	b, err := grantRubies(context.Background(), st, openEngine(*configDir), trail, *userID, *purchased, *earned)
	if err != nil {
		fatal(1, "grant:", err)
	}
	fmt.Printf("%s rubies purchased=%d earned=%d\n", *userID, b.Purchased, b.Earned)
}

func grantItemsCmd(args []string) {
	fs := flag.NewFlagSet("grant-items", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	configDir := fs.String("configs", "./configs", "config directory")
	userID := fs.String("user", "", "player id")
	itemID := fs.String("item", "", "item id")
	count := fs.Int("count", 1, "number of items")
	_ = fs.Parse(args)
	if strings.TrimSpace(*userID) == "" || strings.TrimSpace(*itemID) == "" {
		fatal(2, "missing -user or -item")
	}

	st := openStore(*dataDir)
	defer st.Close()
	trail, closeTrail := adminTrail(*dataDir)
	defer closeTrail()

	minted, err := grantItems(context.Background(), st, openEngine(*configDir), trail, *userID, *itemID, *count)
	if err != nil {
		fatal(1, "grant:", err)
	}
	fmt.Printf("granted %d x %s to %s\n", *count, *itemID, *userID)
	for _, id := range minted {
		fmt.Println("  instance", id)
	}
}
