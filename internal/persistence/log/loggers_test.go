package log

import (
	"testing"
	"time"

	"genoa.ai/internal/audit"
)

func TestAuditLoggerRotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return now }

	if err := l.WriteAudit(audit.Entry{Time: 1, UserID: "U", Action: audit.ActionStart, Kind: "crafting", Slot: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := l.WriteAudit(audit.Entry{Time: 2, UserID: "U", Action: audit.ActionCollect, Kind: "crafting", Slot: 1, Quantity: 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(AuditDir(dir), "audit")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v", files)
	}

	got, err := ReadAudit(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Action != audit.ActionStart || got[1].Quantity != 4 {
		t.Fatalf("got %+v", got)
	}
}

func TestAuditLoggerAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	fixed := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	for i := 0; i < 2; i++ {
		l := NewAuditLogger(dir)
		l.w.now = fixed
		if err := l.WriteAudit(audit.Entry{Time: int64(i), Action: audit.ActionUnlock}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	got, err := ReadAudit(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
}

func TestReadAuditMergesToolLogs(t *testing.T) {
	dir := t.TempDir()
	server := NewAuditLogger(dir)
	admin := NewToolAuditLogger(dir, "admin")

	if err := server.WriteAudit(audit.Entry{Time: 30, UserID: "U", Action: audit.ActionFinish}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := admin.WriteAudit(audit.Entry{Time: 10, UserID: "U", Action: audit.ActionGrantRubies, Rubies: 5}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := admin.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadAudit(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Action != audit.ActionGrantRubies || got[1].Action != audit.ActionFinish {
		t.Fatalf("got %+v", got)
	}
}
