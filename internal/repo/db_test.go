package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-triage-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Be tolerant across platforms/drivers:
	// - Windows: *os.PathError ("CreateFile … cannot find the file specified")
	// - SQLite:  "unable to open database file" / "out of memory (14)"
	// - Unix:    "no such file or directory"
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	// --- Verify PRAGMAs set by OpenSQLite ---
	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)

	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}

	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}

	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	// --- Verify pool tuning applied ---
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	// --- AutoMigrate should create all tables ---
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{
		&domain.TriageLog{}, &domain.SharePass{}, &domain.ShareAccessLog{},
		&domain.Profile{}, &domain.FamilyMember{}, &domain.MedicalRecord{},
		&domain.Idempotency{},
	} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	pass := &domain.SharePass{ID: "p1", UserID: "u1", Code: "123456", ExpiresAt: now.Add(30 * time.Minute), CreatedAt: now, UpdatedAt: now}
	if err := db.Create(pass).Error; err != nil {
		t.Fatalf("insert share pass: %v", err)
	}
	logRow := &domain.TriageLog{ID: "t1", UserID: "u1", Payload: "{}", Result: "{}", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(logRow).Error; err != nil {
		t.Fatalf("insert triage log: %v", err)
	}
	idem := &domain.Idempotency{ID: "i1", UserID: "u1", Scope: "share_pass", Key: "k1", PassCode: "123456", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(idem).Error; err != nil {
		t.Fatalf("insert idempotency: %v", err)
	}

	var got domain.SharePass
	if err := db.First(&got, "code = ?", "123456").Error; err != nil || got.UserID != "u1" {
		t.Fatalf("readback pass failed: err=%v got=%+v", err, got)
	}
}

// A brand-new database file has no schema until AutoMigrate runs; the boot
// sequence is OpenSQLite then AutoMigrate, and skipping the latter must not
// go unnoticed.
func TestFreshDatabase_WritesFailUntilMigrated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}

	expiry := time.Now().UTC().Add(30 * time.Minute)
	_, err = CreateSharePass(context.Background(), db, "u1", nil, "123456", expiry)
	if err == nil {
		t.Fatal("expected pre-migration write to fail")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "no such table") {
		t.Fatalf("unexpected pre-migration error: %v", err)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if _, err := CreateSharePass(context.Background(), db, "u1", nil, "123456", expiry); err != nil {
		t.Fatalf("insert after migration: %v", err)
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
