package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-triage-backend/internal/domain"
)

func newSharePassDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("share_pass_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCreateSharePass_Success(t *testing.T) {
	db := newSharePassDB(t, &domain.SharePass{})

	expires := time.Now().UTC().Add(30 * time.Minute)
	p, err := CreateSharePass(context.Background(), db, "u1", nil, "123456", expires)
	if err != nil {
		t.Fatalf("CreateSharePass: %v", err)
	}
	if p.ID == "" || p.Code != "123456" || p.Consumed {
		t.Fatalf("unexpected SharePass fields: %+v", p)
	}

	var got domain.SharePass
	if err := db.First(&got, "code = ?", "123456").Error; err != nil {
		t.Fatalf("load created pass: %v", err)
	}
	if got.UserID != "u1" || got.Consumed {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateSharePass_DuplicateCode(t *testing.T) {
	db := newSharePassDB(t, &domain.SharePass{})

	expires := time.Now().UTC().Add(30 * time.Minute)
	if _, err := CreateSharePass(context.Background(), db, "u1", nil, "654321", expires); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := CreateSharePass(context.Background(), db, "u2", nil, "654321", expires)
	if !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestGetSharePass_FoundAndNotFound(t *testing.T) {
	db := newSharePassDB(t, &domain.SharePass{})

	if _, err := GetSharePass(context.Background(), db, "000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	expires := time.Now().UTC().Add(time.Minute)
	if _, err := CreateSharePass(context.Background(), db, "u1", nil, "111222", expires); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := GetSharePass(context.Background(), db, "111222")
	if err != nil {
		t.Fatalf("GetSharePass: %v", err)
	}
	if got.UserID != "u1" {
		t.Fatalf("unexpected pass: %+v", got)
	}
}

func TestConsumeSharePass_ExactlyOnce(t *testing.T) {
	db := newSharePassDB(t, &domain.SharePass{})

	expires := time.Now().UTC().Add(time.Minute)
	if _, err := CreateSharePass(context.Background(), db, "u1", nil, "333444", expires); err != nil {
		t.Fatalf("seed: %v", err)
	}

	won, err := ConsumeSharePass(context.Background(), db, "333444")
	if err != nil || !won {
		t.Fatalf("first consume: won=%v err=%v", won, err)
	}

	// The second attempt observes consumed=true and loses.
	won, err = ConsumeSharePass(context.Background(), db, "333444")
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if won {
		t.Fatal("second consume won; pass consumed twice")
	}

	var got domain.SharePass
	if err := db.First(&got, "code = ?", "333444").Error; err != nil {
		t.Fatalf("load consumed pass: %v", err)
	}
	if !got.Consumed {
		t.Fatalf("Consumed flag not persisted: %+v", got)
	}
}

func TestConsumeSharePass_MissingCodeLoses(t *testing.T) {
	db := newSharePassDB(t, &domain.SharePass{})
	won, err := ConsumeSharePass(context.Background(), db, "999999")
	if err != nil {
		t.Fatalf("ConsumeSharePass: %v", err)
	}
	if won {
		t.Fatal("consume of missing code won")
	}
}

func TestListSharePassesPage_OrderAndScope(t *testing.T) {
	db := newSharePassDB(t, &domain.SharePass{})

	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	seeds := []domain.SharePass{
		{ID: "p1", UserID: "u1", Code: "100001", ExpiresAt: base.Add(time.Hour), CreatedAt: base},
		{ID: "p2", UserID: "u1", Code: "100002", ExpiresAt: base.Add(time.Hour), CreatedAt: base.Add(time.Minute)},
		{ID: "px", UserID: "u2", Code: "100003", ExpiresAt: base.Add(time.Hour), CreatedAt: base},
	}
	for _, s := range seeds {
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("seed %s: %v", s.ID, err)
		}
	}

	page, err := ListSharePassesPage(context.Background(), db, "u1", 0, 10)
	if err != nil {
		t.Fatalf("ListSharePassesPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "p2" || page[1].ID != "p1" {
		t.Fatalf("unexpected page: %+v", page)
	}

	total, err := CountSharePasses(context.Background(), db, "u1")
	if err != nil || total != 2 {
		t.Fatalf("CountSharePasses = %d, %v", total, err)
	}
}

// Expired rows are never deleted here; they must stay readable so a late
// redemption can be told the pass expired rather than that it never existed.
func TestExpiredSharePasses_StayReadable(t *testing.T) {
	db := newSharePassDB(t, &domain.SharePass{})

	now := time.Now().UTC()
	seeds := []domain.SharePass{
		{ID: "old", UserID: "u1", Code: "200001", ExpiresAt: now.Add(-time.Minute)},
		{ID: "live", UserID: "u1", Code: "200002", ExpiresAt: now.Add(time.Minute)},
	}
	for _, s := range seeds {
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("seed %s: %v", s.ID, err)
		}
	}

	got, err := GetSharePass(context.Background(), db, "200001")
	if err != nil {
		t.Fatalf("expired pass not readable: %v", err)
	}
	if !now.After(got.ExpiresAt) {
		t.Fatalf("seeded pass should read back expired: %+v", got)
	}
}

func TestAccessLogs_AppendGateAndList(t *testing.T) {
	db := newSharePassDB(t, &domain.SharePass{}, &domain.ShareAccessLog{})

	expires := time.Now().UTC().Add(time.Minute)
	pass, err := CreateSharePass(context.Background(), db, "u1", uintPtr(4), "555666", expires)
	if err != nil {
		t.Fatalf("seed pass: %v", err)
	}

	ok, err := HasAccessLog(context.Background(), db, "555666")
	if err != nil || ok {
		t.Fatalf("gate open before any redemption: ok=%v err=%v", ok, err)
	}

	rec, err := CreateAccessLog(context.Background(), db, pass, "Dr. Smith")
	if err != nil {
		t.Fatalf("CreateAccessLog: %v", err)
	}
	if rec.PassCode != "555666" || rec.UserID != "u1" || rec.MemberID == nil || *rec.MemberID != 4 {
		t.Fatalf("unexpected access log: %+v", rec)
	}

	ok, err = HasAccessLog(context.Background(), db, "555666")
	if err != nil || !ok {
		t.Fatalf("gate still closed after redemption: ok=%v err=%v", ok, err)
	}

	list, err := ListAccessLogs(context.Background(), db, "u1", 100)
	if err != nil {
		t.Fatalf("ListAccessLogs: %v", err)
	}
	if len(list) != 1 || list[0].ViewerLabel != "Dr. Smith" {
		t.Fatalf("unexpected list: %+v", list)
	}
}
