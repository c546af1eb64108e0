package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-triage-backend/internal/domain"
)

func TestTriageStats_EmptyUser(t *testing.T) {
	db := newTriageRepoDB(t, &domain.TriageLog{})

	count, maxUpdated, err := TriageStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("TriageStats: %v", err)
	}
	if count != 0 || maxUpdated != nil {
		t.Fatalf("empty user: count=%d max=%v", count, maxUpdated)
	}
}

func TestTriageStats_CountAndMaxUpdatedAt(t *testing.T) {
	db := newTriageRepoDB(t, &domain.TriageLog{})

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	latest := base.Add(2 * time.Hour)
	seeds := []domain.TriageLog{
		{ID: "a", UserID: "u1", Payload: "{}", Result: "{}", UpdatedAt: base},
		{ID: "b", UserID: "u1", Payload: "{}", Result: "{}", UpdatedAt: latest},
		{ID: "x", UserID: "u2", Payload: "{}", Result: "{}", UpdatedAt: latest.Add(time.Hour)},
	}
	for _, s := range seeds {
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("seed %s: %v", s.ID, err)
		}
	}

	count, maxUpdated, err := TriageStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("TriageStats: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if maxUpdated == nil || !maxUpdated.Equal(latest) {
		t.Fatalf("maxUpdated = %v, want %v", maxUpdated, latest)
	}
}

func TestTriageStats_Error_NoTable(t *testing.T) {
	db := newTriageRepoDB(t /* no migrations */)
	if _, _, err := TriageStats(context.Background(), db, "u1"); err == nil {
		t.Fatal("expected error when table missing")
	}
}
