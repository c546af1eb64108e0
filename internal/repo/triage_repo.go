// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the TriageLog
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a log is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-triage-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateTriageLog appends one triage request/outcome pair for userID.
// Payload and result are stored as opaque JSON text; rows are never updated.
func CreateTriageLog(ctx context.Context, db *gorm.DB, userID string, memberID *uint, payload, result string) (*domain.TriageLog, error) {
	now := time.Now().UTC()
	rec := &domain.TriageLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		MemberID:  memberID,
		Payload:   payload,
		Result:    result,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// CountTriageLogs returns the total number of triage logs owned by userID.
func CountTriageLogs(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.TriageLog{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListTriageLogsPage returns a paginated slice of triage logs for userID,
// ordered by creation time descending. Use CountTriageLogs to obtain the
// total for pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListTriageLogsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.TriageLog, error) {
	var out []domain.TriageLog
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListRecentTriageLogs returns the most recent triage logs for the snapshot
// subject: logs for (userID, memberID) when memberID is set, otherwise the
// user's own logs (member_id IS NULL). Ordered newest first, capped at limit.
func ListRecentTriageLogs(ctx context.Context, db *gorm.DB, userID string, memberID *uint, limit int) ([]domain.TriageLog, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if memberID != nil {
		q = q.Where("member_id = ?", *memberID)
	} else {
		q = q.Where("member_id IS NULL")
	}
	var out []domain.TriageLog
	err := q.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}
