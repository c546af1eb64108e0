// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the SharePass
// and ShareAccessLog models.
//
// The two hard guarantees live here:
//   - pass codes are unique among stored passes (UNIQUE index; callers retry
//     issuance with a fresh code on ErrDuplicateCode), and
//   - a pass is consumed at most once, enforced with a conditional UPDATE so
//     concurrent redemptions cannot both win.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-triage-backend/internal/domain"
)

// ErrDuplicateCode indicates that a share pass with the generated code
// already exists. Issuance retries with a fresh code.
var ErrDuplicateCode = errors.New("duplicate share pass code")

// CreateSharePass inserts a pass with the given code and expiry. It returns
// ErrDuplicateCode when the code collides with an existing row.
func CreateSharePass(ctx context.Context, db *gorm.DB, userID string, memberID *uint, code string, expiresAt time.Time) (*domain.SharePass, error) {
	now := time.Now().UTC()
	p := &domain.SharePass{
		ID:        uuid.NewString(),
		UserID:    userID,
		MemberID:  memberID,
		Code:      code,
		Consumed:  false,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicateCode
		}
		return nil, err
	}
	return p, nil
}

// GetSharePass fetches a pass by code, or ErrNotFound.
func GetSharePass(ctx context.Context, db *gorm.DB, code string) (*domain.SharePass, error) {
	var p domain.SharePass
	err := db.WithContext(ctx).
		Where("code = ?", code).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ConsumeSharePass flips Consumed false -> true for the given code. The
// WHERE clause includes consumed = false, so exactly one concurrent caller
// observes RowsAffected == 1; everyone else gets false.
func ConsumeSharePass(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.SharePass{}).
		Where("code = ? AND consumed = ?", code, false).
		Updates(map[string]any{"consumed": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountSharePasses returns the total number of passes issued by userID.
func CountSharePasses(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.SharePass{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListSharePassesPage returns a paginated slice of the user's issued passes,
// newest first.
func ListSharePassesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.SharePass, error) {
	var out []domain.SharePass
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CreateAccessLog appends one redemption record for the pass.
func CreateAccessLog(ctx context.Context, db *gorm.DB, pass *domain.SharePass, viewerLabel string) (*domain.ShareAccessLog, error) {
	now := time.Now().UTC()
	rec := &domain.ShareAccessLog{
		ID:          uuid.NewString(),
		PassCode:    pass.Code,
		UserID:      pass.UserID,
		MemberID:    pass.MemberID,
		ViewerLabel: viewerLabel,
		ViewedAt:    now,
		CreatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// HasAccessLog reports whether at least one redemption was recorded for the
// code. Record handles are only served once this returns true.
func HasAccessLog(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ShareAccessLog{}).
		Where("pass_code = ?", code).
		Count(&n).Error
	return n > 0, err
}

// ListAccessLogs returns redemption records for the user's passes, newest
// first, capped at limit.
func ListAccessLogs(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.ShareAccessLog, error) {
	var out []domain.ShareAccessLog
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("viewed_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
