// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the reads that assemble a shared
// snapshot: the pass subject (profile or family member) and their attached
// medical records.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-triage-backend/internal/domain"
)

// GetProfile fetches the user's own health profile, or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error) {
	var p domain.Profile
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetFamilyMember fetches a dependent by ID, enforcing ownership by userID.
// Returns ErrNotFound if the member does not exist or belongs to another user.
func GetFamilyMember(ctx context.Context, db *gorm.DB, userID string, memberID uint) (*domain.FamilyMember, error) {
	var m domain.FamilyMember
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", memberID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMedicalRecords returns the snapshot subject's records, newest first,
// capped at limit. When memberID is nil only the user's own records
// (member_id IS NULL) are returned.
func ListMedicalRecords(ctx context.Context, db *gorm.DB, userID string, memberID *uint, limit int) ([]domain.MedicalRecord, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if memberID != nil {
		q = q.Where("member_id = ?", *memberID)
	} else {
		q = q.Where("member_id IS NULL")
	}
	var out []domain.MedicalRecord
	err := q.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// GetMedicalRecord fetches one record by ID, enforcing ownership by userID.
func GetMedicalRecord(ctx context.Context, db *gorm.DB, userID, recordID string) (*domain.MedicalRecord, error) {
	var r domain.MedicalRecord
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", recordID, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}
