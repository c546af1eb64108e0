// Package domain defines the persistence models for triage logs, share
// passes, access logs, and the patient profile data assembled into shared
// snapshots. These types are mapped with GORM and form the core data layer
// of the symptom-intake application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// TriageLog is one persisted triage request/outcome pair. Logs are
// append-only: the payload and result are stored as opaque JSON and never
// rewritten once the row exists.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owner of the intake; indexed for history queries.
//   - MemberID: optional family-member subject.
//   - Payload: originating intake as JSON.
//   - Result: classification as JSON (level, headline, source, ...).
type TriageLog struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_triage,priority:1"`
	MemberID  *uint          `json:"member_id,omitempty" gorm:"index"`
	Payload   string         `json:"payload"    gorm:"type:text;not null"`
	Result    string         `json:"result"     gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_user_triage,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for TriageLog.
func (TriageLog) TableName() string { return "triage_logs" }

// SharePass is a short-lived, single-use numeric credential granting one
// remote viewer a scoped read of a patient's summary.
//
// Invariants:
//   - Code is unique among stored passes (database unique index); issuance
//     retries with fresh codes on collision.
//   - Consumed transitions false -> true exactly once, via a conditional
//     update; concurrent redemptions cannot both win.
//   - Expiry is fixed at issuance time + 30 minutes and never extended.
type SharePass struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	MemberID  *uint          `json:"member_id,omitempty"`
	Code      string         `json:"code"       gorm:"type:varchar(6);not null;uniqueIndex:ux_share_pass_code"`
	Consumed  bool           `json:"consumed"   gorm:"not null;default:false"`
	ExpiresAt time.Time      `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for SharePass.
func (SharePass) TableName() string { return "share_passes" }

// ShareAccessLog records one successful redemption of a share pass. Rows are
// append-only and double as the open-then-fetch gate: a record handle is
// only served once at least one access log exists for the code.
type ShareAccessLog struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	PassCode    string         `json:"pass_code"    gorm:"type:varchar(6);not null;index"`
	UserID      string         `json:"user_id"      gorm:"type:varchar(64);not null;index"`
	MemberID    *uint          `json:"member_id,omitempty"`
	ViewerLabel string         `json:"viewer_label" gorm:"type:varchar(120)"`
	ViewedAt    time.Time      `json:"viewed_at"    gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for ShareAccessLog.
func (ShareAccessLog) TableName() string { return "share_access_logs" }

// Profile holds the owner's own health profile, shown in shared snapshots
// when the pass has no family-member subject.
type Profile struct {
	ID         string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID     string         `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex"`
	Name       string         `json:"name"       gorm:"type:varchar(120)"`
	Age        *int           `json:"age,omitempty"`
	Sex        string         `json:"sex"        gorm:"type:varchar(32)"`
	Region     string         `json:"region"     gorm:"type:varchar(120)"`
	Conditions string         `json:"conditions" gorm:"type:text"` // JSON array
	Allergies  string         `json:"allergies"  gorm:"type:text"` // JSON array
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// FamilyMember is a dependent managed by the owning user, selectable as the
// subject of an intake or share pass.
type FamilyMember struct {
	ID         uint           `json:"id"         gorm:"primaryKey;autoIncrement"`
	UserID     string         `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	Name       string         `json:"name"       gorm:"type:varchar(120);not null"`
	Relation   string         `json:"relation"   gorm:"type:varchar(64)"`
	Age        *int           `json:"age,omitempty"`
	Sex        string         `json:"sex"        gorm:"type:varchar(32)"`
	BloodType  string         `json:"blood_type" gorm:"type:varchar(8)"`
	Conditions string         `json:"conditions" gorm:"type:text"` // JSON array
	Allergies  string         `json:"allergies"  gorm:"type:text"` // JSON array
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for FamilyMember.
func (FamilyMember) TableName() string { return "family_members" }

// MedicalRecord is a reference to an uploaded document. File storage and
// retrieval live outside this core; the row carries only the metadata that
// shared snapshots and record handles expose.
type MedicalRecord struct {
	ID        string         `json:"id"        gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"   gorm:"type:varchar(64);not null;index"`
	MemberID  *uint          `json:"member_id,omitempty" gorm:"index"`
	FileName  string         `json:"file_name" gorm:"type:varchar(255);not null"`
	MimeType  string         `json:"mimetype"  gorm:"type:varchar(128)"`
	FilePath  string         `json:"-"         gorm:"type:varchar(512)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`
}

// TableName returns the database table name for MedicalRecord.
func (MedicalRecord) TableName() string { return "medical_records" }
