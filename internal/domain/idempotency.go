// Idempotency records let unsafe POST endpoints (share-pass issuance) be
// retried without re-executing side effects: a replayed key returns the
// originally issued pass code.
package domain

import "time"

// Idempotency is a recorded result of a previously processed request, keyed
// by (user_id, scope, key). Scope names the operation (e.g. "share_pass")
// so one key namespace cannot replay another operation's result.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:3"`
	PassCode  string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
