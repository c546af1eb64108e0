// Package services – TriageService
//
// This file implements the TriageService, which runs a symptom intake through
// the advisory orchestrator and persists the outcome. It validates the intake
// in full (collecting every violation), enforces the per-user fixed-window
// rate limit, resolves the classification (provider-first with deterministic
// fallback), and appends an immutable triage log row.
//
// Service-level errors (e.g., ErrMemberNotFound, *RateLimitedError) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-triage-backend/internal/advisory"
	"github.com/tbourn/go-triage-backend/internal/domain"
	"github.com/tbourn/go-triage-backend/internal/ratelimit"
	"github.com/tbourn/go-triage-backend/internal/triage"
)

// triageCompletedTotal counts completed triage runs by resulting level.
var triageCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triage_completed_total",
		Help: "Completed triage classifications by level.",
	},
	[]string{"level"},
)

func init() {
	prometheus.MustRegister(triageCompletedTotal)
}

// TriageRepo defines the repository contract required by TriageService.
type TriageRepo interface {
	// CreateTriageLog appends one request/outcome pair for the user.
	CreateTriageLog(ctx context.Context, db *gorm.DB, userID string, memberID *uint, payload, result string) (*domain.TriageLog, error)

	// CountTriageLogs returns the total number of logs for pagination.
	CountTriageLogs(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListTriageLogsPage returns a page of the user's logs, newest first.
	ListTriageLogsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.TriageLog, error)

	// GetFamilyMember fetches a dependent, enforcing ownership.
	GetFamilyMember(ctx context.Context, db *gorm.DB, userID string, memberID uint) (*domain.FamilyMember, error)

	// TriageStats returns count and latest update time for ETag generation.
	TriageStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error)
}

// TriageService coordinates intake validation, rate limiting, classification,
// and persistence of the triage log.
type TriageService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the triage repository used by this service.
	Repo TriageRepo
	// Advisor resolves classifications (provider-first, engine fallback).
	Advisor *advisory.Orchestrator
	// Limiter enforces the per-operation fixed window.
	Limiter *ratelimit.Limiter

	// MaxPerWindow and Window define the triage rate limit per (user, IP).
	MaxPerWindow int
	Window       time.Duration
}

// NewTriageService constructs a TriageService with the standard limit of
// 40 requests per minute per (user, IP).
func NewTriageService(db *gorm.DB, r TriageRepo, advisor *advisory.Orchestrator, limiter *ratelimit.Limiter) *TriageService {
	return &TriageService{
		DB:           db,
		Repo:         r,
		Advisor:      advisor,
		Limiter:      limiter,
		MaxPerWindow: 40,
		Window:       time.Minute,
	}
}

// Run executes one triage: rate limit, validate, resolve, persist.
//
// The classification is computed before the log row is written; if the write
// fails the result is still returned and the loss is logged server-side, so a
// storage hiccup never hides an emergency verdict from the caller.
func (s *TriageService) Run(ctx context.Context, userID, clientIP string, in triage.Intake) (triage.Classification, error) {
	if res := s.Limiter.Check("triage:"+userID+":"+clientIP, s.MaxPerWindow, s.Window); !res.Allowed {
		return triage.Classification{}, &RateLimitedError{RetryAfter: res.RetryAfter}
	}

	if violations := in.Validate(); len(violations) > 0 {
		return triage.Classification{}, &ValidationError{Fields: violations}
	}

	if in.MemberID != nil {
		if _, err := s.Repo.GetFamilyMember(ctx, s.DB, userID, *in.MemberID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return triage.Classification{}, ErrMemberNotFound
			}
			return triage.Classification{}, err
		}
	}

	cls := s.Advisor.Resolve(ctx, in)
	triageCompletedTotal.WithLabelValues(cls.Level).Inc()

	payload, _ := json.Marshal(in)
	result, _ := json.Marshal(cls)
	if _, err := s.Repo.CreateTriageLog(ctx, s.DB, userID, in.MemberID, string(payload), string(result)); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("triage log write failed; returning classification anyway")
	}

	return cls, nil
}

// History returns a page of the user's triage logs (paginated, newest first).
// It applies defaults for invalid page/pageSize and returns total count.
func (s *TriageService) History(ctx context.Context, userID string, page, pageSize int) ([]domain.TriageLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountTriageLogs(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.TriageLog{}, 0, nil
	}

	items, err := s.Repo.ListTriageLogsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Stats exposes the aggregate used for conditional GETs on history.
func (s *TriageService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return s.Repo.TriageStats(ctx, s.DB, userID)
}
