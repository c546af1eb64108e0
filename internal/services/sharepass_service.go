// Package services – SharePassService
//
// This file implements the SharePassService, which issues and redeems the
// short-lived numeric codes that let a patient show their summary to a
// clinician on another device. Issuance allocates a unique 6-digit code
// (retrying on collision), redemption is single-use under concurrency via the
// repository's conditional update, and record fetches are gated on a prior
// successful redemption of the same code.
package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-triage-backend/internal/domain"
	"github.com/tbourn/go-triage-backend/internal/ratelimit"
	"github.com/tbourn/go-triage-backend/internal/repo"
)

// issueAttempts bounds retries when a generated code collides.
const issueAttempts = 5

// maxViewerLabelLen caps the stored viewer label by rune length.
const maxViewerLabelLen = 120

// snapshotTriageLimit and snapshotRecordLimit bound the shared summary.
const (
	snapshotTriageLimit = 5
	snapshotRecordLimit = 10
)

// idemScopeSharePass namespaces idempotency keys for pass issuance.
const idemScopeSharePass = "share_pass"

var (
	passIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "share_pass_issued_total",
		Help: "Share passes issued (replays excluded).",
	})
	passRedeemedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "share_pass_redeemed_total",
		Help: "Share passes successfully redeemed.",
	})
)

func init() {
	prometheus.MustRegister(passIssuedTotal, passRedeemedTotal)
}

// SharePassRepo defines the repository contract required by SharePassService.
type SharePassRepo interface {
	CreateSharePass(ctx context.Context, db *gorm.DB, userID string, memberID *uint, code string, expiresAt time.Time) (*domain.SharePass, error)
	GetSharePass(ctx context.Context, db *gorm.DB, code string) (*domain.SharePass, error)
	ConsumeSharePass(ctx context.Context, db *gorm.DB, code string) (bool, error)
	CountSharePasses(ctx context.Context, db *gorm.DB, userID string) (int64, error)
	ListSharePassesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.SharePass, error)

	CreateAccessLog(ctx context.Context, db *gorm.DB, pass *domain.SharePass, viewerLabel string) (*domain.ShareAccessLog, error)
	HasAccessLog(ctx context.Context, db *gorm.DB, code string) (bool, error)
	ListAccessLogs(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.ShareAccessLog, error)

	GetProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error)
	GetFamilyMember(ctx context.Context, db *gorm.DB, userID string, memberID uint) (*domain.FamilyMember, error)
	ListRecentTriageLogs(ctx context.Context, db *gorm.DB, userID string, memberID *uint, limit int) ([]domain.TriageLog, error)
	ListMedicalRecords(ctx context.Context, db *gorm.DB, userID string, memberID *uint, limit int) ([]domain.MedicalRecord, error)
	GetMedicalRecord(ctx context.Context, db *gorm.DB, userID, recordID string) (*domain.MedicalRecord, error)

	GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, passCode string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// SnapshotSubject is the person the shared summary is about.
type SnapshotSubject struct {
	Name       string   `json:"name"`
	Relation   string   `json:"relation,omitempty"`
	Age        *int     `json:"age,omitempty"`
	Sex        string   `json:"sex,omitempty"`
	BloodType  string   `json:"blood_type,omitempty"`
	Conditions []string `json:"conditions"`
	Allergies  []string `json:"allergies"`
}

// TriageSummary is one line of recent triage history in a snapshot.
type TriageSummary struct {
	Level     string    `json:"level"`
	Headline  string    `json:"headline"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordHandle is a fetchable reference to an uploaded document. The file
// itself is served through the record endpoint, gated on redemption.
type RecordHandle struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mimetype"`
}

// Snapshot is the read-only summary a viewer receives on redemption.
type Snapshot struct {
	Subject SnapshotSubject `json:"subject"`
	Triage  []TriageSummary `json:"triage"`
	Records []RecordHandle  `json:"records"`
}

// SharePassService coordinates pass issuance, redemption, and the gated
// record fetch.
type SharePassService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the share-pass repository used by this service.
	Repo SharePassRepo
	// Limiter enforces the per-operation fixed window.
	Limiter *ratelimit.Limiter

	// TTL is the pass validity from issuance (fixed policy: 30 minutes).
	TTL time.Duration
	// MaxPerWindow and Window define the issuance rate limit per (user, IP).
	MaxPerWindow int
	Window       time.Duration
	// IdempotencyTTL is how long a replayed Idempotency-Key returns the
	// original pass.
	IdempotencyTTL time.Duration
}

// NewSharePassService constructs a SharePassService with the standard
// policy: 30-minute passes, 20 issuances per minute per (user, IP).
func NewSharePassService(db *gorm.DB, r SharePassRepo, limiter *ratelimit.Limiter) *SharePassService {
	return &SharePassService{
		DB:             db,
		Repo:           r,
		Limiter:        limiter,
		TTL:            30 * time.Minute,
		MaxPerWindow:   20,
		Window:         time.Minute,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// Issue allocates a new share pass for the user (or a family member when
// memberID is set). A non-blank idemKey makes the call replay-safe: the same
// key returns the originally issued pass instead of minting a new one.
//
// The boolean result reports whether the pass was replayed from a previous
// issuance.
func (s *SharePassService) Issue(ctx context.Context, userID string, memberID *uint, clientIP, idemKey string) (*domain.SharePass, bool, error) {
	if res := s.Limiter.Check("share:"+userID+":"+clientIP, s.MaxPerWindow, s.Window); !res.Allowed {
		return nil, false, &RateLimitedError{RetryAfter: res.RetryAfter}
	}

	if memberID != nil {
		if _, err := s.Repo.GetFamilyMember(ctx, s.DB, userID, *memberID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, ErrMemberNotFound
			}
			return nil, false, err
		}
	}

	now := time.Now().UTC()

	if key := strings.TrimSpace(idemKey); key != "" {
		if rec, err := s.Repo.GetIdempotency(ctx, s.DB, userID, idemScopeSharePass, key, now); err == nil {
			if p, err := s.Repo.GetSharePass(ctx, s.DB, rec.PassCode); err == nil {
				return p, true, nil
			}
		}
	}

	// Expired rows stay in place: a late redemption must still be told the
	// pass expired, and retention is an operator concern, not this service's.
	var pass *domain.SharePass
	for i := 0; i < issueAttempts; i++ {
		code, err := newPassCode()
		if err != nil {
			return nil, false, err
		}
		pass, err = s.Repo.CreateSharePass(ctx, s.DB, userID, memberID, code, now.Add(s.TTL))
		if err == nil {
			break
		}
		if errors.Is(err, repo.ErrDuplicateCode) {
			pass = nil
			continue
		}
		return nil, false, err
	}
	if pass == nil {
		return nil, false, ErrIssuanceExhausted
	}

	if key := strings.TrimSpace(idemKey); key != "" {
		if _, err := s.Repo.CreateIdempotency(ctx, s.DB, userID, idemScopeSharePass, key, pass.Code, 201, s.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			log.Warn().Err(err).Msg("idempotency record write failed")
		}
	}

	passIssuedTotal.Inc()
	return pass, false, nil
}

// Redeem consumes a pass exactly once and returns the shared snapshot.
// The consume happens before the access log is written, so of N concurrent
// redemptions exactly one reaches the snapshot; the rest get ErrPassConsumed.
func (s *SharePassService) Redeem(ctx context.Context, code, viewerLabel string) (*Snapshot, error) {
	p, err := s.Repo.GetSharePass(ctx, s.DB, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPassNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	if now.After(p.ExpiresAt) {
		return nil, ErrPassExpired
	}
	if p.Consumed {
		return nil, ErrPassConsumed
	}

	won, err := s.Repo.ConsumeSharePass(ctx, s.DB, p.Code)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrPassConsumed
	}
	passRedeemedTotal.Inc()

	// The viewer is already authorized at this point; a failed log write is
	// reported server-side but does not roll back the redemption.
	if _, err := s.Repo.CreateAccessLog(ctx, s.DB, p, tidyViewerLabel(viewerLabel)); err != nil {
		log.Warn().Err(err).Str("code", p.Code).Msg("share access log write failed")
	}

	return s.buildSnapshot(ctx, p)
}

// FetchRecord serves a record handle referenced by a snapshot. The pass must
// exist, be unexpired, and have at least one recorded redemption; the record
// must belong to the pass subject.
func (s *SharePassService) FetchRecord(ctx context.Context, code, recordID string) (*domain.MedicalRecord, error) {
	p, err := s.Repo.GetSharePass(ctx, s.DB, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPassNotFound
		}
		return nil, err
	}
	if time.Now().UTC().After(p.ExpiresAt) {
		return nil, ErrPassExpired
	}

	opened, err := s.Repo.HasAccessLog(ctx, s.DB, p.Code)
	if err != nil {
		return nil, err
	}
	if !opened {
		return nil, ErrAccessNotEstablished
	}

	rec, err := s.Repo.GetMedicalRecord(ctx, s.DB, p.UserID, recordID)
	if err != nil {
		return nil, err
	}
	// The record must be scoped to the same subject the pass was issued for.
	if !sameSubject(p.MemberID, rec.MemberID) {
		return nil, gorm.ErrRecordNotFound
	}
	return rec, nil
}

// History returns a page of the user's issued passes (paginated, newest first).
func (s *SharePassService) History(ctx context.Context, userID string, page, pageSize int) ([]domain.SharePass, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountSharePasses(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.SharePass{}, 0, nil
	}

	items, err := s.Repo.ListSharePassesPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// AccessLogs returns the user's redemption records, newest first.
func (s *SharePassService) AccessLogs(ctx context.Context, userID string) ([]domain.ShareAccessLog, error) {
	return s.Repo.ListAccessLogs(ctx, s.DB, userID, 100)
}

// buildSnapshot assembles the subject, recent triage lines, and record
// handles for a redeemed pass.
func (s *SharePassService) buildSnapshot(ctx context.Context, p *domain.SharePass) (*Snapshot, error) {
	snap := &Snapshot{
		Triage:  []TriageSummary{},
		Records: []RecordHandle{},
	}

	if p.MemberID != nil {
		m, err := s.Repo.GetFamilyMember(ctx, s.DB, p.UserID, *p.MemberID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if m != nil {
			snap.Subject = SnapshotSubject{
				Name:       m.Name,
				Relation:   m.Relation,
				Age:        m.Age,
				Sex:        m.Sex,
				BloodType:  m.BloodType,
				Conditions: decodeStringList(m.Conditions),
				Allergies:  decodeStringList(m.Allergies),
			}
		}
	} else {
		prof, err := s.Repo.GetProfile(ctx, s.DB, p.UserID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if prof != nil {
			snap.Subject = SnapshotSubject{
				Name:       prof.Name,
				Age:        prof.Age,
				Sex:        prof.Sex,
				Conditions: decodeStringList(prof.Conditions),
				Allergies:  decodeStringList(prof.Allergies),
			}
		}
	}
	if snap.Subject.Conditions == nil {
		snap.Subject.Conditions = []string{}
	}
	if snap.Subject.Allergies == nil {
		snap.Subject.Allergies = []string{}
	}

	logs, err := s.Repo.ListRecentTriageLogs(ctx, s.DB, p.UserID, p.MemberID, snapshotTriageLimit)
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		var cls struct {
			Level    string `json:"level"`
			Headline string `json:"headline"`
		}
		_ = json.Unmarshal([]byte(l.Result), &cls)
		snap.Triage = append(snap.Triage, TriageSummary{
			Level:     cls.Level,
			Headline:  cls.Headline,
			CreatedAt: l.CreatedAt,
		})
	}

	recs, err := s.Repo.ListMedicalRecords(ctx, s.DB, p.UserID, p.MemberID, snapshotRecordLimit)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		snap.Records = append(snap.Records, RecordHandle{
			ID:       r.ID,
			FileName: r.FileName,
			MimeType: r.MimeType,
		})
	}

	return snap, nil
}

// newPassCode draws a uniform 6-digit code in [100000, 999999].
func newPassCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// sameSubject reports whether two optional member references point at the
// same subject (both nil, or both the same member).
func sameSubject(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// decodeStringList parses a JSON array column, returning nil on bad data.
func decodeStringList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// viewerLabelTitle renders stored viewer labels in a consistent title case.
var viewerLabelTitle = cases.Title(language.Und, cases.NoLower)

// tidyViewerLabel trims, collapses whitespace, clips, and title-cases the
// free-text label a viewer identifies themselves with.
func tidyViewerLabel(s string) string {
	s = viewerWhitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	if utf8.RuneCountInString(s) > maxViewerLabelLen {
		s = string([]rune(s)[:maxViewerLabelLen])
	}
	return viewerLabelTitle.String(s)
}

// viewerWhitespaceRE collapses consecutive whitespace to a single space.
var viewerWhitespaceRE = regexp.MustCompile(`\s+`)
