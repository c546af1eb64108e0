// Triage HTTP handlers.
//
// This file exposes REST endpoints for the triage flow:
//   - POST   /triage           (run one symptom intake)
//   - GET    /triage/history   (list past runs, paginated, ETag support)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-triage-backend/internal/advisory"
	"github.com/tbourn/go-triage-backend/internal/domain"
	"github.com/tbourn/go-triage-backend/internal/services"
	"github.com/tbourn/go-triage-backend/internal/triage"
	"github.com/tbourn/go-triage-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// TriageService defines triage operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TriageService interface {
	// Run executes one intake through the pipeline and records it.
	Run(ctx context.Context, userID, clientIP string, in triage.Intake) (triage.Classification, error)
	// History returns a page of the user's past runs and the total count.
	History(ctx context.Context, userID string, page, pageSize int) ([]domain.TriageLog, int64, error)
	// Stats returns count and latest update time for ETag generation.
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// SharePassService defines share-pass lifecycle operations consumed by HTTP
// handlers.
type SharePassService interface {
	// Issue allocates a pass; a non-blank idemKey makes the call replay-safe.
	Issue(ctx context.Context, userID string, memberID *uint, clientIP, idemKey string) (*domain.SharePass, bool, error)
	// Redeem consumes a pass exactly once and returns the shared snapshot.
	Redeem(ctx context.Context, code, viewerLabel string) (*services.Snapshot, error)
	// FetchRecord serves a record handle referenced by a redeemed pass.
	FetchRecord(ctx context.Context, code, recordID string) (*domain.MedicalRecord, error)
	// History returns a page of the user's issued passes and the total count.
	History(ctx context.Context, userID string, page, pageSize int) ([]domain.SharePass, int64, error)
	// AccessLogs returns the user's redemption records, newest first.
	AccessLogs(ctx context.Context, userID string) ([]domain.ShareAccessLog, error)
}

// AssistantService defines the conversational endpoint's contract.
type AssistantService interface {
	// Reply answers one message, naming the source that produced the reply.
	Reply(ctx context.Context, actor, message string, history []advisory.Turn) (reply, source string, err error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for triage, share passes, and the assistant.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	triageSvc TriageService
	shareSvc  SharePassService
	assistSvc AssistantService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(triageSvc TriageService, shareSvc SharePassService, assistSvc AssistantService) *Handlers {
	return &Handlers{triageSvc: triageSvc, shareSvc: shareSvc, assistSvc: assistSvc}
}

// userID extracts the authenticated user id from Gin context (set by the auth
// middleware). If absent, it falls back to the "X-User-ID" header (tests use
// it), and finally to "". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return ""
}

// mustUserID is userID plus the 401 response when no identity is present.
// The second result reports whether the request may proceed.
func mustUserID(c *gin.Context) (string, bool) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return "", false
	}
	return uid, true
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// TriageHistoryResponse wraps a page of triage logs and pagination information.
type TriageHistoryResponse struct {
	Items      []domain.TriageLog `json:"items"`
	Pagination Pagination         `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// newPagination computes the derived pagination fields for a list response.
func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// RunTriage godoc
// @ID          runTriage
// @Summary     Run a symptom triage
// @Description Classifies a symptom intake and records the outcome for the current user.
// @Tags        Triage
// @Accept      json
// @Produce     json
//
// @Param       Authorization  header  string         true  "Bearer token"
// @Param       body           body    triage.Intake  true  "Symptom intake"
//
// @Success     200  {object}  triage.Classification
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid intake"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Family member not found"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /triage [post]
func (h *Handlers) RunTriage(c *gin.Context) {
	uid, okID := mustUserID(c)
	if !okID {
		return
	}

	var in triage.Intake
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	cls, err := h.triageSvc.Run(c.Request.Context(), uid, c.ClientIP(), in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, cls)
}

// TriageHistory godoc
// @ID          triageHistory
// @Summary     List past triage runs (paginated)
// @Description Returns a page of the user's triage logs, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Triage
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.TriageHistoryResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /triage/history [get]
func (h *Handlers) TriageHistory(c *gin.Context) {
	uid, okID := mustUserID(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.triageSvc.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"triage:%s:%d:%d"`, uid, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.triageSvc.History(ctx, uid, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}

	ok(c, http.StatusOK, TriageHistoryResponse{
		Items:      items,
		Pagination: newPagination(page, pageSize, total),
	})
}
