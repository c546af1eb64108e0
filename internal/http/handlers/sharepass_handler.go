// Share-pass HTTP handlers.
//
// This file exposes REST endpoints for the share-pass lifecycle:
//   - POST   /share-passes                           (issue a pass)
//   - GET    /share-passes                           (owner's issued passes)
//   - GET    /share-access-logs                      (owner's redemption log)
//   - GET    /share-passes/{code}                    (redeem, returns snapshot)
//   - GET    /share-passes/{code}/records/{recordId} (gated record fetch)
//
// Issuance and the history views require authentication. Redemption and the
// record fetch are deliberately unauthenticated: the code itself is the
// credential a clinician on another device presents.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-triage-backend/internal/domain"
	"github.com/tbourn/go-triage-backend/internal/http/middleware"
)

//
// DTOs
//

// IssueSharePassRequest is the JSON payload for issuing a share pass.
type IssueSharePassRequest struct {
	// MemberID optionally names a family member as the pass subject.
	MemberID *uint `json:"memberId,omitempty" example:"3"`
}

// SharePassResponse is the issuance result returned to the owner.
type SharePassResponse struct {
	Code      string    `json:"code"       example:"483921"`
	MemberID  *uint     `json:"member_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	// DoctorURL is the viewer-facing path a clinician opens to redeem the pass.
	DoctorURL string `json:"doctor_url" example:"/doctor-view/483921"`
	// Replayed is true when an Idempotency-Key matched a previous issuance
	// and the original pass was returned instead of a new one.
	Replayed bool `json:"replayed,omitempty"`
}

// SharePassHistoryResponse wraps a page of issued passes and pagination
// information.
type SharePassHistoryResponse struct {
	Items      []domain.SharePass `json:"items"`
	Pagination Pagination         `json:"pagination"`
}

// AccessLogsResponse wraps the owner's redemption records.
type AccessLogsResponse struct {
	Items []domain.ShareAccessLog `json:"items"`
}

//
// Handlers
//

// IssueSharePass godoc
// @ID          issueSharePass
// @Summary     Issue a share pass
// @Description Allocates a short-lived single-use numeric code granting one viewer a scoped read of the user's summary. Send an Idempotency-Key header to make retries replay-safe.
// @Tags        SharePasses
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  true   "Bearer token"
// @Param       Idempotency-Key  header  string  false  "Replay-safe retry key"
// @Param       body             body    handlers.IssueSharePassRequest  false  "Issue payload"
//
// @Success     201  {object}  handlers.SharePassResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Family member not found"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /share-passes [post]
func (h *Handlers) IssueSharePass(c *gin.Context) {
	uid, okID := mustUserID(c)
	if !okID {
		return
	}

	var req IssueSharePassRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	pass, replayed, err := h.shareSvc.Issue(c.Request.Context(), uid, req.MemberID, c.ClientIP(), idemKey)
	if err != nil {
		failService(c, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	ok(c, status, SharePassResponse{
		Code:      pass.Code,
		MemberID:  pass.MemberID,
		ExpiresAt: pass.ExpiresAt,
		DoctorURL: "/doctor-view/" + pass.Code,
		Replayed:  replayed,
	})
}

// RedeemSharePass godoc
// @ID          redeemSharePass
// @Summary     Redeem a share pass
// @Description Consumes a pass exactly once and returns the shared snapshot. The optional viewer query parameter labels the redemption in the owner's access log.
// @Tags        SharePasses
// @Produce     json
//
// @Param       code    path   string  true   "6-digit pass code"  example(483921)
// @Param       viewer  query  string  false  "Viewer label recorded in the access log"  example(Dr Smith)
//
// @Success     200  {object}  services.Snapshot
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown code"
// @Failure     410  {object}  handlers.ErrorResponse  "Expired or already used"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /share-passes/{code} [get]
func (h *Handlers) RedeemSharePass(c *gin.Context) {
	snap, err := h.shareSvc.Redeem(c.Request.Context(), c.Param("code"), c.Query("viewer"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}

// FetchSharedRecord godoc
// @ID          fetchSharedRecord
// @Summary     Fetch a shared record handle
// @Description Serves a record referenced by a redeemed snapshot. The pass must exist, be unexpired, and have at least one recorded redemption.
// @Tags        SharePasses
// @Produce     json
//
// @Param       code      path  string  true  "6-digit pass code"  example(483921)
// @Param       recordId  path  string  true  "Record ID (UUID)"   format(uuid)
//
// @Success     200  {object}  domain.MedicalRecord
// @Failure     403  {object}  handlers.ErrorResponse  "Pass never redeemed"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown code or record"
// @Failure     410  {object}  handlers.ErrorResponse  "Pass expired"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /share-passes/{code}/records/{recordId} [get]
func (h *Handlers) FetchSharedRecord(c *gin.Context) {
	rec, err := h.shareSvc.FetchRecord(c.Request.Context(), c.Param("code"), c.Param("recordId"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// SharePassHistory godoc
// @ID          sharePassHistory
// @Summary     List issued share passes (paginated)
// @Description Returns a page of the user's issued passes, newest first.
// @Tags        SharePasses
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.SharePassHistoryResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /share-passes [get]
func (h *Handlers) SharePassHistory(c *gin.Context) {
	uid, okID := mustUserID(c)
	if !okID {
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.shareSvc.History(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}

	ok(c, http.StatusOK, SharePassHistoryResponse{
		Items:      items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// ShareAccessLogs godoc
// @ID          shareAccessLogs
// @Summary     List share redemptions
// @Description Returns who viewed the user's shared summaries, newest first.
// @Tags        SharePasses
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
//
// @Success     200  {object}  handlers.AccessLogsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /share-access-logs [get]
func (h *Handlers) ShareAccessLogs(c *gin.Context) {
	uid, okID := mustUserID(c)
	if !okID {
		return
	}

	items, err := h.shareSvc.AccessLogs(c.Request.Context(), uid)
	if err != nil {
		failService(c, err)
		return
	}
	if items == nil {
		items = []domain.ShareAccessLog{}
	}
	ok(c, http.StatusOK, AccessLogsResponse{Items: items})
}
