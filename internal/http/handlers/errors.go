// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the symbolic error code constants mapped to HTTP
// responses (via the `fail()` helper) and the translation from service-layer
// errors to (status, code, message) triples. The codes give clients a stable,
// machine-readable taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless noted.
//   - Generic codes (bad_request, unauthorized, not_found, ...) mirror common
//     HTTP status semantics to aid interoperability.
//   - Domain-specific codes (pass_expired, pass_used, access_not_established,
//     ...) distinguish share-pass outcomes that share an HTTP status.
package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-triage-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeMemberNotFound     = "member_not_found"
	ErrCodePassExpired        = "pass_expired"
	ErrCodePassUsed           = "pass_used"
	ErrCodeAccessNotOpened    = "access_not_established"
	ErrCodeCodeSpaceExhausted = "code_space_exhausted"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
)

// failService translates a service-layer error into the matching HTTP
// response. Rate-limited errors carry a Retry-After header rounded up to
// whole seconds; unknown errors become an opaque 500.
func failService(c *gin.Context, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, strings.Join(ve.Fields, "; "))
		return
	}

	var rle *services.RateLimitedError
	if errors.As(err, &rle) {
		secs := int(math.Ceil(rle.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "too many requests, slow down")
		return
	}

	switch {
	case errors.Is(err, services.ErrMemberNotFound):
		fail(c, http.StatusNotFound, ErrCodeMemberNotFound, "family member not found")
	case errors.Is(err, services.ErrPassNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "share pass not found")
	case errors.Is(err, services.ErrPassExpired):
		fail(c, http.StatusGone, ErrCodePassExpired, "share pass expired")
	case errors.Is(err, services.ErrPassConsumed):
		fail(c, http.StatusGone, ErrCodePassUsed, "share pass already used")
	case errors.Is(err, services.ErrAccessNotEstablished):
		fail(c, http.StatusForbidden, ErrCodeAccessNotOpened, "pass must be redeemed before records can be fetched")
	case errors.Is(err, services.ErrIssuanceExhausted):
		fail(c, http.StatusInternalServerError, ErrCodeCodeSpaceExhausted, "could not allocate a pass code, try again")
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is empty")
	case errors.Is(err, services.ErrMessageTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
	case errors.Is(err, gorm.ErrRecordNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
