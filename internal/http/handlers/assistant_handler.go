// Assistant HTTP handler.
//
// This file exposes the conversational endpoint:
//   - POST /assistant  (one question, optional prior turns)
//
// Authentication is optional here: anonymous callers are rate limited by
// client IP instead of user id.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-triage-backend/internal/advisory"
)

// AssistantRequest is the JSON payload for one assistant exchange.
type AssistantRequest struct {
	// Message is the user's question (1–1000 runes after trimming).
	Message string `json:"message" binding:"required" example:"How do I treat a mild fever at home?"`
	// History optionally carries prior turns for conversational context.
	History []advisory.Turn `json:"history,omitempty"`
}

// AssistantResponse is the reply envelope.
type AssistantResponse struct {
	Reply string `json:"reply"`
	// Source names the provider that produced the reply, or "fallback".
	Source string `json:"source" example:"fallback"`
}

// Assist godoc
// @ID          assist
// @Summary     Ask the health assistant
// @Description Answers one free-form health question. Falls back to canned safety replies when no provider is configured or the provider fails.
// @Tags        Assistant
// @Accept      json
// @Produce     json
//
// @Param       Authorization  header  string  false  "Bearer token (optional)"
// @Param       body           body    handlers.AssistantRequest  true  "Message payload"
//
// @Success     200  {object}  handlers.AssistantResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized message"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /assistant [post]
func (h *Handlers) Assist(c *gin.Context) {
	var req AssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Anonymous callers are keyed by client IP.
	actor := userID(c)
	if actor == "" {
		actor = c.ClientIP()
	}

	reply, source, err := h.assistSvc.Reply(c.Request.Context(), actor, req.Message, req.History)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, AssistantResponse{Reply: reply, Source: source})
}
