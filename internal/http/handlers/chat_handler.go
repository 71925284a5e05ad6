// Chat HTTP handler.
//
//   - POST /chat   (one conversation turn)
//
// Idempotency: when the client sends an Idempotency-Key that already produced
// a reply for the same user, the stored reply is returned with
// `Idempotency-Replayed: true` and the AI collaborator is not called again.
package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Em-Vi/MediScan/internal/http/middleware"
)

// ChatRequest is the JSON payload for one chat turn. UserID is optional and,
// when present, must name the bearer.
type ChatRequest struct {
	UserID    string `json:"user_id,omitempty"    example:"0b6f2f7e-8f0e-4c8a-9a8b-2d4f0c9f1e11"`
	Message   string `json:"message"              binding:"required" example:"Can I take ibuprofen with lisinopril?"`
	SessionID string `json:"session_id,omitempty" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// ChatResponse carries the AI reply and the session it was stored in.
type ChatResponse struct {
	Reply     string `json:"reply"      example:"Combining NSAIDs such as ibuprofen with ACE inhibitors..."`
	SessionID string `json:"session_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes line endings, collapses blank-line runs and
// trims the message.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Chat godoc
// @ID          chat
// @Summary     Send a chat message
// @Description Answers the message with the AI assistant and stores both in the session.
// @Description Without session_id a new session is opened and titled from the reply.
// @Description If the assistant is unavailable a fixed apology is returned with 200.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.ChatRequest  true  "Chat turn"
//
// @Success     200  {object}  handlers.ChatResponse
// @Header      200  {string}  Idempotency-Replayed  "true when the reply was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     403  {object}  handlers.ErrorResponse  "Session or user belongs to someone else"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	ctx := c.Request.Context()
	uid, authed := principal(c)
	if !authed {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required")
		return
	}
	if req.UserID != "" && req.UserID != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "user_id does not match the authenticated user")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	if key != "" && h.replay != nil {
		prev, found, err := h.replay.Replay(ctx, uid, key)
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency replay lookup failed")
		}
		if found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, ChatResponse{Reply: prev.Content, SessionID: prev.SessionID})
			return
		}
	}

	res, err := h.conv.Converse(ctx, uid, sanitizeContent(req.Message), strings.TrimSpace(req.SessionID))
	if err != nil {
		failErr(c, err)
		return
	}

	if key != "" && h.replay != nil {
		if err := h.replay.Remember(ctx, uid, key, res.MessageID); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusOK, ChatResponse{Reply: res.Reply, SessionID: res.SessionID})
}
