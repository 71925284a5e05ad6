// History HTTP handlers.
//
//   - GET /history/{user_id}                         (session summaries, weak ETag)
//   - GET /history/{user_id}/{session_id}            (ordered messages, weak ETag)
//   - PUT /history/{user_id}/{session_id}/title      (rename)
//   - GET /search/{user_id}?q=&k=                    (keyword search)
//
// The user_id path segment must name the bearer.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Em-Vi/MediScan/internal/domain"
	"github.com/Em-Vi/MediScan/internal/http/middleware"
	"github.com/Em-Vi/MediScan/internal/search"
	"github.com/Em-Vi/MediScan/internal/services"
	"github.com/Em-Vi/MediScan/internal/utils"
)

// HistoryResponse lists a user's sessions, most recently active first.
type HistoryResponse struct {
	Sessions []domain.SessionSummary `json:"sessions"`
}

// SessionMessagesResponse lists one session's messages in order.
type SessionMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

// RenameSessionRequest is the JSON payload for renaming a session. A blank
// title resets it to the default.
type RenameSessionRequest struct {
	Title string `json:"title" example:"Ibuprofen and blood pressure"`
}

// SearchResponse lists ranked matches among the user's messages.
type SearchResponse struct {
	Results []search.Result `json:"results"`
}

// ownPath answers 403 unless the user_id path segment is the bearer.
func ownPath(c *gin.Context) (string, bool) {
	uid, authed := principal(c)
	if !authed {
		return "", false
	}
	if c.Param("user_id") != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, services.ErrForbidden.Error())
		return "", false
	}
	return uid, true
}

// notModified sets a weak ETag for version and reports whether the client
// already holds it. Version errors only disable caching.
func notModified(c *gin.Context, version string, err error) bool {
	if err != nil {
		middleware.LoggerFrom(c).Debug().Err(err).Msg("etag unavailable")
		return false
	}
	etag := `W/"` + version + `"`
	c.Header("ETag", etag)
	c.Header("Cache-Control", "private, no-cache")
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// GetHistory godoc
// @ID          getHistory
// @Summary     List conversation sessions
// @Description Returns the user's sessions with their last message. Supports weak ETag via If-None-Match.
// @Tags        History
// @Produce     json
// @Security    BearerAuth
//
// @Param       user_id        path    string  true  "User ID (must be the bearer)"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.HistoryResponse
// @Header      200  {string}  ETag  "Weak ETag for the current history"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     403  {object}  handlers.ErrorResponse  "Another user's history"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history/{user_id} [get]
func (h *Handlers) GetHistory(c *gin.Context) {
	uid, allowed := ownPath(c)
	if !allowed {
		return
	}
	ctx := c.Request.Context()

	v, verr := h.history.HistoryVersion(ctx, uid, uid)
	if notModified(c, v, verr) {
		return
	}

	sessions, err := h.history.GetUserHistory(ctx, uid, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, HistoryResponse{Sessions: sessions})
}

// GetSessionMessages godoc
// @ID          getSessionMessages
// @Summary     List the messages of a session
// @Tags        History
// @Produce     json
// @Security    BearerAuth
//
// @Param       user_id     path  string  true  "User ID (must be the bearer)"
// @Param       session_id  path  string  true  "Session ID"
//
// @Success     200  {object}  handlers.SessionMessagesResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse  "Another user's session"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /history/{user_id}/{session_id} [get]
func (h *Handlers) GetSessionMessages(c *gin.Context) {
	uid, allowed := ownPath(c)
	if !allowed {
		return
	}
	ctx := c.Request.Context()
	sid := c.Param("session_id")

	msgs, err := h.history.GetSessionMessages(ctx, uid, sid)
	if err != nil {
		failErr(c, err)
		return
	}
	v, verr := h.history.SessionVersion(ctx, uid, sid)
	if notModified(c, v, verr) {
		return
	}
	ok(c, http.StatusOK, SessionMessagesResponse{Messages: msgs})
}

// RenameSession godoc
// @ID          renameSession
// @Summary     Rename a session
// @Tags        History
// @Accept      json
// @Security    BearerAuth
//
// @Param       user_id     path  string  true  "User ID (must be the bearer)"
// @Param       session_id  path  string  true  "Session ID"
// @Param       body        body  handlers.RenameSessionRequest  true  "New title"
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Another user's session"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /history/{user_id}/{session_id}/title [put]
func (h *Handlers) RenameSession(c *gin.Context) {
	uid, allowed := ownPath(c)
	if !allowed {
		return
	}
	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.history.RenameSession(c.Request.Context(), uid, c.Param("session_id"), req.Title); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Search godoc
// @ID          searchHistory
// @Summary     Search the user's messages
// @Description Ranks the user's own messages by word overlap with q.
// @Tags        History
// @Produce     json
// @Security    BearerAuth
//
// @Param       user_id  path   string  true  "User ID (must be the bearer)"
// @Param       q        query  string  true  "Search terms"
// @Param       k        query  int     false "Maximum results"  minimum(1) maximum(50) default(5)
//
// @Success     200  {object}  handlers.SearchResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty query"
// @Failure     403  {object}  handlers.ErrorResponse  "Another user's history"
// @Router      /search/{user_id} [get]
func (h *Handlers) Search(c *gin.Context) {
	uid, allowed := ownPath(c)
	if !allowed {
		return
	}
	k := utils.AtoiDefault(c.Query("k"), 0)
	results, err := h.history.Search(c.Request.Context(), uid, uid, strings.TrimSpace(c.Query("q")), k)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SearchResponse{Results: results})
}
