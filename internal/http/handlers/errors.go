// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror HTTP status semantics. Every error response carries both an
// HTTP status and one of these codes:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "forbidden",
//	  "message": "access to this resource is forbidden"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Em-Vi/MediScan/internal/http/middleware"
	"github.com/Em-Vi/MediScan/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = middleware.CodeRateLimited
	ErrCodeInternal         = middleware.CodeInternal
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
)

type kindMapping struct {
	status int
	code   string
}

var kindTable = map[services.Kind]kindMapping{
	services.KindInvalidArgument: {http.StatusBadRequest, ErrCodeBadRequest},
	services.KindUnauthorized:    {http.StatusUnauthorized, ErrCodeUnauthorized},
	services.KindForbidden:       {http.StatusForbidden, ErrCodeForbidden},
	services.KindNotFound:        {http.StatusNotFound, ErrCodeNotFound},
	services.KindConflict:        {http.StatusConflict, ErrCodeConflict},
}

// failErr answers with the status and code registered for err's kind.
// Unclassified errors become a generic 500; their detail is only logged.
func failErr(c *gin.Context, err error) {
	if m, ok := kindTable[services.KindOf(err)]; ok {
		fail(c, m.status, m.code, err.Error())
		return
	}
	middleware.LoggerFrom(c).Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
