// Package handlers implements the HTTP handlers for the API surface:
// molecule upload, prediction queue operations, the submission lifecycle,
// and result reconciliation.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/middleware"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// requestUserID returns the acting user from the request context.
func requestUserID(r *http.Request) common.UserID {
	return middleware.ContextGetUserID(r.Context())
}

// requestRole returns the acting role from the request context.
func requestRole(r *http.Request) common.ActorRole {
	return middleware.ContextGetActorRole(r.Context())
}

// parsePagination reads page and page_size query parameters with bounds.
func parsePagination(r *http.Request) common.Pagination {
	page := 1
	pageSize := 20

	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}
	return common.Pagination{Page: page, PageSize: pageSize}
}

// decodeJSON parses the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.InvalidParam("request body is not valid JSON: " + err.Error())
	}
	return nil
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeAppError maps an application error to its HTTP status.  Server-side
// codes are masked so internals never leak to clients.
func writeAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := apperrors.HTTPStatusForCode(code)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{
		Code:    string(code),
		Message: message,
	})
}
