package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vidiosphere/backend/internal/auth"
	"github.com/vidiosphere/backend/internal/logging"
	"github.com/vidiosphere/backend/internal/relationship"
	"github.com/vidiosphere/backend/internal/repositories"
)

// envelope is the uniform response shape for every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "message", payload.Message)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "message", payload.Message)
	}
}

func respondSuccess(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	respondJSON(ctx, w, status, envelope{Success: true, Data: data, Message: message})
}

func respondFailure(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, envelope{Success: false, Message: message})
}

// respondError translates service errors into the envelope with the
// appropriate status. Unexpected errors become a generic 500; internals are
// logged, never sent to the client.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		respondFailure(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		respondFailure(ctx, w, http.StatusConflict, "handle or email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondFailure(ctx, w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrEmailNotVerified):
		respondFailure(ctx, w, http.StatusForbidden, "email not verified")
	case errors.Is(err, auth.ErrForbidden):
		respondFailure(ctx, w, http.StatusForbidden, "refresh token missing or no longer valid")
	case errors.Is(err, auth.ErrUnauthorized):
		respondFailure(ctx, w, http.StatusUnauthorized, "token invalid or expired")
	case errors.Is(err, auth.ErrInvalidOrExpired):
		respondFailure(ctx, w, http.StatusBadRequest, "token invalid or expired")
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		respondFailure(ctx, w, http.StatusTooManyRequests, "too many requests, please try again later")
	case errors.Is(err, auth.ErrUpstreamUnavailable):
		respondFailure(ctx, w, http.StatusBadGateway, "upstream service unavailable")
	case errors.Is(err, relationship.ErrTargetNotFound), errors.Is(err, repositories.ErrNotFound):
		respondFailure(ctx, w, http.StatusNotFound, "resource not found")
	case errors.Is(err, relationship.ErrInvalidOperation), errors.Is(err, relationship.ErrUnknownKind):
		respondFailure(ctx, w, http.StatusBadRequest, "invalid operation")
	case errors.Is(err, repositories.ErrConflict):
		respondFailure(ctx, w, http.StatusConflict, "resource already exists")
	default:
		logging.FromContext(ctx).Error("unexpected handler error", "error", err)
		respondFailure(ctx, w, http.StatusInternalServerError, "internal server error")
	}
}

// paging extracts pagination and sorting parameters with defaults.
func paging(r *http.Request) repositories.ListOptions {
	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 10
	}

	return repositories.ListOptions{
		Page:     page,
		Limit:    limit,
		SortBy:   q.Get("sortBy"),
		SortDesc: q.Get("sortType") != "asc",
		Query:    q.Get("query"),
		OwnerID:  q.Get("userId"),
	}
}

// pageInfo is the pagination echo attached to list responses.
type pageInfo struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int64 `json:"totalPages"`
	TotalItems  int64 `json:"totalItems"`
}

func newPageInfo(opts repositories.ListOptions, total int64) pageInfo {
	limit := int64(opts.Limit)
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return pageInfo{CurrentPage: opts.Page, TotalPages: pages, TotalItems: total}
}
