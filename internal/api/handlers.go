package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"sheetdash/internal/auth"
	"sheetdash/internal/dataset"
	"sheetdash/internal/metrics"
	"sheetdash/internal/query"
	"sheetdash/internal/record"
	"sheetdash/internal/service"
	"sheetdash/internal/storage"
)

// QueryService is the part of service.Service the handlers use.
type QueryService interface {
	ProcessQuery(ctx context.Context, text, user string) (query.Result, error)
	Dataset(ctx context.Context) ([]record.MetricRow, error)
	Refresh(ctx context.Context) (dataset.State, error)
	Health() service.Health
	RecentQueries(ctx context.Context, limit int) ([]storage.QueryLogEntry, error)
}

// Authenticator issues and verifies bearer tokens.
type Authenticator interface {
	Login(email, password string) (string, *auth.Claims, error)
	Verify(header string) (*auth.Claims, error)
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query string `json:"query" validate:"required,max=500"`
}

// QueryResponse wraps the structured answer.
type QueryResponse struct {
	Results query.Result `json:"results"`
}

// DataResponse wraps the dataset.
type DataResponse struct {
	Data []record.MetricRow `json:"data"`
}

// RefreshResponse reports the cache after a forced refresh.
type RefreshResponse struct {
	CacheState dataset.State `json:"cacheState"`
}

// QueriesResponse lists recent query log entries.
type QueriesResponse struct {
	Queries []storage.QueryLogEntry `json:"queries"`
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Handler serves the HTTP API.
type Handler struct {
	svc  QueryService
	auth Authenticator
}

// NewHandler constructs a Handler.
func NewHandler(svc QueryService, authn Authenticator) *Handler {
	return &Handler{svc: svc, auth: authn}
}

// Login exchanges credentials for a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, claims, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			metrics.LoginAttempts.WithLabelValues("invalid").Inc()
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("token issuance failed")
		writeError(w, r, http.StatusInternalServerError, "could not issue token")
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	resp := LoginResponse{Token: token, Email: claims.Username, Role: claims.Role}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// Query answers a free-text analytics question.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user := ""
	if claims := claimsFrom(r.Context()); claims != nil {
		user = claims.Username
	}

	result, err := h.svc.ProcessQuery(r.Context(), req.Query, user)
	if err != nil {
		if errors.Is(err, service.ErrEmptyQuery) {
			writeError(w, r, http.StatusBadRequest, "query is required")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("query processing failed")
		writeError(w, r, http.StatusInternalServerError, "query processing failed")
		return
	}
	writeJSON(w, r, http.StatusOK, QueryResponse{Results: result})
}

// Data returns the cached dataset.
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Dataset(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("dataset unavailable")
		writeError(w, r, http.StatusInternalServerError, "failed to load data from the spreadsheet")
		return
	}
	if rows == nil {
		rows = []record.MetricRow{}
	}
	writeJSON(w, r, http.StatusOK, DataResponse{Data: rows})
}

// RefreshData forces a sheet refetch. Admin only.
func (h *Handler) RefreshData(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Refresh(r.Context())
	if err != nil {
		var fetchErr *dataset.DataFetchError
		if errors.As(err, &fetchErr) {
			hlog.FromRequest(r).Error().Err(err).Msg("forced refresh failed")
			writeError(w, r, http.StatusInternalServerError, "failed to load data from the spreadsheet")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, r, http.StatusOK, RefreshResponse{CacheState: state})
}

// Queries lists recent query log entries.
func (h *Handler) Queries(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxHistoryLimit {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxHistoryLimit))
			return
		}
		limit = parsed
	}

	entries, err := h.svc.RecentQueries(r.Context(), limit)
	if err != nil {
		if errors.Is(err, service.ErrHistoryDisabled) {
			writeError(w, r, http.StatusNotFound, "query history is not enabled")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("list query history failed")
		writeError(w, r, http.StatusInternalServerError, "failed to list query history")
		return
	}
	if entries == nil {
		entries = []storage.QueryLogEntry{}
	}
	writeJSON(w, r, http.StatusOK, QueriesResponse{Queries: entries})
}

// Health reports liveness and cache state without authentication.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.svc.Health())
}
