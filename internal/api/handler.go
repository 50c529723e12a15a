// Package api provides the HTTP handlers and router for the rewrite service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rowmeta/rowmeta/internal/middleware"
	"github.com/rowmeta/rowmeta/internal/provision"
	"github.com/rowmeta/rowmeta/internal/rewrite"
)

// Rewriter rewrites SQL so every result row carries the meta-columns.
type Rewriter interface {
	Rewrite(ctx context.Context, sql string) (*rewrite.Result, error)
}

// Provisioner ensures schema objects for every base table a statement
// references.
type Provisioner interface {
	EnsureForSQL(ctx context.Context, sql string) (*provision.Result, error)
}

// HandlerDeps holds the handler's dependencies. Provisioner may be nil when
// the service runs without a database; /v1/provision then answers 503.
type HandlerDeps struct {
	Rewriter    Rewriter
	Provisioner Provisioner
	Logger      *slog.Logger
}

// Handler serves the rewrite API.
type Handler struct {
	rewriter Rewriter
	prov     Provisioner
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		rewriter: deps.Rewriter,
		prov:     deps.Provisioner,
		logger:   logger,
	}
}

// SQLRequest is the request body shared by the rewrite and provision
// endpoints.
type SQLRequest struct {
	SQL string `json:"sql"`
}

func (h *Handler) handleRewrite(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSQLRequest(w, r)
	if !ok {
		return
	}

	result, err := h.rewriter.Rewrite(r.Context(), req.SQL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	if h.prov == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{
			Code:    http.StatusServiceUnavailable,
			Message: "schema provisioning is disabled: no database configured",
		})
		return
	}

	req, ok := decodeSQLRequest(w, r)
	if !ok {
		return
	}

	result, err := h.prov.EnsureForSQL(r.Context(), req.SQL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"provisioning": h.prov != nil,
	})
}

// decodeSQLRequest decodes the request body, writing a 400 envelope on
// malformed JSON.
func decodeSQLRequest(w http.ResponseWriter, r *http.Request) (SQLRequest, bool) {
	var req SQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{
			Code:    http.StatusBadRequest,
			Message: "invalid request body: " + err.Error(),
		})
		return SQLRequest{}, false
	}
	return req, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody(err)
	if body.Code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"error", err)
	}
	writeJSON(w, body.Code, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
