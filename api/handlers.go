/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the payroll service.

ENDPOINTS:
  GET    /payroll?startDate&endDate&locationId   Sync the run, return it
  GET    /payroll/runs?status                    List runs, newest first
  GET    /payroll/runs/{runID}                   Read a run without syncing
  GET    /payroll/runs/{runID}/export            XLSX workbook
  PATCH  /payroll/runs/{runID}                   {month_units?, marked_by_name?}
  POST   /payroll/runs/{runID}/finalize          Lock the run
  PATCH  /payroll/items/{itemID}                 {allowances?, is_paid?, paid_by?}

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing tenant header
  - 404: Run or item not found
  - 409: Run is finalized
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/calendar"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Payroll *payroll.Service
	DB      Pinger
	Log     *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *payroll.Service, db Pinger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Payroll: svc, DB: db, Log: log}
}

// Health reports whether the store is reachable.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// SyncRun recomputes the run for the requested scope and period.
// GET /payroll?startDate=YYYY-MM-DD&endDate=YYYY-MM-DD&locationId=...
func (h *Handler) SyncRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := strings.TrimSpace(q.Get("startDate")), strings.TrimSpace(q.Get("endDate"))
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "startDate and endDate are required", nil)
		return
	}
	period, err := calendar.ParseRange(start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	res, err := h.Payroll.Sync(r.Context(), TenantFrom(r.Context()), q.Get("locationId"), period)
	if err != nil {
		h.fail(w, r, "Failed to sync payroll", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(res))
}

// ListRuns returns the tenant's runs.
// GET /payroll/runs?status=draft|finalized
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	status := payroll.RunStatus(r.URL.Query().Get("status"))
	runs, err := h.Payroll.ListRuns(r.Context(), TenantFrom(r.Context()), status)
	if err != nil {
		h.fail(w, r, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns a stored run and its items.
// GET /payroll/runs/{runID}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.Payroll.GetRun(r.Context(), TenantFrom(r.Context()), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(res))
}

// ExportRun streams the run as an xlsx workbook.
// GET /payroll/runs/{runID}/export
func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.Payroll.GetRun(r.Context(), TenantFrom(r.Context()), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, "Failed to get run", err)
		return
	}

	buf, err := report.WriteRun(*res)
	if err != nil {
		h.fail(w, r, "Failed to build export", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(res.Run)))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// PatchRun edits month units and the marked-by name.
// PATCH /payroll/runs/{runID}
func (h *Handler) PatchRun(w http.ResponseWriter, r *http.Request) {
	var req PatchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	run, err := h.Payroll.PatchRun(r.Context(), TenantFrom(r.Context()), chi.URLParam(r, "runID"), payroll.RunPatch{
		MonthUnits:   req.MonthUnits,
		MarkedByName: req.MarkedByName,
	})
	if err != nil {
		h.fail(w, r, "Failed to update run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// FinalizeRun locks a draft run.
// POST /payroll/runs/{runID}/finalize
func (h *Handler) FinalizeRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, err := h.Payroll.Finalize(ctx, TenantFrom(ctx), chi.URLParam(r, "runID"), ActorFrom(ctx))
	if err != nil {
		h.fail(w, r, "Failed to finalize run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// PatchItem edits allowances and payment status of one item.
// PATCH /payroll/items/{itemID}
func (h *Handler) PatchItem(w http.ResponseWriter, r *http.Request) {
	var req PatchItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	item, err := h.Payroll.PatchItem(ctx, TenantFrom(ctx), chi.URLParam(r, "itemID"), ActorFrom(ctx), req.toPatch())
	if err != nil {
		h.fail(w, r, "Failed to update item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

// =============================================================================
// HELPERS
// =============================================================================

// fail maps a service error to its HTTP status. Only server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case payroll.IsClientError(err):
		return http.StatusBadRequest
	case payroll.IsNotFound(err):
		return http.StatusNotFound
	case payroll.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
