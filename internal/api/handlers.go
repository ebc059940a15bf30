package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/ingestion"
	"github.com/storerecon/reconciler/internal/jobs"
	"github.com/storerecon/reconciler/internal/reconciliation"
	"github.com/storerecon/reconciler/internal/report"
	"github.com/storerecon/reconciler/internal/storage"
)

type Ingester interface {
	Ingest(ctx context.Context, table string, format ingestion.Format, source string, r io.Reader) (*ingestion.IngestResult, error)
}

type Reconciler interface {
	Run(ctx context.Context, scope domain.Scope) (*reconciliation.RunResult, error)
}

type JobQueue interface {
	Submit(ctx context.Context, scope domain.Scope) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, limit int) ([]domain.Job, error)
}

type SummaryReader interface {
	Summary(ctx context.Context, scope domain.Scope) (*report.Summary, error)
}

type QuarantineLister interface {
	List(ctx context.Context, table string, limit int) ([]domain.QuarantineEntry, error)
}

// Deps are the services the API exposes.
type Deps struct {
	Ingester       Ingester
	Reconciler     Reconciler
	Jobs           JobQueue
	Summaries      SummaryReader
	Quarantine     QuarantineLister
	Reports        storage.Store
	MaxUploadBytes int64
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	Deps
	log logrus.FieldLogger
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Warn("encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// windowRequest is the reporting window accepted by reconciliation and
// report endpoints.
type windowRequest struct {
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	StoreCodes []string `json:"store_codes"`
}

func (h *Handlers) decodeWindow(w http.ResponseWriter, r *http.Request) (domain.Scope, bool) {
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return domain.Scope{}, false
	}
	scope, err := domain.NewScope(req.StartDate, req.EndDate, req.StoreCodes)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return domain.Scope{}, false
	}
	return scope, true
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Upload ---

func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	formatName := r.FormValue("format")
	if formatName == "" {
		formatName = header.Filename
	}
	format, err := ingestion.ParseFormat(formatName)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.Ingester.Ingest(r.Context(), table, format, header.Filename, file)
	switch {
	case errors.Is(err, ingestion.ErrUnknownTable):
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// --- ListQuarantine ---

func (h *Handlers) ListQuarantine(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 100)
	entries, err := h.Quarantine.List(r.Context(), q.Get("table"), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []domain.QuarantineEntry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   limit,
	})
}

// --- Reconcile ---

func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.decodeWindow(w, r)
	if !ok {
		return
	}
	result, err := h.Reconciler.Run(r.Context(), scope)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// --- Summary ---

func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var stores []string
	if s := q.Get("store_codes"); s != "" {
		stores = strings.Split(s, ",")
	}
	scope, err := domain.NewScope(q.Get("start_date"), q.Get("end_date"), stores)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.Summaries.Summary(r.Context(), scope)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// --- Report jobs ---

func (h *Handlers) CreateReport(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.decodeWindow(w, r)
	if !ok {
		return
	}
	job, err := h.Jobs.Submit(r.Context(), scope)
	switch {
	case errors.Is(err, jobs.ErrClosed):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	list, err := h.Jobs.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []domain.Job{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  list,
		"limit": limit,
	})
}

func (h *Handlers) job(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	job, err := h.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		h.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return job, true
}

func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}
	if job.Status != domain.JobCompleted {
		h.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
		return
	}

	f, err := h.Reports.Open(r.Context(), job.Filename)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "report file not found")
		return
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", storage.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, job.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.log.WithError(err).WithField("job_id", job.ID).Warn("download interrupted")
	}
}
