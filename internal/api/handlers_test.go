package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/ingestion"
	"github.com/storerecon/reconciler/internal/jobs"
	"github.com/storerecon/reconciler/internal/reconciliation"
	"github.com/storerecon/reconciler/internal/report"
	"github.com/storerecon/reconciler/internal/storage"
)

type fakeIngester struct {
	table, source string
	format        ingestion.Format
	body          string
	err           error
}

func (f *fakeIngester) Ingest(_ context.Context, table string, format ingestion.Format, source string, r io.Reader) (*ingestion.IngestResult, error) {
	b, _ := io.ReadAll(r)
	f.table, f.format, f.source, f.body = table, format, source, string(b)
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.IngestResult{Table: table, Format: format, Source: source, RowsRead: 1, RowsInserted: 1, Chunks: 1}, nil
}

type fakeReconciler struct{ scope domain.Scope }

func (f *fakeReconciler) Run(_ context.Context, scope domain.Scope) (*reconciliation.RunResult, error) {
	f.scope = scope
	return &reconciliation.RunResult{
		StartDate: scope.StartDate(), EndDate: scope.EndDate(), StoreCodes: scope.StoreCodes,
		Counts: map[string]int{"pos_vs_aggregator": 3},
	}, nil
}

type fakeJobs struct {
	jobs   map[string]*domain.Job
	closed bool
}

func (f *fakeJobs) Submit(_ context.Context, scope domain.Scope) (*domain.Job, error) {
	if f.closed {
		return nil, jobs.ErrClosed
	}
	job := &domain.Job{ID: fmt.Sprintf("job-%d", len(f.jobs)+1), StoreCode: scope.StoreLabel(),
		StartDate: scope.StartDate(), EndDate: scope.EndDate(), Status: domain.JobPending}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*domain.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, domain.ErrJobNotFound
}

func (f *fakeJobs) List(context.Context, int) ([]domain.Job, error) { return nil, nil }

type fakeSummaries struct{ scope domain.Scope }

func (f *fakeSummaries) Summary(_ context.Context, scope domain.Scope) (*report.Summary, error) {
	f.scope = scope
	return &report.Summary{StartDate: scope.StartDate(), EndDate: scope.EndDate(), StoreCodes: scope.StoreCodes}, nil
}

type fakeQuarantine struct{ table string }

func (f *fakeQuarantine) List(_ context.Context, table string, _ int) ([]domain.QuarantineEntry, error) {
	f.table = table
	return nil, nil
}

type fixture struct {
	router     http.Handler
	ingester   *fakeIngester
	reconciler *fakeReconciler
	jobs       *fakeJobs
	summaries  *fakeSummaries
	quarantine *fakeQuarantine
	store      *storage.LocalStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		ingester:   &fakeIngester{},
		reconciler: &fakeReconciler{},
		jobs:       &fakeJobs{jobs: map[string]*domain.Job{}},
		summaries:  &fakeSummaries{},
		quarantine: &fakeQuarantine{},
		store:      store,
	}
	logger, _ := test.NewNullLogger()
	f.router = NewRouter(Deps{
		Ingester:   f.ingester,
		Reconciler: f.reconciler,
		Jobs:       f.jobs,
		Summaries:  f.summaries,
		Quarantine: f.quarantine,
		Reports:    store,
	}, logger)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func uploadRequest(t *testing.T, table, filename, format, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if format != "" {
		require.NoError(t, mw.WriteField("format", format))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/"+table, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	rec := f.do(uploadRequest(t, "pos_transactions", "march.csv", "", "order_id,order_date\nP1,2024-03-01\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "pos_transactions", f.ingester.table)
	assert.Equal(t, ingestion.FormatCSV, f.ingester.format, "format from file extension")
	assert.Equal(t, "march.csv", f.ingester.source)
	assert.Contains(t, f.ingester.body, "P1,2024-03-01")
	assert.EqualValues(t, 1, decode(t, rec)["rows_inserted"])
}

func TestUploadFormatField(t *testing.T) {
	f := newFixture(t)
	rec := f.do(uploadRequest(t, "order_adjustments", "export.dat", "json", "[]"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingestion.FormatJSON, f.ingester.format)
}

func TestUploadErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(uploadRequest(t, "pos_transactions", "march.pdf", "", "x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.ingester.err = fmt.Errorf("%w: %q", ingestion.ErrUnknownTable, "users")
	rec = f.do(uploadRequest(t, "users", "users.csv", "", "a\n1\n"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.ingester.err = fmt.Errorf("csv: line 3: wrong quote")
	rec = f.do(uploadRequest(t, "pos_transactions", "pos.csv", "", "a\n1\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "csv: line 3: wrong quote", decode(t, rec)["error"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/pos_transactions", strings.NewReader("not multipart"))
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	body := `{"start_date":"2024-03-01","end_date":"2024-03-31","store_codes":["S2","S1"]}`
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/reconciliations", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"S1", "S2"}, f.reconciler.scope.StoreCodes)
	out := decode(t, rec)
	assert.Equal(t, "2024-03-01", out["start_date"])
	assert.EqualValues(t, 3, out["counts"].(map[string]any)["pos_vs_aggregator"])
}

func TestReconcileRejectsBadWindow(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{
		`{"start_date":"2024-03-31","end_date":"2024-03-01"}`,
		`{"start_date":"03/01/2024","end_date":"2024-03-31"}`,
		`not json`,
	} {
		rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/reconciliations", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestReportLifecycle(t *testing.T) {
	f := newFixture(t)
	body := `{"start_date":"2024-03-01","end_date":"2024-03-31"}`
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode(t, rec)["job_id"].(string)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", decode(t, rec)["status"])

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+id+"/download", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	job := f.jobs.jobs[id]
	job.Status = domain.JobCompleted
	job.Filename = "report.xlsx"
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+id+"/download", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "file missing from storage")

	require.NoError(t, f.store.Save(context.Background(), "report.xlsx", func(w io.Writer) error {
		_, err := io.WriteString(w, "PK-workbook")
		return err
	}))
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+id+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.XLSXContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="report.xlsx"`)
	assert.Equal(t, "PK-workbook", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateReportWhileShuttingDown(t *testing.T) {
	f := newFixture(t)
	f.jobs.closed = true
	body := `{"start_date":"2024-03-01","end_date":"2024-03-31"}`
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(body)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListReportsReturnsEmptyArray(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, []any{}, out["jobs"])
	assert.EqualValues(t, 5, out["limit"])
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/summary?start_date=2024-03-01&end_date=2024-03-31&store_codes=S1,S3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"S1", "S3"}, f.summaries.scope.StoreCodes)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/summary?start_date=2024-03-01", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListQuarantine(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/quarantine?table=pos_transactions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pos_transactions", f.quarantine.table)
	assert.Equal(t, []any{}, decode(t, rec)["entries"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
