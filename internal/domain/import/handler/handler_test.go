package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/common"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/repository"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/service"
)

type stubImporter struct {
	analyzeResult *service.AnalyzeResult
	analyzeErr    error

	importSummary *service.Summary
	importErr     error
	gotMapping    service.ColumnMapping
	gotFileName   string

	saveErr        error
	gotFingerprint string
	gotDelimiter   rune

	job    *repository.ImportJob
	jobErr error

	mappings []*repository.BankMapping

	gotRecatIDs      []uuid.UUID
	gotRecatCategory string
}

func (s *stubImporter) AnalyzeFile(_ context.Context, _ uuid.UUID, _ []byte) (*service.AnalyzeResult, error) {
	return s.analyzeResult, s.analyzeErr
}

func (s *stubImporter) SaveMapping(_ context.Context, _ uuid.UUID, fingerprint, _ string, delimiter rune, _ int, _ service.ColumnMapping) error {
	s.gotFingerprint = fingerprint
	s.gotDelimiter = delimiter
	return s.saveErr
}

func (s *stubImporter) Import(_ context.Context, _ uuid.UUID, fileName string, _ []byte, mapping service.ColumnMapping) (*service.Summary, error) {
	s.gotFileName = fileName
	s.gotMapping = mapping
	return s.importSummary, s.importErr
}

func (s *stubImporter) GetJob(_ context.Context, _ uuid.UUID) (*repository.ImportJob, error) {
	return s.job, s.jobErr
}

func (s *stubImporter) ListMappings(_ context.Context, _ uuid.UUID) ([]*repository.BankMapping, error) {
	return s.mappings, nil
}

func (s *stubImporter) RecategorizeTransactions(_ context.Context, _ uuid.UUID, ids []uuid.UUID, category string) error {
	s.gotRecatIDs = ids
	s.gotRecatCategory = category
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(svc Importer) http.Handler {
	r := chi.NewRouter()
	h := NewImportHandler(svc, testLogger())
	r.Route("/v1", h.Routes)
	return r
}

// multipartUpload builds a request body with a file part and optional
// extra form fields.
func multipartUpload(t *testing.T, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestImport_HappyPath(t *testing.T) {
	jobID := uuid.New()
	stub := &stubImporter{
		importSummary: &service.Summary{
			JobID:     jobID,
			RowsTotal: 3,
			Inserted:  3,
			Failed:    []service.RowError{},
		},
	}
	router := newTestRouter(stub)

	mapping := `{"date_col":0,"desc_col":1,"amount_col":2,"date_format":"DD-MM-YYYY"}`
	body, contentType := multipartUpload(t, "statement.csv",
		[]byte("Date,Description,Amount\n01-01-2024,UPI/DR/1/X/SBI/x@ybl,-100\n"),
		map[string]string{"mapping": mapping})

	req := httptest.NewRequest(http.MethodPost, "/v1/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var summary service.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.JobID != jobID || summary.Inserted != 3 {
		t.Errorf("summary = %+v", summary)
	}
	if stub.gotFileName != "statement.csv" {
		t.Errorf("file name = %q", stub.gotFileName)
	}
	if stub.gotMapping.DateCol != 0 || stub.gotMapping.AmountCol != 2 {
		t.Errorf("mapping = %+v", stub.gotMapping)
	}
	// Absent optional columns arrive as -1.
	if stub.gotMapping.DebitCol != -1 || stub.gotMapping.TypeCol != -1 {
		t.Errorf("optional columns not defaulted: %+v", stub.gotMapping)
	}
}

func TestImport_MissingUserIdentity(t *testing.T) {
	router := newTestRouter(&stubImporter{})

	req := httptest.NewRequest(http.MethodPost, "/v1/import", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestImport_RejectsUnsupportedExtension(t *testing.T) {
	router := newTestRouter(&stubImporter{})

	body, contentType := multipartUpload(t, "statement.pdf", []byte("%PDF"), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestImport_InvalidMappingPayload(t *testing.T) {
	router := newTestRouter(&stubImporter{})

	tests := []struct {
		name    string
		mapping string
	}{
		{"not json", "not-json"},
		{"missing amount", `{"date_col":0,"desc_col":1}`},
		{"double entry missing credit", `{"date_col":0,"desc_col":1,"debit_col":2,"double_entry":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartUpload(t, "s.csv", []byte("a,b\n"),
				map[string]string{"mapping": tt.mapping})
			req := httptest.NewRequest(http.MethodPost, "/v1/import", body)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("X-User-ID", uuid.NewString())
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestImport_StoreUnavailable(t *testing.T) {
	stub := &stubImporter{importErr: common.ErrStoreUnavailable}
	router := newTestRouter(stub)

	mapping := `{"date_col":0,"desc_col":1,"amount_col":2}`
	body, contentType := multipartUpload(t, "s.csv", []byte("a,b,c\n"),
		map[string]string{"mapping": mapping})
	req := httptest.NewRequest(http.MethodPost, "/v1/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestAnalyze(t *testing.T) {
	stub := &stubImporter{analyzeResult: &service.AnalyzeResult{MappingFound: true}}
	router := newTestRouter(stub)

	body, contentType := multipartUpload(t, "statement.tsv", []byte("Date\tAmount\n"), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/import/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result service.AnalyzeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.MappingFound {
		t.Error("expected MappingFound in response")
	}
}

func TestAnalyze_UnreadableFile(t *testing.T) {
	stub := &stubImporter{analyzeErr: errors.New("no header row found")}
	router := newTestRouter(stub)

	body, contentType := multipartUpload(t, "empty.csv", nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/import/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestSaveMapping(t *testing.T) {
	stub := &stubImporter{}
	router := newTestRouter(stub)

	fp := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	payload := `{"fingerprint":"` + fp + `","bank_name":"SBI","delimiter":",","skip_lines":5,` +
		`"mapping":{"date_col":0,"desc_col":1,"amount_col":2,"date_format":"DD-MM-YYYY"}}`

	req := httptest.NewRequest(http.MethodPost, "/v1/import/mappings", bytes.NewBufferString(payload))
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if stub.gotFingerprint != fp {
		t.Errorf("fingerprint = %q", stub.gotFingerprint)
	}
	if stub.gotDelimiter != ',' {
		t.Errorf("delimiter = %q", stub.gotDelimiter)
	}
}

func TestSaveMapping_RejectsBadFingerprint(t *testing.T) {
	router := newTestRouter(&stubImporter{})

	payload := `{"fingerprint":"short","delimiter":",","mapping":{"date_col":0,"desc_col":1,"amount_col":2}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/import/mappings", bytes.NewBufferString(payload))
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestJobStatus(t *testing.T) {
	userID := uuid.New()
	jobID := uuid.New()
	stub := &stubImporter{job: &repository.ImportJob{
		ID:     jobID,
		UserID: userID,
		Status: repository.JobStatusSucceeded,
	}}
	router := newTestRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/v1/import/jobs/"+jobID.String(), nil)
	req.Header.Set("X-User-ID", userID.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var job repository.ImportJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Status != repository.JobStatusSucceeded {
		t.Errorf("status = %q", job.Status)
	}
}

func TestJobStatus_OtherUsersJobIsNotFound(t *testing.T) {
	jobID := uuid.New()
	stub := &stubImporter{job: &repository.ImportJob{ID: jobID, UserID: uuid.New()}}
	router := newTestRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/v1/import/jobs/"+jobID.String(), nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListMappings_EmptyIsJSONArray(t *testing.T) {
	router := newTestRouter(&stubImporter{})

	req := httptest.NewRequest(http.MethodGet, "/v1/import/mappings", nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var mappings []repository.BankMapping
	if err := json.Unmarshal(rec.Body.Bytes(), &mappings); err != nil {
		t.Fatalf("decode mappings: %v (body %s)", err, rec.Body.String())
	}
	if len(mappings) != 0 {
		t.Errorf("mappings = %v", mappings)
	}
}

func TestRecategorize(t *testing.T) {
	stub := &stubImporter{}
	router := newTestRouter(stub)

	txID := uuid.New()
	payload := `{"transaction_ids":["` + txID.String() + `"],"category":"Groceries"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/transactions/recategorize", bytes.NewBufferString(payload))
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(stub.gotRecatIDs) != 1 || stub.gotRecatIDs[0] != txID {
		t.Errorf("ids = %v", stub.gotRecatIDs)
	}
	if stub.gotRecatCategory != "Groceries" {
		t.Errorf("category = %q", stub.gotRecatCategory)
	}
}

func TestRecategorize_RejectsEmptyIDs(t *testing.T) {
	router := newTestRouter(&stubImporter{})

	req := httptest.NewRequest(http.MethodPost, "/v1/transactions/recategorize",
		bytes.NewBufferString(`{"transaction_ids":[],"category":"Groceries"}`))
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestJobStatus_InvalidID(t *testing.T) {
	router := newTestRouter(&stubImporter{})

	req := httptest.NewRequest(http.MethodGet, "/v1/import/jobs/not-a-uuid", nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
