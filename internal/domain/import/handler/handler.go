// Package handler exposes the statement-import REST endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/common"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/repository"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/service"
)

// maxUploadBytes caps statement uploads; bank exports are small text files.
const maxUploadBytes = 10 << 20 // 10 MiB

var allowedExtensions = map[string]bool{
	".csv": true,
	".tsv": true,
	".txt": true,
}

// Importer is the service surface the handler depends on.
type Importer interface {
	AnalyzeFile(ctx context.Context, userID uuid.UUID, fileData []byte) (*service.AnalyzeResult, error)
	SaveMapping(ctx context.Context, userID uuid.UUID, fingerprint, bankName string, delimiter rune, skipLines int, mapping service.ColumnMapping) error
	Import(ctx context.Context, userID uuid.UUID, fileName string, fileData []byte, mapping service.ColumnMapping) (*service.Summary, error)
	GetJob(ctx context.Context, id uuid.UUID) (*repository.ImportJob, error)
	ListMappings(ctx context.Context, userID uuid.UUID) ([]*repository.BankMapping, error)
	RecategorizeTransactions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, category string) error
}

// ImportHandler handles statement upload, analysis and import requests.
type ImportHandler struct {
	svc    Importer
	logger *slog.Logger
}

// NewImportHandler creates the import HTTP handler.
func NewImportHandler(svc Importer, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{svc: svc, logger: logger}
}

// Routes mounts the import endpoints on a chi router.
func (h *ImportHandler) Routes(r chi.Router) {
	r.Post("/import/analyze", h.Analyze)
	r.Post("/import", h.Import)
	r.Post("/import/mappings", h.SaveMapping)
	r.Get("/import/mappings", h.ListMappings)
	r.Get("/import/jobs/{jobID}", h.JobStatus)
	r.Post("/transactions/recategorize", h.Recategorize)
}

// columnMappingPayload is the wire form of a column mapping. Pointer
// fields distinguish "absent" from column zero.
type columnMappingPayload struct {
	DateCol       *int   `json:"date_col"`
	DescCol       *int   `json:"desc_col"`
	AmountCol     *int   `json:"amount_col"`
	DebitCol      *int   `json:"debit_col"`
	CreditCol     *int   `json:"credit_col"`
	CategoryCol   *int   `json:"category_col"`
	TypeCol       *int   `json:"type_col"`
	IsDoubleEntry bool   `json:"double_entry"`
	DateFormat    string `json:"date_format"`
}

func (p columnMappingPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.DateCol, validation.NotNil),
		validation.Field(&p.DescCol, validation.NotNil),
		validation.Field(&p.AmountCol, validation.By(func(any) error {
			if p.IsDoubleEntry {
				if p.DebitCol == nil || p.CreditCol == nil {
					return errors.New("double_entry requires debit_col and credit_col")
				}
				return nil
			}
			if p.AmountCol == nil {
				return errors.New("amount_col is required without double_entry")
			}
			return nil
		})),
	)
}

func (p columnMappingPayload) toMapping() service.ColumnMapping {
	col := func(v *int) int {
		if v == nil {
			return -1
		}
		return *v
	}
	return service.ColumnMapping{
		DateCol:       col(p.DateCol),
		DescCol:       col(p.DescCol),
		AmountCol:     col(p.AmountCol),
		DebitCol:      col(p.DebitCol),
		CreditCol:     col(p.CreditCol),
		CategoryCol:   col(p.CategoryCol),
		TypeCol:       col(p.TypeCol),
		IsDoubleEntry: p.IsDoubleEntry,
		DateFormat:    p.DateFormat,
	}
}

// Analyze inspects an uploaded file and returns the detected shape,
// column suggestions and any learned mapping.
func (h *ImportHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	_, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.svc.AnalyzeFile(r.Context(), userID, data)
	if err != nil {
		h.logger.Warn("file analysis failed", "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Import parses and ingests an uploaded statement using the mapping
// provided in the "mapping" form field.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	fileName, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	var payload columnMappingPayload
	if err := json.Unmarshal([]byte(r.FormValue("mapping")), &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid mapping payload"))
		return
	}
	if err := payload.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	summary, err := h.svc.Import(r.Context(), userID, fileName, data, payload.toMapping())
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, common.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Error("import failed", "user_id", userID, "error", err)
		writeJSON(w, status, errorBody(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

type saveMappingRequest struct {
	Fingerprint string               `json:"fingerprint"`
	BankName    string               `json:"bank_name"`
	Delimiter   string               `json:"delimiter"`
	SkipLines   int                  `json:"skip_lines"`
	Mapping     columnMappingPayload `json:"mapping"`
}

func (req saveMappingRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Fingerprint, validation.Required, validation.Length(64, 64)),
		validation.Field(&req.Delimiter, validation.Required, validation.Length(1, 1)),
		validation.Field(&req.SkipLines, validation.Min(0)),
		validation.Field(&req.Mapping),
	)
}

// SaveMapping stores a column mapping for a header fingerprint.
func (h *ImportHandler) SaveMapping(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req saveMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	err := h.svc.SaveMapping(r.Context(), userID, req.Fingerprint, req.BankName,
		rune(req.Delimiter[0]), req.SkipLines, req.Mapping.toMapping())
	if err != nil {
		h.logger.Error("failed to save mapping", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to save mapping"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "saved"})
}

// ListMappings returns the caller's learned mappings plus global templates.
func (h *ImportHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	mappings, err := h.svc.ListMappings(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list mappings", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to list mappings"))
		return
	}
	if mappings == nil {
		mappings = []*repository.BankMapping{}
	}

	writeJSON(w, http.StatusOK, mappings)
}

type recategorizeRequest struct {
	TransactionIDs []uuid.UUID `json:"transaction_ids"`
	Category       string      `json:"category"`
}

func (req recategorizeRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.TransactionIDs, validation.Required, validation.Length(1, 1000)),
		validation.Field(&req.Category, validation.Required, validation.Length(1, 100)),
	)
}

// Recategorize applies a corrected category to imported transactions.
func (h *ImportHandler) Recategorize(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req recategorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := h.svc.RecategorizeTransactions(r.Context(), userID, req.TransactionIDs, req.Category); err != nil {
		h.logger.Error("failed to recategorize transactions", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to update categories"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// JobStatus returns the state of an import job.
func (h *ImportHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid job id"))
		return
	}

	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to load import job", "job_id", jobID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to load job"))
		return
	}
	if job == nil || job.UserID != userID {
		writeJSON(w, http.StatusNotFound, errorBody("job not found"))
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// userID resolves the authenticated user set by the gateway. Auth itself
// is handled upstream; the pipeline only needs the scoping identity.
func (h *ImportHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody("missing or invalid user identity"))
		return uuid.Nil, false
	}
	return id, true
}

// readUpload extracts the "file" part of a multipart upload, enforcing
// the size cap and extension allowlist.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("upload too large or malformed"))
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing file upload"))
		return "", nil, false
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unsupported file type %q", ext)))
		return "", nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return "", nil, false
	}

	return header.Filename, data, true
}
