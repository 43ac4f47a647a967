package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"campushub/internal/category"
	"campushub/internal/genai"
	"campushub/internal/metrics"
	"campushub/internal/store"
)

// ErrEngineUnavailable reports a missing engine credential. Ingestion is
// refused entirely in that state rather than degraded to fallback records.
var ErrEngineUnavailable = errors.New("extraction engine is not configured")

// StageError is a fatal failure in a specific pipeline stage, carrying
// enough context for the caller to offer a retry.
type StageError struct {
	Stage    string
	FileName string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.FileName, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Engine is the generative classify/extract capability.
type Engine interface {
	Configured() bool
	Complete(ctx context.Context, prompt string) (string, error)
	GenerateStructured(ctx context.Context, parts []genai.Part, responseSchema any) (string, error)
}

// Upload is a raw artifact handed to the pipeline.
type Upload struct {
	FileName         string
	MIMEType         string
	DeclaredCategory string
	UploadedBy       string
	Content          []byte
}

// Result reports a completed ingestion.
type Result struct {
	Category    category.Category `json:"category"`
	RecordCount int               `json:"record_count"`
	Failed      int               `json:"failed"`
	Fallback    bool              `json:"fallback"`
}

// Upload log statuses, mirrored in the upload_logs collection.
const (
	statusSuccess = "SUCCESS"
	statusPartial = "PARTIAL"
	statusFailed  = "FAILED"
)

const uploadLogCollection = "upload_logs"

// Service runs the ingestion pipeline: pre-transform, classify, extract,
// normalize, merge. It holds no state across calls.
type Service struct {
	engine Engine
	store  store.Store
	now    func() time.Time
}

// New creates the pipeline service.
func New(engine Engine, st store.Store) *Service {
	return &Service{engine: engine, store: st, now: time.Now}
}

// Ingest runs the full pipeline for one upload. Every upload that passes
// the pre-transform leaves at least one visible trace: empty or malformed
// extraction yields a synthesized catch-all record instead of a silent
// zero-record success.
func (s *Service) Ingest(ctx context.Context, up Upload) (Result, error) {
	if s.engine == nil || !s.engine.Configured() {
		return Result{}, ErrEngineUnavailable
	}

	content, mimeType := up.Content, up.MIMEType
	if isSpreadsheet(mimeType, up.FileName) {
		rows, err := sheetRows(content, mimeType, up.FileName)
		if err != nil {
			s.logUpload(ctx, up.FileName, category.Default, statusFailed)
			return Result{}, &StageError{Stage: "pre-transform", FileName: up.FileName, Err: err}
		}
		encoded, err := json.Marshal(rows)
		if err != nil {
			s.logUpload(ctx, up.FileName, category.Default, statusFailed)
			return Result{}, &StageError{Stage: "pre-transform", FileName: up.FileName, Err: err}
		}
		content, mimeType = encoded, mimeStructuredRows
	}

	cat := s.resolveCategory(ctx, up.DeclaredCategory, classificationSample(up.FileName, content, mimeType))

	recs := s.extract(ctx, cat, content, mimeType)

	fallback := false
	if len(recs) == 0 {
		cat = category.Default
		recs = []store.Record{fallbackRecord(up.FileName, content, mimeType)}
		fallback = true
		metrics.FallbackRecords.Inc()
	}

	norm := normalizeRecords(recs, mimeType, up.UploadedBy, s.now())

	committed, failed := s.merge(ctx, cat, norm)

	status := statusSuccess
	if fallback || failed > 0 {
		status = statusPartial
	}
	if committed == 0 {
		status = statusFailed
	}
	s.logUpload(ctx, up.FileName, cat, status)
	metrics.IngestionsTotal.WithLabelValues(string(cat), status).Inc()

	return Result{Category: cat, RecordCount: committed, Failed: failed, Fallback: fallback}, nil
}

// Delete removes a record from a category's collection. Passthrough for
// admin record management.
func (s *Service) Delete(ctx context.Context, cat category.Category, id string) error {
	return s.store.Delete(ctx, cat.Collection(), id)
}

// fallbackRecord synthesizes the minimal catch-all record for an upload
// that produced no structured data.
func fallbackRecord(fileName string, content []byte, mimeType string) store.Record {
	text := "unprocessed binary document"
	if !isBinary(mimeType) {
		text = truncate(string(content), 2000)
	}
	return store.Record{
		"title":    fileName,
		"content":  text,
		"priority": "NORMAL",
	}
}

// logUpload appends a best-effort trace to the upload log; failures here
// never affect the pipeline outcome.
func (s *Service) logUpload(ctx context.Context, fileName string, cat category.Category, status string) {
	rec := store.Record{
		"fileName":  fileName,
		"type":      string(cat),
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	if _, err := s.store.Insert(ctx, uploadLogCollection, rec); err != nil {
		log.Printf("upload log write failed for %s: %v", fileName, err)
	}
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
