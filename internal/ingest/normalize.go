package ingest

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"campushub/internal/store"
)

// Source tags attached to every normalized record.
const (
	SourceManual   = "MANUAL"
	SourceDocument = "DOCUMENT"
	SourceExcel    = "EXCEL"
)

// sourceTag derives the record source from the (possibly re-tagged) mime
// type: EXCEL for tabular content and rows-from-spreadsheet JSON, MANUAL
// for plain text, DOCUMENT for everything else.
func sourceTag(mimeType string) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "spreadsheet"),
		strings.Contains(mt, "ms-excel"),
		strings.Contains(mt, "csv"),
		strings.Contains(mt, "json"):
		return SourceExcel
	case strings.HasPrefix(mt, "text/"):
		return SourceManual
	default:
		return SourceDocument
	}
}

// normalizeRecords post-processes raw extracted records: stable ids,
// ingestion metadata, recursive absent-field stripping, and per-slot ids.
// Normalization is idempotent over ids: an id already present on a record
// or slot is preserved. No I/O.
func normalizeRecords(raw []store.Record, mimeType, uploader string, now time.Time) []store.Record {
	out := make([]store.Record, 0, len(raw))
	tag := sourceTag(mimeType)
	stamp := now.UTC().Format(time.RFC3339)

	for _, rec := range raw {
		if rec == nil {
			continue
		}
		n := store.Record(stripAbsent(map[string]any(rec.Clone())))
		if n.ID() == "" {
			n["id"] = uuid.NewString()
		}
		n["ingestedAt"] = stamp
		n["source"] = tag
		if uploader != "" {
			n["uploadedBy"] = uploader
		}
		assignSlotIDs(n)
		out = append(out, n)
	}
	return out
}

// stripAbsent removes nil-valued fields at every nesting depth. The shared
// store rejects absent-marker fields outright, so they must be omitted
// rather than stored as null.
func stripAbsent(m map[string]any) map[string]any {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			m[k] = stripAbsent(val)
		case store.Record:
			m[k] = stripAbsent(map[string]any(val))
		case []any:
			m[k] = stripAbsentSlice(val)
		}
	}
	return m
}

func stripAbsentSlice(s []any) []any {
	out := s[:0]
	for _, v := range s {
		switch val := v.(type) {
		case nil:
			continue
		case map[string]any:
			out = append(out, stripAbsent(val))
		case []any:
			out = append(out, stripAbsentSlice(val))
		default:
			out = append(out, v)
		}
	}
	return out
}

// assignSlotIDs gives each nested timetable slot a stable id, preserving
// ids that survived a previous normalization.
func assignSlotIDs(rec store.Record) {
	slots, ok := rec["slots"].([]any)
	if !ok {
		return
	}
	for _, raw := range slots {
		slot, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := slot["id"].(string); id == "" {
			slot["id"] = uuid.NewString()
		}
	}
}
