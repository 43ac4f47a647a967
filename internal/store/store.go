package store

import (
	"context"
	"strings"
)

// Record is a schemaless document persisted in a named collection. Field
// shapes follow the category schemas; the store itself does not validate
// them. Records must never contain nil field values (the normalizer strips
// them before persistence).
type Record map[string]any

// ID returns the record's id field, or "" when unset.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a deep copy so callers can mutate without aliasing store
// state.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return cloneMap(r)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case Record:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ChangeFunc is invoked after any mutation within the named collection.
// Singleton document writes report the document name as the collection.
type ChangeFunc func(collection string)

// Store is the shared multi-collection document store. Implementations
// must serialize conflicting writes at the record level.
type Store interface {
	// List returns every record in a collection in insertion order.
	List(ctx context.Context, collection string) ([]Record, error)
	// Get returns a single record, or nil when absent.
	Get(ctx context.Context, collection, id string) (Record, error)
	// Insert writes a new record, assigning an id when the record carries
	// none, and returns the id.
	Insert(ctx context.Context, collection string, rec Record) (string, error)
	// Upsert writes a record under an explicit id, replacing any existing
	// record with that id.
	Upsert(ctx context.Context, collection, id string, rec Record) error
	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, collection, id string) error

	// GetDocument returns a singleton config document, or nil when unset.
	GetDocument(ctx context.Context, name string) (Record, error)
	// SetDocument replaces a singleton config document.
	SetDocument(ctx context.Context, name string, doc Record) error

	// Watch registers a change callback. Callbacks fire after the mutation
	// is durable and must not block.
	Watch(fn ChangeFunc)
}

// MatchesAudience reports whether a record targets the given branch and
// year. Branch/year fields may be a single string or a list; membership
// is checked case-insensitively. Empty filter values match everything.
func MatchesAudience(rec Record, branch, year string) bool {
	return fieldMatches(rec["branch"], branch) && fieldMatches(rec["year"], year)
}

// FilterByAudience returns the records matching the branch/year filters.
func FilterByAudience(recs []Record, branch, year string) []Record {
	if branch == "" && year == "" {
		return recs
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if MatchesAudience(rec, branch, year) {
			out = append(out, rec)
		}
	}
	return out
}

func fieldMatches(field any, want string) bool {
	if want == "" {
		return true
	}
	switch val := field.(type) {
	case string:
		return strings.EqualFold(strings.TrimSpace(val), want)
	case []any:
		for _, e := range val {
			if s, ok := e.(string); ok && strings.EqualFold(strings.TrimSpace(s), want) {
				return true
			}
		}
		return false
	case []string:
		for _, s := range val {
			if strings.EqualFold(strings.TrimSpace(s), want) {
				return true
			}
		}
		return false
	default:
		// Records without the field are visible to everyone.
		return field == nil
	}
}
