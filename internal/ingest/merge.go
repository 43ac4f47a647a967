package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"campushub/internal/category"
	"campushub/internal/metrics"
	"campushub/internal/store"
)

// merge commits a normalized batch to the category's collection. A failure
// persisting one record never aborts the rest of the batch; failures are
// counted and reported, not fatal.
func (s *Service) merge(ctx context.Context, cat category.Category, recs []store.Record) (committed, failed int) {
	col := cat.Collection()
	if cat == category.Timetable {
		return s.mergeTimetable(ctx, col, recs)
	}

	for _, rec := range recs {
		var err error
		if id := rec.ID(); id != "" {
			err = s.store.Upsert(ctx, col, id, rec)
		} else {
			_, err = s.store.Insert(ctx, col, rec)
		}
		if err != nil {
			log.Printf("persist to %s failed: %v", col, err)
			metrics.StoreFailures.Inc()
			failed++
			continue
		}
		committed++
	}
	return committed, failed
}

// mergeTimetable deduplicates against existing entries by the composite
// (day, branch, year, division) key: a key match appends the incoming slot
// list onto the existing entry (union, duplicates surfaced rather than
// silently dropped); anything else inserts fresh.
func (s *Service) mergeTimetable(ctx context.Context, col string, entries []store.Record) (committed, failed int) {
	existing, err := s.store.List(ctx, col)
	if err != nil {
		log.Printf("timetable lookup failed, treating batch as fresh inserts: %v", err)
		existing = nil
	}

	index := make(map[string]store.Record, len(existing))
	for _, e := range existing {
		if key := timetableKey(e); key != "" {
			index[key] = e
		}
	}

	for _, entry := range entries {
		key := timetableKey(entry)
		current, found := index[key]
		if key == "" || !found {
			id, err := s.store.Insert(ctx, col, entry)
			if err != nil {
				log.Printf("timetable insert failed: %v", err)
				metrics.StoreFailures.Inc()
				failed++
				continue
			}
			if key != "" {
				stored := entry.Clone()
				stored["id"] = id
				index[key] = stored
			}
			committed++
			continue
		}

		merged := current.Clone()
		merged["slots"] = append(asSlice(merged["slots"]), asSlice(entry["slots"])...)
		if err := s.store.Upsert(ctx, col, current.ID(), merged); err != nil {
			log.Printf("timetable merge failed for %s: %v", key, err)
			metrics.StoreFailures.Inc()
			failed++
			continue
		}
		index[key] = merged
		committed++
	}
	return committed, failed
}

// timetableKey builds the composite natural key. Comparison is
// whitespace- and case-insensitive; an entry missing every key field gets
// no key and is always inserted fresh.
func timetableKey(rec store.Record) string {
	day := keyField(rec, "day")
	branch := keyField(rec, "branch")
	year := keyField(rec, "year")
	division := keyField(rec, "division")
	if day == "" && branch == "" && year == "" && division == "" {
		return ""
	}
	return fmt.Sprintf("%s|%s|%s|%s", day, branch, year, division)
}

func keyField(rec store.Record, name string) string {
	v, _ := rec[name].(string)
	return strings.ToLower(strings.TrimSpace(v))
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
