package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"campushub/internal/category"
	"campushub/internal/metrics"
)

// sampleLimit bounds the classification sample to cap external-call cost;
// the prefix is plenty for a category decision.
const sampleLimit = 1200

// Placeholder labels an admin can submit to request inference.
var genericLabels = map[string]bool{
	"":        true,
	"AUTO":    true,
	"GENERAL": true,
	"UNKNOWN": true,
	"SMART":   true,
}

// resolveCategory picks the category for an upload. A valid declared
// category wins outright; otherwise the engine is asked for a single
// label and its reply is scanned for category tokens. This never fails:
// any ambiguity or engine error resolves to the catch-all.
func (s *Service) resolveCategory(ctx context.Context, declared, sample string) category.Category {
	if !genericLabels[strings.ToUpper(strings.TrimSpace(declared))] {
		if c, ok := category.Parse(declared); ok {
			return c
		}
	}

	labels := make([]string, 0, len(category.All()))
	for _, c := range category.All() {
		labels = append(labels, string(c))
	}
	prompt := fmt.Sprintf(
		"Classify this campus document into exactly one category.\n"+
			"Reply with only one word from: %s.\n\nDOCUMENT:\n%s",
		strings.Join(labels, ", "), truncate(sample, sampleLimit))

	start := time.Now()
	reply, err := s.engine.Complete(ctx, prompt)
	metrics.EngineCallDuration.WithLabelValues("classify").Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("classification failed, defaulting to %s: %v", category.Default, err)
		return category.Default
	}
	return scanForCategory(reply)
}

// scanForCategory finds the first category token in the engine's reply.
// Substring matching tolerates verbose replies.
func scanForCategory(reply string) category.Category {
	up := strings.ToUpper(reply)
	for _, c := range category.All() {
		if strings.Contains(up, string(c)) {
			return c
		}
	}
	for _, alias := range []string{"BROADCAST", "NOTICE"} {
		if strings.Contains(up, alias) {
			return category.Normalize(alias)
		}
	}
	return category.Default
}

// classificationSample builds the text shown to the classifier. Binary
// payloads can't be sampled as text, so the file name and mime type stand
// in; declared categories usually accompany binary uploads anyway.
func classificationSample(fileName string, content []byte, mimeType string) string {
	if isBinary(mimeType) {
		return fmt.Sprintf("file name: %s (%s)", fileName, mimeType)
	}
	return string(content)
}
