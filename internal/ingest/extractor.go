package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"campushub/internal/category"
	"campushub/internal/genai"
	"campushub/internal/metrics"
	"campushub/internal/schema"
	"campushub/internal/store"
)

// mimeStructuredRows tags spreadsheet content after the rows pre-transform.
const mimeStructuredRows = "application/json"

func isBinary(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf"
}

// extract asks the engine for records matching the category's schema.
// Every failure mode — engine error, markdown-wrapped garbage, non-array
// output — yields an empty batch, never an error; the orchestrator's
// fallback record absorbs it.
func (s *Service) extract(ctx context.Context, cat category.Category, content []byte, mimeType string) []store.Record {
	sch, ok := schema.Get(cat)
	if !ok {
		return nil
	}

	parts := []genai.Part{{Text: extractionInstruction(cat)}}
	if isBinary(mimeType) {
		parts = append(parts, genai.Part{InlineData: &genai.Blob{
			MIMEType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(content),
		}})
	} else {
		parts = append(parts, genai.Part{Text: "INPUT DATA:\n" + string(content)})
	}

	start := time.Now()
	raw, err := s.engine.GenerateStructured(ctx, parts, sch)
	metrics.EngineCallDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("extraction failed for %s: %v", cat, err)
		return nil
	}

	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil
	}

	var recs []store.Record
	if err := json.Unmarshal([]byte(cleaned), &recs); err != nil {
		log.Printf("extraction for %s returned unparseable output: %v", cat, err)
		return nil
	}
	return recs
}

func extractionInstruction(cat category.Category) string {
	return fmt.Sprintf(
		"Task: Extract structured JSON data for %s from the input.\n"+
			"Output ONLY a valid JSON array. No conversational text.\n"+
			"Branch names: Comp, IT, Civil, Mech, Elect, AIDS, E&TC.\n"+
			"Years: 1st Year, 2nd Year, 3rd Year, 4th Year.", cat)
}

// stripFences removes markdown code-fence wrapping the engine sometimes
// adds despite the JSON response mode.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
