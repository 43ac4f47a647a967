package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"campushub/internal/category"
	"campushub/internal/store"
)

func newTestService(engine *fakeEngine, st store.Store) *Service {
	s := New(engine, st)
	s.now = func() time.Time { return testTime }
	return s
}

func TestIngestEndToEndExamNotice(t *testing.T) {
	engine := &fakeEngine{
		classifyReply: "This is an EXAM notice.",
		extractReply: `[{"subject":"Data Structures","date":"12 March","time":"10am",
			"venue":"Room 204","branch":"Comp","year":"3rd Year","division":"A"}]`,
	}
	mem := store.NewMemory()
	s := newTestService(engine, mem)

	res, err := s.Ingest(context.Background(), Upload{
		FileName: "notice.txt",
		MIMEType: "text/plain",
		Content:  []byte("Mid-term exam for Computer Engineering, 3rd Year, Division A: Data Structures on 12 March, 10am, Room 204"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Category != category.Exam || res.RecordCount != 1 || res.Fallback {
		t.Fatalf("unexpected result: %+v", res)
	}

	recs, _ := mem.List(context.Background(), "exams")
	if len(recs) != 1 {
		t.Fatalf("exam collection has %d records", len(recs))
	}
	rec := recs[0]
	if rec["subject"] != "Data Structures" || rec["venue"] != "Room 204" {
		t.Fatalf("extraction fields lost: %#v", rec)
	}
	if rec.ID() == "" || rec["ingestedAt"] == "" || rec["source"] != SourceManual {
		t.Fatalf("normalization metadata missing: %#v", rec)
	}
}

func TestIngestDeclaredCategorySkipsClassification(t *testing.T) {
	engine := &fakeEngine{extractReply: `[{"company":"Acme","role":"SDE Intern"}]`}
	s := newTestService(engine, store.NewMemory())

	res, err := s.Ingest(context.Background(), Upload{
		FileName:         "intern.txt",
		MIMEType:         "text/plain",
		DeclaredCategory: "INTERNSHIPS",
		Content:          []byte("Acme hiring interns"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Category != category.Internship {
		t.Fatalf("category = %s", res.Category)
	}
	if engine.classifyCalls != 0 {
		t.Fatal("classification ran despite declared category")
	}
}

func TestIngestFallbackCompleteness(t *testing.T) {
	inputs := []Upload{
		{FileName: "empty.txt", MIMEType: "text/plain", Content: nil},
		{FileName: "garbage.bin", MIMEType: "application/octet-stream", Content: []byte{0x00, 0xff, 0x13}},
		{FileName: "prose.txt", MIMEType: "text/plain", Content: []byte("nothing structured here at all")},
	}
	for _, up := range inputs {
		engine := &fakeEngine{classifyReply: "???", extractReply: "this is not json"}
		mem := store.NewMemory()
		s := newTestService(engine, mem)

		res, err := s.Ingest(context.Background(), up)
		if err != nil {
			t.Fatalf("%s: ingest: %v", up.FileName, err)
		}
		if res.RecordCount < 1 {
			t.Fatalf("%s: silent zero-record success", up.FileName)
		}
		if !res.Fallback || res.Category != category.Default {
			t.Fatalf("%s: expected catch-all fallback, got %+v", up.FileName, res)
		}

		recs, _ := mem.List(context.Background(), category.Default.Collection())
		if len(recs) != 1 || recs[0]["title"] != up.FileName {
			t.Fatalf("%s: fallback record missing: %#v", up.FileName, recs)
		}
	}
}

func TestIngestNonArrayExtractionFallsBack(t *testing.T) {
	engine := &fakeEngine{
		classifyReply: "SCHOLARSHIP",
		extractReply:  "```json\n{\"name\":\"single object, not array\"}\n```",
	}
	s := newTestService(engine, store.NewMemory())

	res, err := s.Ingest(context.Background(), Upload{
		FileName: "sch.txt", MIMEType: "text/plain", Content: []byte("x"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Fallback {
		t.Fatal("non-array output must trigger the fallback record")
	}
}

func TestIngestStripsMarkdownFences(t *testing.T) {
	engine := &fakeEngine{
		classifyReply: "EVENT",
		extractReply:  "```json\n[{\"title\":\"TechFest\",\"date\":\"5 April\"}]\n```",
	}
	mem := store.NewMemory()
	s := newTestService(engine, mem)

	res, err := s.Ingest(context.Background(), Upload{
		FileName: "event.txt", MIMEType: "text/plain", Content: []byte("TechFest on 5 April"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Fallback || res.RecordCount != 1 {
		t.Fatalf("fenced JSON not parsed: %+v", res)
	}
	recs, _ := mem.List(context.Background(), "events")
	if recs[0]["title"] != "TechFest" {
		t.Fatalf("unexpected record: %#v", recs[0])
	}
}

func TestIngestEngineUnavailable(t *testing.T) {
	s := newTestService(&fakeEngine{unconfigured: true}, store.NewMemory())

	_, err := s.Ingest(context.Background(), Upload{
		FileName: "x.txt", MIMEType: "text/plain", Content: []byte("x"),
	})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
}

func TestIngestSpreadsheetPreTransform(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]string{"name", "amount", "deadline"})
	_ = f.SetSheetRow(sheet, "A2", &[]string{"Merit Scholarship", "50000", "30 June"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}

	engine := &fakeEngine{
		classifyReply: "SCHOLARSHIP",
		extractReply:  `[{"name":"Merit Scholarship","amount":"50000","deadline":"30 June"}]`,
	}
	mem := store.NewMemory()
	s := newTestService(engine, mem)

	res, err := s.Ingest(context.Background(), Upload{
		FileName: "scholarships.xlsx",
		MIMEType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Content:  buf.Bytes(),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Category != category.Scholarship || res.RecordCount != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// The engine must see row objects, not raw workbook bytes.
	var sawRows bool
	for _, p := range engine.lastParts {
		if strings.Contains(p.Text, `"Merit Scholarship"`) {
			sawRows = true
		}
	}
	if !sawRows {
		t.Fatal("pre-transform did not feed row objects to the extractor")
	}

	recs, _ := mem.List(context.Background(), "scholarships")
	if recs[0]["source"] != SourceExcel {
		t.Fatalf("source tag = %v, want EXCEL", recs[0]["source"])
	}
}

func TestIngestCorruptSpreadsheetIsStageError(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestService(engine, store.NewMemory())

	_, err := s.Ingest(context.Background(), Upload{
		FileName: "broken.xlsx",
		MIMEType: "application/vnd.ms-excel",
		Content:  []byte("definitely not a workbook"),
	})
	var stage *StageError
	if !errors.As(err, &stage) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if stage.Stage != "pre-transform" || stage.FileName != "broken.xlsx" {
		t.Fatalf("stage context missing: %+v", stage)
	}
	if engine.extractCalls != 0 {
		t.Fatal("pipeline continued past a fatal pre-transform")
	}
}

func TestIngestWritesUploadLog(t *testing.T) {
	engine := &fakeEngine{
		classifyReply: "EXAM",
		extractReply:  `[{"subject":"OS"}]`,
	}
	mem := store.NewMemory()
	s := newTestService(engine, mem)

	_, err := s.Ingest(context.Background(), Upload{
		FileName: "exam.txt", MIMEType: "text/plain", Content: []byte("OS exam"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	logs, _ := mem.List(context.Background(), uploadLogCollection)
	if len(logs) != 1 {
		t.Fatalf("upload log entries = %d, want 1", len(logs))
	}
	entry := logs[0]
	if entry["fileName"] != "exam.txt" || entry["status"] != statusSuccess || entry["type"] != "EXAM" {
		t.Fatalf("unexpected log entry: %#v", entry)
	}
}

func TestIngestPartialStatusOnFallback(t *testing.T) {
	engine := &fakeEngine{classifyReply: "EXAM", extractReply: "[]"}
	mem := store.NewMemory()
	s := newTestService(engine, mem)

	res, err := s.Ingest(context.Background(), Upload{
		FileName: "scan.pdf", MIMEType: "application/pdf", Content: []byte("%PDF"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Fallback {
		t.Fatal("empty array must fall back")
	}

	logs, _ := mem.List(context.Background(), uploadLogCollection)
	if logs[0]["status"] != statusPartial {
		t.Fatalf("status = %v, want PARTIAL", logs[0]["status"])
	}
}
