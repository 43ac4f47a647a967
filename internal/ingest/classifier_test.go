package ingest

import (
	"context"
	"strings"
	"testing"

	"campushub/internal/category"
	"campushub/internal/store"
)

func TestResolveCategoryDeclaredOverridesInference(t *testing.T) {
	engine := &fakeEngine{classifyReply: "EXAM"}
	s := New(engine, store.NewMemory())

	got := s.resolveCategory(context.Background(), "SCHOLARSHIPS", "irrelevant sample")
	if got != category.Scholarship {
		t.Fatalf("declared category ignored: got %s", got)
	}
	if engine.classifyCalls != 0 {
		t.Fatal("engine consulted despite valid declared category")
	}
}

func TestResolveCategoryGenericLabelTriggersInference(t *testing.T) {
	engine := &fakeEngine{classifyReply: "TIMETABLE"}
	s := New(engine, store.NewMemory())

	got := s.resolveCategory(context.Background(), "AUTO", "Monday lecture plan")
	if got != category.Timetable {
		t.Fatalf("got %s, want TIMETABLE", got)
	}
	if engine.classifyCalls != 1 {
		t.Fatalf("engine calls = %d, want 1", engine.classifyCalls)
	}
}

func TestResolveCategoryTruncatesSample(t *testing.T) {
	engine := &fakeEngine{classifyReply: "EVENT"}
	s := New(engine, store.NewMemory())

	long := strings.Repeat("x", sampleLimit*3)
	s.resolveCategory(context.Background(), "", long)
	if len(engine.lastPrompt) > sampleLimit+500 {
		t.Fatalf("prompt not bounded: %d bytes", len(engine.lastPrompt))
	}
}

func TestScanForCategoryVerboseReply(t *testing.T) {
	cases := map[string]category.Category{
		"I believe this is an EXAM notice.":             category.Exam,
		"Category: scholarship (merit based)":           category.Scholarship,
		"timetable":                                     category.Timetable,
		"This looks like an internship posting to me.":  category.Internship,
		"Definitely a broadcast for all students":       category.Announcement,
		"The label is EVENTS.":                          category.Event,
		"no recognizable label here":                    category.Default,
		"": category.Default,
	}
	for reply, want := range cases {
		if got := scanForCategory(reply); got != want {
			t.Errorf("scanForCategory(%q) = %s, want %s", reply, got, want)
		}
	}
}

func TestResolveCategoryEngineFailureFallsBack(t *testing.T) {
	engine := &fakeEngine{classifyErr: context.DeadlineExceeded}
	s := New(engine, store.NewMemory())

	if got := s.resolveCategory(context.Background(), "", "anything"); got != category.Default {
		t.Fatalf("engine failure must fall back to %s, got %s", category.Default, got)
	}
}

func TestClassifierOutputClosure(t *testing.T) {
	valid := make(map[category.Category]bool)
	for _, c := range category.All() {
		valid[c] = true
	}
	replies := []string{
		"EXAM", "garbage", "", "SCHOLARSHIPSSS", "ANNOUNCEMENT maybe?",
		"\x00\xff binary", "EXAMPLE OF NOTHING", "complaint about hostel food",
	}
	for _, reply := range replies {
		if got := scanForCategory(reply); !valid[got] {
			t.Errorf("scanForCategory(%q) escaped the closed set: %s", reply, got)
		}
	}
}
