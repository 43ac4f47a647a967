package ingest

import (
	"context"
	"errors"

	"campushub/internal/genai"
	"campushub/internal/store"
)

// fakeEngine scripts the external extraction engine.
type fakeEngine struct {
	unconfigured bool

	classifyReply string
	classifyErr   error
	classifyCalls int
	lastPrompt    string

	extractReply string
	extractErr   error
	extractCalls int
	lastParts    []genai.Part
	lastSchema   any
}

func (f *fakeEngine) Configured() bool { return !f.unconfigured }

func (f *fakeEngine) Complete(_ context.Context, prompt string) (string, error) {
	f.classifyCalls++
	f.lastPrompt = prompt
	return f.classifyReply, f.classifyErr
}

func (f *fakeEngine) GenerateStructured(_ context.Context, parts []genai.Part, responseSchema any) (string, error) {
	f.extractCalls++
	f.lastParts = parts
	f.lastSchema = responseSchema
	return f.extractReply, f.extractErr
}

// failingStore wraps the in-memory store and fails writes for records
// carrying a poison marker, to exercise per-record isolation.
type failingStore struct {
	*store.Memory
}

var errPoisoned = errors.New("store rejected record")

func (f *failingStore) Insert(ctx context.Context, collection string, rec store.Record) (string, error) {
	if rec["poison"] == true {
		return "", errPoisoned
	}
	return f.Memory.Insert(ctx, collection, rec)
}

func (f *failingStore) Upsert(ctx context.Context, collection, id string, rec store.Record) error {
	if rec["poison"] == true {
		return errPoisoned
	}
	return f.Memory.Upsert(ctx, collection, id, rec)
}
