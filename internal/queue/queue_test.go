package queue

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := Job{
		ID:               "job-1",
		FileName:         "exams.pdf",
		MIMEType:         "application/pdf",
		DeclaredCategory: "EXAM",
		Content:          []byte{0x25, 0x50, 0x44, 0x46},
	}
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("publish: %v", err)
	}

	jobs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	select {
	case got := <-jobs:
		if got.ID != job.ID || got.FileName != job.FileName {
			t.Fatalf("unexpected job: %#v", got)
		}
		if !bytes.Equal(got.Content, job.Content) {
			t.Fatal("content corrupted in transit")
		}
	case <-time.After(time.Second):
		t.Fatal("no job delivered")
	}
}

func TestInMemoryPublishRespectsCancel(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Publish(ctx, Job{ID: "x"}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
