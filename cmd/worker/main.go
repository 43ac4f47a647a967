package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campushub/internal/config"
	"campushub/internal/genai"
	"campushub/internal/ingest"
	"campushub/internal/queue"
	"campushub/internal/store"
)

// Worker consumes queued uploads and runs them through the ingestion
// pipeline: classify, extract, normalize, merge into the shared store.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var st store.Store
	if cfg.StoreBackend == "memory" {
		st = store.NewMemory()
	} else {
		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer db.Close()
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("schema init failed: %v", err)
		}
		st = pg
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campushub:ingest")
	}

	engine := genai.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel)
	if !engine.Configured() {
		log.Println("WARNING: extraction engine not configured (GEMINI_API_KEY not set)")
		log.Println("Worker will reject jobs until a key is provided")
	} else {
		log.Println("Extraction engine configured:", engine.Model)
	}

	svc := ingest.New(engine, st)

	jobs, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for uploads...")
	for job := range jobs {
		log.Printf("processing job %s (%s)", job.ID, job.FileName)

		result, err := svc.Ingest(ctx, ingest.Upload{
			FileName:         job.FileName,
			MIMEType:         job.MIMEType,
			DeclaredCategory: job.DeclaredCategory,
			UploadedBy:       job.UploadedBy,
			Content:          job.Content,
		})
		if err != nil {
			var stage *ingest.StageError
			switch {
			case errors.Is(err, ingest.ErrEngineUnavailable):
				log.Printf("job %s rejected: %v", job.ID, err)
			case errors.As(err, &stage):
				log.Printf("job %s failed at %s stage: %v", job.ID, stage.Stage, stage.Err)
			default:
				log.Printf("job %s failed: %v", job.ID, err)
			}
			continue
		}

		log.Printf("job %s done: %d record(s) into %s (failed=%d, fallback=%v)",
			job.ID, result.RecordCount, result.Category.Collection(), result.Failed, result.Fallback)

		time.Sleep(10 * time.Millisecond) // Small delay between jobs
	}

	log.Println("worker stopped")
}
