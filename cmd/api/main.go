package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campushub/internal/auth"
	"campushub/internal/category"
	"campushub/internal/config"
	"campushub/internal/genai"
	"campushub/internal/httpmiddleware"
	"campushub/internal/ingest"
	"campushub/internal/queue"
	"campushub/internal/realtime"
	"campushub/internal/store"
)

const campusMapDocument = "campus_map"

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var (
		st store.Store
		db *sql.DB
	)
	if cfg.StoreBackend == "memory" {
		st = store.NewMemory()
	} else {
		var err error
		db, err = store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: db not reachable, falling back to in-memory store: %v", err)
			st = store.NewMemory()
		} else {
			pg := store.NewPostgres(db)
			if err := pg.EnsureSchema(context.Background()); err != nil {
				return err
			}
			st = pg
		}
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campushub:ingest")
	}

	engine := genai.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel)
	if engine.Configured() {
		log.Println("Extraction engine configured:", engine.Model)
	} else {
		log.Println("Extraction engine not configured (GEMINI_API_KEY not set); ingestion disabled")
	}

	svc := ingest.New(engine, st)

	hub := realtime.NewHub(st)
	defer hub.Close()

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS middleware
	r.Use(corsMiddleware())

	// Security headers
	r.Use(securityHeaders())

	// Rate limiting
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := true
		if db != nil {
			dbHealthy = db.PingContext(c.Request.Context()) == nil
		}
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status": "ok",
			"redis":  redisHealthy,
			"db":     dbHealthy,
			"engine": engine.Configured(),
		})
	})

	r.POST("/v1/admin/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if cfg.AdminPassword == "" || req.Username != cfg.AdminUser || req.Password != cfg.AdminPassword {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		tokens, err := auth.Issue(req.Username, "admin", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	// Realtime feed. Read-only snapshots, so no auth gate; clients are
	// campus app instances watching a collection.
	r.GET("/v1/subscribe/:name", func(c *gin.Context) {
		if !validCollection(c.Param("name")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
			return
		}
		realtime.WSHandler(hub)(c)
	})

	authGroup := r.Group("/v1", auth.AdminAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/ingest", func(c *gin.Context) {
		up, ok := bindUpload(c)
		if !ok {
			return
		}

		result, err := svc.Ingest(c.Request.Context(), up)
		if err != nil {
			writeIngestError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"result":     result,
			"collection": result.Category.Collection(),
		})
	})

	authGroup.POST("/ingest/async", func(c *gin.Context) {
		up, ok := bindUpload(c)
		if !ok {
			return
		}

		job := queue.Job{
			ID:               uuid.NewString(),
			FileName:         up.FileName,
			MIMEType:         up.MIMEType,
			DeclaredCategory: up.DeclaredCategory,
			UploadedBy:       up.UploadedBy,
			Content:          up.Content,
		}
		if err := q.Publish(c.Request.Context(), job); err != nil {
			log.Printf("queue publish failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
	})

	authGroup.GET("/collections/:name", func(c *gin.Context) {
		name := c.Param("name")
		if !validCollection(name) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
			return
		}

		recs, err := st.List(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		recs = store.FilterByAudience(recs, c.Query("branch"), c.Query("year"))

		c.JSON(http.StatusOK, gin.H{"collection": name, "records": recs})
	})

	authGroup.DELETE("/collections/:name/:id", func(c *gin.Context) {
		name := c.Param("name")
		if !validCollection(name) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
			return
		}

		if err := st.Delete(c.Request.Context(), name, c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
	})

	authGroup.POST("/complaints", func(c *gin.Context) {
		var req struct {
			Text string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec := store.Record{
			"text":      req.Text,
			"status":    "PENDING",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		id, err := st.Insert(c.Request.Context(), category.Complaint.Collection(), rec)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "status": "PENDING"})
	})

	authGroup.PATCH("/complaints/:id/status", func(c *gin.Context) {
		coll := category.Complaint.Collection()
		rec, err := st.Get(c.Request.Context(), coll, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "complaint not found"})
			return
		}

		next := "RESOLVED"
		if rec["status"] == "RESOLVED" {
			next = "PENDING"
		}
		rec["status"] = next
		if err := st.Upsert(c.Request.Context(), coll, rec.ID(), rec); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": rec.ID(), "status": next})
	})

	authGroup.GET("/campus-map", func(c *gin.Context) {
		doc, err := st.GetDocument(c.Request.Context(), campusMapDocument)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if doc == nil {
			doc = store.Record{}
		}
		c.JSON(http.StatusOK, doc)
	})

	authGroup.PUT("/campus-map", func(c *gin.Context) {
		var doc store.Record
		if err := c.ShouldBindJSON(&doc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := st.SetDocument(c.Request.Context(), campusMapDocument, doc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": campusMapDocument})
	})

	authGroup.GET("/uploads/log", func(c *gin.Context) {
		recs, err := st.List(c.Request.Context(), "upload_logs")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"uploads": recs})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// bindUpload reads an ingestion payload from either a multipart form
// (file field plus optional category/uploaded_by values) or a JSON body.
// On failure it writes the error response itself and returns ok=false.
func bindUpload(c *gin.Context) (ingest.Upload, bool) {
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return ingest.Upload{}, false
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return ingest.Upload{}, false
		}
		return ingest.Upload{
			FileName:         header.Filename,
			MIMEType:         header.Header.Get("Content-Type"),
			DeclaredCategory: c.PostForm("category"),
			UploadedBy:       c.PostForm("uploaded_by"),
			Content:          data,
		}, true
	}

	var body struct {
		FileName         string `json:"file_name" binding:"required"`
		MIMEType         string `json:"mime_type"`
		DeclaredCategory string `json:"category"`
		UploadedBy       string `json:"uploaded_by"`
		Content          string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return ingest.Upload{}, false
	}
	mime := body.MIMEType
	if mime == "" {
		mime = "text/plain"
	}
	return ingest.Upload{
		FileName:         body.FileName,
		MIMEType:         mime,
		DeclaredCategory: body.DeclaredCategory,
		UploadedBy:       body.UploadedBy,
		Content:          []byte(body.Content),
	}, true
}

func writeIngestError(c *gin.Context, err error) {
	var stage *ingest.StageError
	switch {
	case errors.Is(err, ingest.ErrEngineUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &stage):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": stage.Error(), "stage": stage.Stage})
	default:
		log.Printf("ingest failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
	}
}

// validCollection reports whether name is one of the collections the
// pipeline writes to, including the upload trace log.
func validCollection(name string) bool {
	if name == "upload_logs" {
		return true
	}
	for _, cat := range category.All() {
		if cat.Collection() == name {
			return true
		}
	}
	return false
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
