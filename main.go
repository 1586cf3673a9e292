package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pov-scribe/backend/internal/api"
	"github.com/pov-scribe/backend/internal/auth"
	"github.com/pov-scribe/backend/internal/config"
	"github.com/pov-scribe/backend/internal/db"
	"github.com/pov-scribe/backend/internal/job"
	"github.com/pov-scribe/backend/internal/pipeline"
)

func main() {
	cfg := config.Load()

	// Ensure data directories exist
	os.MkdirAll(cfg.DataPath, 0755)
	os.MkdirAll(cfg.UploadPath, 0755)
	os.MkdirAll(cfg.OutputPath, 0755)

	// Initialize database
	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Ensure admin user exists
	if err := database.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	log.Printf("Admin user ensured: %s", cfg.AdminUsername)

	// Build the pipeline; construction fails when ffmpeg/ffprobe are missing
	orch, err := pipeline.New(pipeline.Options{
		WhisperURL:   cfg.WhisperURL,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
		ScratchRoot:  cfg.ScratchPath,
		OutputRoot:   cfg.OutputPath,
	})
	if err != nil {
		log.Fatalf("Pipeline unavailable: %v", err)
	}
	env := orch.Environment()
	log.Printf("Environment: ffmpeg=%t ffprobe=%t downloader=%t whisper=%t narrator=%s",
		env.FFmpeg, env.FFprobe, env.Downloader, env.WhisperServer, env.NarratorEngine)

	// Job queue with the pipeline handler
	jobQueue := job.NewJobQueue(database.DB())
	defer jobQueue.Stop()
	svc := pipeline.NewService(orch)
	jobQueue.RegisterHandler(job.JobPipelineRun, svc.HandleJob)

	// Initialize JWT service
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Create router
	router := api.NewRouter(database, jwtService, cfg, jobQueue, svc, orch)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Output path: %s", cfg.OutputPath)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		jobQueue.Stop()
		database.Close()
		os.Exit(0)
	}()

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
