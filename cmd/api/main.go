package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/reelami/reelads/internal/api"
	"github.com/reelami/reelads/internal/config"
	"github.com/reelami/reelads/internal/db"
	"github.com/reelami/reelads/internal/models"
	"github.com/reelami/reelads/internal/notify"
	"github.com/reelami/reelads/internal/projectstore"
	"github.com/reelami/reelads/internal/queue"
	"github.com/reelami/reelads/internal/services"
	"github.com/reelami/reelads/internal/storage"
	"github.com/reelami/reelads/internal/worker"
)

func main() {
	log.Println("Starting ReelAds API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// In-memory project store; evicted projects lose their working directory
	store, err := projectstore.New(cfg.ProjectCacheSize, projectstore.WorkdirCleanup(cfg.WorkDir))
	if err != nil {
		log.Fatalf("Failed to create project store: %v", err)
	}
	log.Printf("Project store ready (capacity: %d)", cfg.ProjectCacheSize)

	openaiSvc := services.NewOpenAIService(cfg.OpenAIKey)

	// Create API handler
	handler := api.NewHandler(database, q, store, stor, openaiSvc, cfg.WorkDir)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		ffmpegSvc := services.NewFFmpegService(cfg.WorkDir)

		// TTS providers — a project uses whichever its selected voice names
		ttsProviders := map[models.TTSProvider]services.TTSService{
			models.TTSProviderOpenAI: services.NewOpenAITTSService(cfg.OpenAIKey),
		}
		if cfg.ElevenLabsKey != "" {
			ttsProviders[models.TTSProviderElevenLabs] = services.NewElevenLabsService(cfg.ElevenLabsKey)
			log.Println("TTS providers: OpenAI, ElevenLabs")
		} else {
			log.Println("TTS providers: OpenAI only (no ELEVENLABS_API_KEY)")
		}

		webhookURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/webhook/replicate"
		lipsyncSvc := services.NewReplicateService(cfg.ReplicateToken, webhookURL)
		log.Printf("Lip-sync webhook callback: %s", webhookURL)

		// Notifications are optional; the dispatcher no-ops with zero sinks
		var notifiers []notify.Notifier
		if cfg.SlackWebhookURL != "" {
			notifiers = append(notifiers, notify.NewSlackNotifier(cfg.SlackWebhookURL))
			log.Println("Slack notifications enabled")
		}
		if cfg.ResendAPIKey != "" {
			notifiers = append(notifiers, notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.EmailFromAddress))
			log.Println("Email notifications enabled")
		}
		dispatcher := notify.NewDispatcher(notifiers...)

		w := worker.New(
			database, q, store, stor,
			openaiSvc, ttsProviders, lipsyncSvc, ffmpegSvc, dispatcher,
			cfg.ConvergenceMaxAttempts,
			time.Duration(cfg.ConvergenceIntervalSecs)*time.Second,
		)

		// Start worker in background
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
