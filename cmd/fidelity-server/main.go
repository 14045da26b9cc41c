package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fidelity/internal/config"
	fidelityerrors "fidelity/internal/errors"
	"fidelity/internal/genai"
	"fidelity/internal/judge"
	"fidelity/internal/logging"
	"fidelity/internal/pipeline"
	"fidelity/internal/prompts"
	"fidelity/internal/report"
	"fidelity/internal/server/app"
	serverHTTP "fidelity/internal/server/http"
	"fidelity/internal/storage/blobstore"
)

func main() {
	logger := logging.NewComponentLogger("Main")
	logger.Info("Starting fidelity evaluation server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.SetDefaultLevel(logging.ParseLevel(cfg.LogLevel))

	logger.Info("=== Server Configuration ===")
	logger.Info("Environment: %s", cfg.Environment)
	logger.Info("Port: %s", cfg.Port)
	logger.Info("Blob dir: %s", cfg.BlobDir)
	logger.Info("Bucket: %s", cfg.Bucket)
	logger.Info("Passing threshold: %.2f", cfg.PassingThreshold)
	logger.Info("Max attempts: %d", cfg.MaxAttempts)
	logger.Info("Batch concurrency: %d", cfg.BatchConcurrency)
	logger.Info("Artifact kind: %s", cfg.ArtifactKind)
	logger.Info("===========================")

	router, err := buildRouter(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

func buildRouter(cfg config.Config) (http.Handler, error) {
	store, err := blobstore.NewFilesystemStore(cfg.BlobDir)
	if err != nil {
		return nil, err
	}

	loader, err := prompts.NewLoader()
	if err != nil {
		return nil, err
	}

	retryConfig := fidelityerrors.RetryConfig{
		MaxAttempts:  cfg.GenRetryAttempts,
		BaseDelay:    cfg.GenRetryBaseDelay,
		MaxDelay:     cfg.GenRetryMaxDelay,
		Multiplier:   2.0,
		JitterFactor: cfg.GenRetryJitter,
	}

	descriptionModel, err := genai.NewHTTPClient(genai.Config{
		BaseURL: cfg.DescriptionModelURL,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}
	generationModel, err := genai.NewHTTPClient(genai.Config{
		BaseURL: cfg.GenerationModelURL,
		APIKey:  cfg.APIKey,
		Timeout: 5 * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	judgeClient, err := judge.NewHTTPClient(judge.Config{
		BaseURL: cfg.JudgeURL,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	describerModel := genai.NewRetryClient("description-model", descriptionModel, retryConfig)
	generatorModel := genai.NewRetryClient("generation-model", generationModel, retryConfig)

	describer := pipeline.NewDescriber(describerModel, loader)
	generator := pipeline.NewGenerator(generatorModel, store, loader, pipeline.GeneratorConfig{
		Scheme:       "blob",
		Bucket:       cfg.Bucket,
		ArtifactKind: cfg.ArtifactKind,
	})
	scorer := pipeline.NewScorer(judgeClient, pipeline.ScorerConfig{
		MaxRetries: cfg.RubricMaxRetries,
		RetryDelay: cfg.RubricRetryDelay,
	})
	refiner := pipeline.NewRefiner(describerModel, loader)

	controller := pipeline.NewController(describer, generator, scorer, refiner, pipeline.ControllerConfig{
		PassingThreshold:              cfg.PassingThreshold,
		MaxAttempts:                   cfg.MaxAttempts,
		ConsumeAttemptOnEmptyArtifact: cfg.ConsumeAttemptOnEmptyArtifact,
	})

	renderer := report.NewRenderer(store, cfg.ReportPath, cfg.PassingThreshold)
	runner := pipeline.NewBatchRunner(controller, renderer, cfg.BatchConcurrency)

	listPrefix := "blob://" + cfg.Bucket + "/reference/"
	batches := app.NewBatchService(runner, store, listPrefix)
	sessions := app.NewSessionService(controller)

	listings, err := serverHTTP.NewListingCache(cfg.ListingCacheSize, cfg.ListingCacheTTL)
	if err != nil {
		return nil, err
	}

	apiHandler := serverHTTP.NewAPIHandler(batches, sessions, store, listings, listPrefix, cfg.ReportPath)
	sseHandler := serverHTTP.NewSSEHandler(batches)

	return serverHTTP.NewRouter(apiHandler, sseHandler, cfg.Environment, cfg.AllowedOrigins), nil
}
