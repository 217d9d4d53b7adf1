package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"transcript-pipeline/internal/artifact"
	"transcript-pipeline/internal/logger"
	"transcript-pipeline/internal/profile"
	"transcript-pipeline/internal/provider"
	"transcript-pipeline/internal/server"
	"transcript-pipeline/internal/store"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "transcript-api").Info("starting api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(envOr("DB_PATH", "jobs.db"))
	if err != nil {
		log.WithError(err).Fatal("failed to open job store")
	}

	artifacts := buildArtifactStore(ctx, log)
	profiles, err := profile.NewStore(envOr("PROFILES_DIR", "profiles"), envOr("PROMPTS_DIR", "prompts"))
	if err != nil {
		log.WithError(err).Fatal("failed to load profiles")
	}
	log.WithField("profiles", profiles.Names()).Info("profiles loaded")

	uploadDir := envOr("UPLOAD_DIR", "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create upload directory")
	}

	srv := &http.Server{
		Addr:         ":" + envOr("PORT", "8080"),
		Handler:      server.New(st, artifacts, profiles, provider.Default(), uploadDir).Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown did not complete cleanly")
	}
}

func buildArtifactStore(ctx context.Context, log *logger.Logger) artifact.Store {
	if os.Getenv("ARTIFACT_BACKEND") == "s3" {
		s3, err := artifact.NewS3Store(ctx, artifact.S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    envOr("S3_BUCKET", "job-artifacts"),
			UseSSL:    os.Getenv("S3_USE_SSL") == "true",
		})
		if err != nil {
			log.WithError(err).Fatal("failed to connect to s3")
		}
		return s3
	}

	fs, err := artifact.NewFSStore(envOr("ARTIFACT_DIR", "job_data"))
	if err != nil {
		log.WithError(err).Fatal("failed to open artifact directory")
	}
	return fs
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
