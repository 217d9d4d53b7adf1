package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"transcript-pipeline/internal/artifact"
	"transcript-pipeline/internal/events"
	"transcript-pipeline/internal/llm"
	"transcript-pipeline/internal/logger"
	"transcript-pipeline/internal/pipeline"
	"transcript-pipeline/internal/profile"
	"transcript-pipeline/internal/provider"
	"transcript-pipeline/internal/scheduler"
	"transcript-pipeline/internal/store"
	"transcript-pipeline/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "transcript-worker").Info("starting worker")

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

	transcriber := transcription.NewWhisperClient(
		envOr("WHISPER_BASE_URL", "https://api.groq.com/openai/v1"),
		os.Getenv("WHISPER_API_KEY"),
		os.Getenv("WHISPER_MODEL"),
	)

	var diarizer transcription.Diarizer = transcription.NoopDiarizer{}
	if base := os.Getenv("DIARIZER_BASE_URL"); base != "" {
		diarizer = transcription.NewHTTPDiarizer(base, os.Getenv("DIARIZER_API_KEY"))
	} else {
		log.Info("no diarizer configured, transcripts get a single speaker")
	}

	var publisher events.Publisher = events.LogPublisher{}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rp, err := events.NewRedisPublisher(ctx, addr)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, falling back to log events")
		} else {
			publisher = rp
			log.WithField("addr", addr).Info("publishing job events to redis")
		}
	}

	orch := pipeline.NewOrchestrator(
		st, artifacts, profiles,
		transcriber, diarizer,
		pipeline.NewRunner(provider.Default(), llm.NewClient()),
		publisher,
	)

	sched := scheduler.New(st, orch, scheduler.Config{
		Workers:      envInt("WORKERS", 2),
		PollInterval: time.Duration(envInt("POLL_INTERVAL_SEC", 3)) * time.Second,
	})
	if err := sched.Run(ctx); err != nil {
		log.WithError(err).Fatal("scheduler terminated")
	}
	log.Info("worker stopped")
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
		log.Info("storing artifacts in s3")
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

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
