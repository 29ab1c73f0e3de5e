package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetline/recapd/internal/asr"
	"github.com/meetline/recapd/internal/bus"
	"github.com/meetline/recapd/internal/config"
	"github.com/meetline/recapd/internal/ingest"
	"github.com/meetline/recapd/internal/llm"
	"github.com/meetline/recapd/internal/logging"
	"github.com/meetline/recapd/internal/metrics"
	"github.com/meetline/recapd/internal/recap"
	"github.com/meetline/recapd/internal/server"
	"github.com/meetline/recapd/internal/session"
	"github.com/meetline/recapd/internal/storage"
)

func main() {
	cfg, warnings, err := config.Load(os.Getenv(config.EnvPrefix + "CONFIG"))
	if err != nil {
		logging.Init(logging.DefaultConfig())
		log.Fatal().Err(err).Msg("load configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	log.Info().Str("addr", cfg.ListenAddr).Msg("recapd starting")
	for _, w := range warnings {
		log.Warn().Msg(w)
	}

	store := session.NewStore()
	eventBus := bus.New()

	var sink storage.EventSink
	var recorder server.SessionRecorder
	db, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.DBPath).Msg("sqlite unavailable, events will not be persisted locally")
	} else {
		sink = db
		recorder = db
		defer func() { _ = db.Close() }()
	}

	kafkaPub := storage.NewKafkaPublisher(cfg.Kafka)
	defer func() { _ = kafkaPub.Close() }()

	writer := storage.NewWriter(sink, kafkaPub)
	defer writer.Close()

	inferencer := buildInferencer(cfg)
	scheduler := recap.NewScheduler(store, eventBus, inferencer)
	scheduler.SetIdleTimeout(cfg.ParsedConsumerIdle())

	pipeline := ingest.NewPipeline(store, eventBus, writer, scheduler)

	var asrFactory asr.Factory
	if cfg.DeepgramAPIKey != "" {
		asrFactory = &asr.DeepgramFactory{APIKey: cfg.DeepgramAPIKey, Model: cfg.ASRModel}
	}

	deps := server.Deps{
		Store:    store,
		Bus:      eventBus,
		Pipeline: pipeline,
		Signer:   server.NewTokenSigner(cfg.TokenSecret, cfg.ParsedTokenTTL()),
		ASR:      asrFactory,
		Recorder: recorder,
		Metrics:  metrics.Default,
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: server.Handler(deps)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server")
	}
	log.Info().Msg("recapd stopped")
}

// buildInferencer returns nil when no provider key is configured;
// recaps then come from the deterministic fallback.
func buildInferencer(cfg config.Config) recap.Inferencer {
	key := cfg.RecapAPIKey()
	if key == "" {
		return nil
	}
	provider, model, err := llm.ParseModel(cfg.RecapModel)
	if err != nil {
		log.Warn().Err(err).Str("model", cfg.RecapModel).Msg("invalid recap model, using fallback recaps")
		return nil
	}
	client, err := llm.NewClient(provider, key, model)
	if err != nil {
		log.Warn().Err(err).Str("model", cfg.RecapModel).Msg("recap client unavailable, using fallback recaps")
		return nil
	}
	log.Info().Str("model", cfg.RecapModel).Msg("recap inference enabled")
	return recap.NewLLMInferencer(client)
}
