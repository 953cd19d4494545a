package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/maison-living/backend-maison/internal/app"
	"github.com/maison-living/backend-maison/internal/common"
	"github.com/maison-living/backend-maison/internal/config"
	"github.com/maison-living/backend-maison/internal/notify"
	"github.com/maison-living/backend-maison/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	srv, err := app.NewTaskServer(cfg.RedisURL, cfg.WorkerConcurrency)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise task server")
	}

	// SMTP wiring lives behind common.EmailSender; until a real transport is
	// configured the worker logs deliveries through the nop sender.
	var mail common.EmailSender = common.NopEmailSender{}

	emailWorker := &notify.EmailWorker{
		Mail:   mail,
		Logger: logger.With().Str("component", "email").Logger(),
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(notify.TypeEmailDelivery, emailWorker.HandleEmailDelivery)

	if cfg.OpsWebhookURL != "" {
		if err := notify.ValidateWebhookURL(cfg.OpsWebhookURL); err != nil {
			logger.Fatal().Err(err).Msg("invalid OPS_WEBHOOK_URL")
		}
		sink := &notify.WebhookSink{
			URL:    cfg.OpsWebhookURL,
			Secret: cfg.OpsWebhookSecret,
			Client: notify.HTTPClient(envInt("OPS_WEBHOOK_TIMEOUT_MS", 5000)),
			Logger: logger.With().Str("component", "webhook").Logger(),
		}
		mux.HandleFunc(notify.TypeWebhookDelivery, sink.HandleWebhookDelivery)
	}

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(envOrDefault(key, ""))
	if err != nil {
		return fallback
	}
	return n
}
