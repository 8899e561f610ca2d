package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"magnata-crm/config"
	"magnata-crm/consumer"
	"magnata-crm/dispatch"
	"magnata-crm/handlers"
	"magnata-crm/middleware"
	"magnata-crm/models"
	"magnata-crm/monitoring"
	"magnata-crm/notify"
	"magnata-crm/session"
	"magnata-crm/utils"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type backend interface {
	models.Repository
	models.ReminderRepository
	models.UserRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.InitLogger(config.EnvLocal)
		log.Fatal().Err(err).Msg("failed to load config")
	}
	utils.InitLogger(cfg.Env)
	if cfg.Env == config.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.SentryDSN != "" {
		if err := utils.InitSentry(cfg.SentryDSN, cfg.Env, cfg.Version); err != nil {
			log.Warn().Err(err).Msg("sentry disabled")
		}
		defer sentry.Flush(2 * time.Second)
	}

	monitoring.Init()

	repo, err := openBackend(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("storage", cfg.Storage).Msg("failed to open storage")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error().Err(err).Msg("error closing storage")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := connectRedis(cfg)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error().Err(err).Msg("error closing Redis connection")
			}
		}()
	}

	kafkaProducer, err := utils.NewKafkaProducer(cfg.KafkaBroker)
	if err != nil {
		log.Warn().Err(err).Str("broker", cfg.KafkaBroker).Msg("kafka unavailable, patient events and alert events disabled")
	} else {
		defer kafkaProducer.Close()
	}

	var es utils.ElasticsearchClient
	var indexer *consumer.PatientConsumer
	if cfg.ElasticURL != "" {
		es, err = utils.NewElasticsearchClient(cfg.ElasticURL)
		if err != nil {
			log.Warn().Err(err).Msg("elasticsearch unavailable, search falls back to in-memory filtering")
		} else if err := es.EnsurePatientIndex(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to prepare patient index")
		}
	}
	if es != nil && kafkaProducer != nil {
		indexer = consumer.NewPatientConsumer(cfg.KafkaBroker, es)
		indexer.Start(ctx)
	}

	newAlerter := func(userID string) notify.Alerter {
		if kafkaProducer != nil {
			return notify.NewKafkaAlerter(kafkaProducer, userID)
		}
		return notify.LogAlerter{UserID: userID}
	}
	sessions, err := session.NewManager(ctx, repo, notify.Config{
		Checkpoints:  cfg.Notifications.Checkpoints,
		Tolerance:    cfg.Notifications.Tolerance,
		PollInterval: cfg.Notifications.PollInterval,
		Cooldown:     cfg.Notifications.Cooldown,
		Location:     cfg.Location,
	}, newAlerter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session manager")
	}
	sessions.StartSweeper(ctx, time.Minute)

	var gateway dispatch.Gateway
	if cfg.Reminder.ZAPIInstanceID != "" && cfg.Reminder.ZAPIToken != "" {
		gateway = utils.NewWhatsAppClient(cfg.Reminder.ZAPIBaseURL, cfg.Reminder.ZAPIInstanceID, cfg.Reminder.ZAPIToken)
	} else {
		log.Warn().Msg("Z-API credentials not configured, reminder dispatch will fail")
	}
	var locker dispatch.Locker
	if redisClient != nil {
		locker = redisClient
	}
	dispatcher := dispatch.NewDispatcher(repo, gateway, locker)

	scheduler, err := dispatch.NewScheduler(dispatcher, cfg.Reminder.SendAt, cfg.Location)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create reminder scheduler")
	}
	if gateway != nil {
		scheduler.Start(ctx)
	}

	router := handlers.NewRouter(handlers.Deps{
		Users:      repo,
		Sessions:   sessions,
		Tokens:     middleware.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
		Dispatcher: dispatcher,
		Redis:      redisClient,
		Kafka:      kafkaProducer,
		Search:     es,
		ServiceKey: cfg.ServiceKey,
		Location:   cfg.Location,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("storage", cfg.Storage).Msg("server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	sessions.Wait()
	sessions.CloseAll()
	scheduler.Wait()
	if indexer != nil {
		indexer.Stop()
	}
}

func openBackend(cfg *config.Config) (backend, error) {
	if cfg.Storage == config.StorageFile {
		return models.NewFileRepository(cfg.DataFile)
	}
	return models.NewPostgresRepository(cfg.Database.DSN())
}

// connectRedis retries a few times before giving up. Without Redis the
// dispatch lock is skipped.
func connectRedis(cfg *config.Config) utils.RedisClient {
	const maxRetries = 5
	retryDelay := 3 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		client, err := utils.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err == nil {
			return client
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", i+1).Msg("failed to connect to Redis")
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	if cfg.Env == config.EnvProd {
		log.Fatal().Err(lastErr).Int("attempts", maxRetries).Msg("failed to initialize Redis")
	}
	log.Warn().Err(lastErr).Msg("continuing without Redis")
	return nil
}
