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

	"campus-rides/internal/config"
	"campus-rides/internal/events"
	"campus-rides/internal/live"
	"campus-rides/internal/notify"
	"campus-rides/internal/rides"
	"campus-rides/internal/session"
	"campus-rides/internal/web"
	"campus-rides/migrations"
	"campus-rides/pkg/apiclient"
	"campus-rides/pkg/db"
	"campus-rides/pkg/jwt"
	"campus-rides/pkg/kafka"
	"campus-rides/pkg/logger"
	rredis "campus-rides/pkg/redis"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── 1. Config + logging ──
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger.Setup(cfg.LogLevel, cfg.LogPretty)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// ── 2. PostgreSQL (credential store and/or session audit) ──
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres")
		}
		defer database.Close()

		if err := database.RunMigrations(ctx, migrations.FS); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
	}

	// ── 3. Credential store ──
	var creds session.CredentialStore
	switch cfg.CredentialStore {
	case config.StoreMemory:
		creds = session.NewMemoryStore("")
	case config.StoreFile:
		creds = session.FileStore{Path: cfg.TokenFile}
	case config.StoreRedis:
		redisClient, err := rredis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		creds = redisClient.TokenStore(cfg.StorageKey)
	case config.StorePostgres:
		creds = database.TokenStore(cfg.StorageKey)
	}
	log.Info().Str("store", cfg.CredentialStore).Msg("credential store ready")

	// ── 4. Kafka (optional) ──
	var kafkaClient *kafka.Client
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient = kafka.NewClient(cfg.KafkaBrokers)
		if err := kafkaClient.EnsureTopics(ctx, kafka.TopicSession, kafka.TopicNotifications); err != nil {
			log.Fatal().Err(err).Msg("kafka")
		}
		defer kafkaClient.Close()
	}

	// ── 5. Notifications ──
	origins := web.NewOriginPolicy(cfg.UIOrigins...)
	hub := live.NewHub(live.ChannelSession, live.ChannelRides, live.ChannelNotifications)
	hub.CheckOrigin(origins.Allowed)
	notifiers := notify.Fanout{notify.Log, hub}
	if kafkaClient != nil {
		notifiers = append(notifiers, events.NotificationPublisher(kafkaClient))
	}

	// ── 6. Components ──
	api := apiclient.New(cfg.APIBaseURL, cfg.HTTPTimeout)
	store := session.NewStore(api, creds, notifiers)
	rideCtl := rides.NewController(api, notifiers)

	store.Subscribe(func(c session.Change) {
		claims, _ := jwt.Inspect(c.State.Token)
		hub.Broadcast(live.ChannelSession, c.Event, web.NewSessionView(c.State, claims))
	})
	if kafkaClient != nil {
		store.Subscribe(events.SessionPublisher(kafkaClient))
	}
	if database != nil {
		store.Subscribe(events.SessionAudit(database))
	}
	rideCtl.Subscribe(func(s rides.Snapshot) {
		hub.Broadcast(live.ChannelRides, "rides", s)
	})
	hub.OnConnect(live.ChannelSession, func() any { return web.CurrentSessionView(store) })
	hub.OnConnect(live.ChannelRides, func() any { return rideCtl.Snapshot() })

	// ── 7. Restore session, first ride page ──
	if err := store.Initialize(ctx); err != nil {
		if errors.Is(err, session.ErrSessionInvalid) {
			log.Warn().Err(err).Msg("stored session rejected, signed out")
		} else {
			log.Error().Err(err).Msg("session initialize")
		}
	}
	go func() {
		if err := rideCtl.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("initial ride fetch")
		}
	}()

	// ── 8. HTTP router ──
	r := web.NewRouter(web.NewSessionHandler(store), web.NewRideHandler(rideCtl), hub.Routes(), origins)

	// ── 9. Start server ──
	srv := &http.Server{Addr: "127.0.0.1:" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("backend", cfg.APIBaseURL).Msg("campus-rides listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// ── 10. Graceful shutdown ──
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)
	cancel()
}
