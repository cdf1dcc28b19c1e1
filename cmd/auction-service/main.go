package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gavel-auction-engine/internal/adapters/broadcaster"
	"gavel-auction-engine/internal/adapters/clock"
	"gavel-auction-engine/internal/adapters/db"
	"gavel-auction-engine/internal/adapters/memory"
	"gavel-auction-engine/internal/adapters/nats"
	"gavel-auction-engine/internal/adapters/redis"
	"gavel-auction-engine/internal/adapters/scheduler"
	"gavel-auction-engine/internal/adapters/ws"
	"gavel-auction-engine/internal/app"
	"gavel-auction-engine/internal/config"
	"gavel-auction-engine/internal/domain/auction"
	"gavel-auction-engine/internal/ports/outbound"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting Gavel Auction Engine...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store     outbound.AuctionStore
		directory outbound.Directory
	)

	if cfg.Database.UsesPostgres() {
		dbConn, err := db.NewConnection(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbConn.Close()

		if cfg.Database.AutoMigrate {
			if err := dbConn.InitSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize database schema")
			}
		}

		store = db.NewStore(dbConn)
		directory = db.NewCatalogRepository(dbConn)
		log.Info().Msg("PostgreSQL store initialized")
	} else {
		catalog := memory.NewDirectory()
		seeded, err := catalog.Load(cfg.Database.Products)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load memory product catalog")
		}
		if seeded == 0 {
			log.Warn().Msg("Memory product catalog is empty, create_auction fails until MEMORY_PRODUCTS is set")
		}

		store = memory.NewStore()
		directory = catalog
		log.Warn().Int("products", seeded).Msg("Using in-memory store, state is lost on restart")
	}

	// Notifiers are optional; each one is added only when configured
	var (
		notifiers   []outbound.Notifier
		liveUpdates outbound.Broadcaster
	)

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(cfg)
		if err := redis.PingRedis(ctx, redisClient); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis connection established")

		redisBroadcaster := broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
			RedisClient: redisClient,
			Logger:      log.Logger,
		})
		defer redisBroadcaster.Close()

		notifiers = append(notifiers, redisBroadcaster)
		liveUpdates = redisBroadcaster
		log.Info().Msg("Redis broadcaster initialized")
	}

	if cfg.NATS.URL != "" {
		publisher, err := nats.NewPublisher(ctx, nats.PublisherParams{
			URL:    cfg.NATS.URL,
			Stream: cfg.NATS.Stream,
			Logger: log.Logger,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer publisher.Close()

		notifiers = append(notifiers, publisher)
		log.Info().Str("stream", cfg.NATS.Stream).Msg("NATS event publisher initialized")
	}

	fanout := broadcaster.NewFanout(notifiers...)
	notifier := broadcaster.NewAsyncNotifier(broadcaster.AsyncNotifierParams{
		Notifier:  fanout,
		QueueSize: cfg.Events.QueueSize,
		Timeout:   cfg.Events.PublishTimeout,
		Logger:    log.Logger,
	})
	systemClock := clock.System{}

	// Create business services
	lifecycleService := app.NewLifecycleService(app.LifecycleServiceParams{
		Store:           store,
		Directory:       directory,
		Notifier:        notifier,
		Clock:           systemClock,
		CloseMaxRetries: cfg.Scheduler.CloseMaxRetries,
		Retries:         cfg.Bidding.MaxRetries,
		Logger:          log.Logger,
	})
	bidService := app.NewBidService(app.BidServiceParams{
		Store:    store,
		Notifier: notifier,
		Clock:    systemClock,
		AntiSnipe: auction.AntiSnipePolicy{
			Enabled:   cfg.Bidding.AntiSnipe.Enabled,
			Window:    cfg.Bidding.AntiSnipe.Window,
			Extension: cfg.Bidding.AntiSnipe.Extension,
		},
		MaxRetries:   cfg.Bidding.MaxRetries,
		RetryBackoff: cfg.Bidding.RetryBackoff,
		Logger:       log.Logger,
	})

	log.Info().Int("notifiers", fanout.Len()).Msg("Business services initialized")

	closingScheduler := scheduler.NewClosingScheduler(scheduler.ClosingSchedulerParams{
		Lifecycle: lifecycleService,
		Clock:     systemClock,
		Interval:  cfg.Scheduler.Interval,
		BatchSize: cfg.Scheduler.BatchSize,
		Workers:   cfg.Scheduler.Workers,
		Logger:    log.Logger,
	})

	closingScheduler.Start()
	log.Info().Dur("interval", cfg.Scheduler.Interval).Msg("Closing scheduler started")

	wsServer := ws.NewServer(ws.ServerParams{
		Config:         cfg,
		AuctionService: lifecycleService,
		BidService:     bidService,
		Broadcaster:    liveUpdates,
		Logger:         log.Logger,
	})

	// Start WebSocket server
	go func() {
		if err := wsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start WebSocket server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	closingScheduler.Stop()
	log.Info().Msg("Closing scheduler stopped")

	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping WebSocket server")
	}

	notifier.Close()
	log.Info().Msg("Pending events delivered")

	log.Info().Msg("Graceful shutdown completed")
}

func initLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Console format for development
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &log.Logger
}
