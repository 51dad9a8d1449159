package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus/membus"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/bus/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/circuitbreaker"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/delivery"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/delivery/transports"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/dispatch"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/health"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/idempotency"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/ingress"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/publisher"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/ratelimit"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/registry"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/store/postgres"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/transport/rest"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/ws"
)

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
	breakerHalfOpen     = 1
)

// App holds all dependencies for the service
type App struct {
	Config *config.Config
	Server *http.Server
	DB     *sql.DB
	Redis  *redis.Client
	Bus    bus.Bus

	Publisher   *publisher.Publisher
	Ingress     *ingress.Router
	Dispatchers []*dispatch.Dispatcher
}

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	u, _ := url.Parse(cfg.DatabaseURL)
	zlog.Info().
		Str("db_user", u.User.Username()).
		Str("db_host", u.Host).
		Str("db_db", u.Path).
		Msg("db config loaded")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("db open failed")
	}
	defer db.Close()

	{
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			zlog.Fatal().Err(err).Msg("db ping failed")
		}
	}

	app := NewApp(cfg, db)
	defer func() { _ = app.Redis.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Ingress.Run(ctx)
	}()
	for _, d := range app.Dispatchers {
		wg.Add(1)
		go func(d *dispatch.Dispatcher) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}

	go func() {
		zlog.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("server crashed")
		}
	}()

	<-ctx.Done()
	zlog.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("server shutdown failed")
	}
	app.Publisher.Drain()
	wg.Wait()

	if closer, ok := app.Bus.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	zlog.Info().Msg("stopped")
}

func NewApp(cfg *config.Config, db *sql.DB) *App {
	// 1) Infrastructure
	events := postgres.New(db)
	prefs := postgres.NewPrefStore(db)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("bad REDIS_URL")
	}
	redisClient := redis.NewClient(redisOpts)

	b := newBus(cfg)

	dedup := idempotency.NewStore(redisClient)
	reg := registry.New(redisClient)
	limiter := ratelimit.NewRateLimiter(redisClient)

	// 2) Pipeline
	pub := publisher.New(b, cfg.IngressTopic, cfg.PublishChunk, cfg.PublishWorkers, cfg.PublishAttempts)
	router := ingress.New(b, cfg, events, prefs, dedup)

	apns := transports.NewAPNSClient(cfg.APNSBaseURL, cfg.APNSAuthToken, cfg.APNSTopic, cfg.PushTimeout)
	channelTransports := map[domain.Channel]delivery.Transport{
		domain.ChannelSMS:   transports.NewSMSTransport(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.SMSTimeout),
		domain.ChannelEmail: transports.NewEmailTransport(cfg.SendGridURL, cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailTimeout),
		domain.ChannelPush:  transports.NewPushTransport(reg, apns, cfg.PushTimeout),
	}

	dispatchers := make([]*dispatch.Dispatcher, 0, len(channelTransports))
	for _, ch := range domain.Channels() {
		breaker := circuitbreaker.NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout, breakerHalfOpen)
		worker := delivery.NewWorker(ch, channelTransports[ch], events, b, cfg.DLQQueue, cfg.MaxRetries, cfg.BackoffBase, breaker)

		pair, err := cfg.ChannelQueues(string(ch))
		if err != nil {
			zlog.Fatal().Err(err).Msg("bad channel queue config")
		}
		dispatchers = append(dispatchers, dispatch.New(b, pair.Critical, pair.NonCritical, worker, dispatch.Options{
			BatchSize: cfg.BatchSize,
			Wait:      cfg.ChannelWait,
			IdleSleep: cfg.IdleSleep,
		}))
	}

	// 3) Transport
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, reg, cfg.RelayBaseURL)

	checker := health.NewChecker(5 * time.Second)
	checker.Register("postgres", db.PingContext)
	checker.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	if rb, ok := b.(*rabbitmq.Bus); ok {
		checker.Register("rabbitmq", rb.Ping)
	}

	h := rest.NewHandler(pub, events, limiter, rest.RateLimitConfig{
		Enabled: cfg.RLEnabled,
		Limit:   cfg.RLLimit,
		Window:  cfg.RLWindow,
	}, checker)

	// 4) Router + server
	httpHandler := rest.NewRouter(h, wsServer)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpHandler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &App{
		Config:      cfg,
		Server:      srv,
		DB:          db,
		Redis:       redisClient,
		Bus:         b,
		Publisher:   pub,
		Ingress:     router,
		Dispatchers: dispatchers,
	}
}

// newBus connects to RabbitMQ and declares the queue topology. A dev
// environment without a broker falls back to the in-process bus.
func newBus(cfg *config.Config) bus.Bus {
	if cfg.RabbitURL == "" {
		zlog.Warn().Msg("RABBIT_URL empty: using in-process bus")
		mb := membus.New()
		for _, q := range cfg.AllQueues() {
			mb.Declare(q)
		}
		mb.Bind(cfg.IngressTopic, cfg.IngressQueue)
		return mb
	}

	rb, err := rabbitmq.New(cfg.RabbitURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("rabbitmq connect failed")
	}
	if err := rb.DeclareTopology(cfg.IngressTopic, cfg.IngressQueue, cfg.AllQueues()); err != nil {
		zlog.Fatal().Err(err).Msg("rabbitmq topology declare failed")
	}
	zlog.Info().Str("topic", cfg.IngressTopic).Msg("rabbitmq ready")
	return rb
}
