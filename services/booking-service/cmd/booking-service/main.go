package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/apptflow/libs/config"
	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/libs/httpx"
	"github.com/md-rashed-zaman/apptflow/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptflow/libs/otel"
	"github.com/md-rashed-zaman/apptflow/libs/runtime"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/storage"
)

func main() {
	config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	slotInterval, err := config.Int("DEFAULT_SLOT_INTERVAL_MINUTES", availability.DefaultIntervalMinutes)
	if err != nil {
		panic(err)
	}
	publicPerMinute, err := config.Int("PUBLIC_RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		panic(err)
	}
	outboxPoll, err := config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		panic(err)
	}
	brokers := config.String("KAFKA_BROKERS", "")

	outboxRepo := outbox.NewRepository()
	store := storage.New(pool, outboxRepo)
	engine := availability.NewEngine(store, nil)

	// Events accumulate in the outbox table until a broker is configured.
	if strings.TrimSpace(brokers) != "" {
		writer := kafkax.NewWriter(kafkax.SplitBrokers(brokers))
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
			PollEvery: outboxPoll,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events will not be published")
	}

	var publicLimiter httpx.Limiter
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			panic(err)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
		publicLimiter = httpx.NewRedisRateLimiter(rdb, publicPerMinute, time.Minute, "rl:booking:ip")
		logger.Info("rate limiting enabled (redis)", "per_minute", publicPerMinute, "redis_addr", addr)
	} else {
		publicLimiter = httpx.NewRateLimiter(publicPerMinute, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", publicPerMinute)
	}

	api := handlers.NewRouter(handlers.RouterConfig{
		Booking:        handlers.NewBookingHandler(engine, store, logger, slotInterval),
		InternalSecret: config.String("INTERNAL_API_SECRET", ""),
		PublicLimiter:  publicLimiter,
		Logger:         logger,
	})

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if strings.TrimSpace(brokers) != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", api)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(15*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
