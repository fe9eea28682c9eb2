package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/apptflow/libs/config"
	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/libs/httpx"
	"github.com/md-rashed-zaman/apptflow/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptflow/libs/otel"
	"github.com/md-rashed-zaman/apptflow/libs/runtime"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/audit"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/billing"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/consumer"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/events"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/handlers"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/inbox"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/jobs"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/metrics"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/quota"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/sender"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/storage"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/templates"
)

func main() {
	config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
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

	runnerInterval, err := config.Duration("RUNNER_INTERVAL", time.Minute)
	if err != nil {
		panic(err)
	}
	batchSize, err := config.Int("RUNNER_BATCH_SIZE", jobs.DefaultBatchSize)
	if err != nil {
		panic(err)
	}
	reviewDelayMinutes, err := config.Int("REVIEW_DELAY_MINUTES", 5)
	if err != nil {
		panic(err)
	}
	billingInterval, err := config.Duration("BILLING_SYNC_INTERVAL", 15*time.Minute)
	if err != nil {
		panic(err)
	}
	publicPerMinute, err := config.Int("PUBLIC_RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		panic(err)
	}
	brokers := config.String("KAFKA_BROKERS", "")

	var recorder audit.Recorder = audit.NewLogRecorder(logger)
	if strings.TrimSpace(brokers) != "" {
		writer := kafkax.NewWriter(kafkax.SplitBrokers(brokers))
		defer func() { _ = writer.Close() }()
		recorder = audit.NewKafkaRecorder(writer, logger)
	}

	m := metrics.New(nil)
	store := storage.New(pool)

	smsSender, emailSender, err := sender.New(ctx, sender.Config{
		TestMode:        config.Bool("TEST_MODE", false),
		SMSProvider:     config.String("SMS_PROVIDER", "noop"),
		SMSWebhookURL:   config.String("SMS_WEBHOOK_URL", ""),
		SMSWebhookToken: config.String("SMS_WEBHOOK_TOKEN", ""),
		TwilioSID:       config.String("TWILIO_ACCOUNT_SID", ""),
		TwilioToken:     config.String("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:      config.String("TWILIO_FROM_NUMBER", ""),
		EmailProvider:   config.String("EMAIL_PROVIDER", "noop"),
		SMTPHost:        config.String("SMTP_HOST", ""),
		SMTPPort:        config.String("SMTP_PORT", "587"),
		SMTPUsername:    config.String("SMTP_USERNAME", ""),
		SMTPPassword:    config.String("SMTP_PASSWORD", ""),
		EmailFrom:       config.String("EMAIL_FROM", ""),
		EmailFromName:   config.String("EMAIL_FROM_NAME", ""),
		SendGridAPIKey:  config.String("SENDGRID_API_KEY", ""),
		AWSRegion:       config.String("AWS_REGION", "us-east-1"),
	}, logger)
	if err != nil {
		logger.Error("sender setup failed", "err", err)
		panic(err)
	}

	scheduler := jobs.NewScheduler(store, logger, jobs.SchedulerConfig{
		ReviewDelay: time.Duration(reviewDelayMinutes) * time.Minute,
		Metrics:     m,
	})
	runner := jobs.NewRunner(store, quota.NewGuard(store, nil), templates.NewResolver(store), smsSender, emailSender, logger, jobs.RunnerConfig{
		Links:   templates.Links{AppURL: config.String("APP_URL", templates.DefaultAppURL)},
		Metrics: m,
	})

	if runnerInterval > 0 {
		worker := jobs.NewWorker(runner, logger, jobs.WorkerConfig{Interval: runnerInterval, BatchSize: batchSize})
		go worker.Run(ctx)
	} else {
		logger.Info("in-process runner disabled; relying on external trigger")
	}

	if rec := billing.NewReconciler(store, logger, billing.Config{
		StripeSecretKey: config.String("STRIPE_SECRET_KEY", ""),
	}); rec != nil {
		go rec.Run(ctx, billingInterval)
	}

	if strings.TrimSpace(brokers) != "" {
		eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "scheduler-service"),
			Topics:  events.Topics,
		}, events.NewHandler(scheduler, logger).Handle)
		go eventConsumer.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; appointment events will not be consumed")
	}

	var publicLimiter, senderLimiter httpx.Limiter
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
		publicLimiter = httpx.NewRedisRateLimiter(rdb, publicPerMinute, time.Minute, "rl:sched:ip")
		senderLimiter = httpx.NewRedisRateLimiter(rdb, 10, time.Minute, "rl:sched:sms")
		logger.Info("rate limiting enabled (redis)", "per_minute", publicPerMinute, "redis_addr", addr)
	} else {
		publicLimiter = httpx.NewRateLimiter(publicPerMinute, time.Minute)
		senderLimiter = httpx.NewRateLimiter(10, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", publicPerMinute)
	}

	api := handlers.NewRouter(handlers.RouterConfig{
		Cron:          handlers.NewCronHandler(runner, recorder, logger, batchSize),
		Feedback:      handlers.NewFeedbackHandler(store, scheduler, emailSender, recorder, logger),
		OptOut: handlers.NewOptOutHandler(store, recorder, logger, handlers.OptOutConfig{
			TwilioAuthToken: config.String("TWILIO_AUTH_TOKEN", ""),
			WebhookURL:      config.String("TWILIO_WEBHOOK_URL", ""),
			SkipSignature:   config.Bool("TEST_MODE", false),
		}),
		CronSecret:    config.String("CRON_SECRET", ""),
		PublicLimiter: publicLimiter,
		SenderLimiter: senderLimiter,
		Logger:        logger,
	})

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if strings.TrimSpace(brokers) != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/", api)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(64<<10),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
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
