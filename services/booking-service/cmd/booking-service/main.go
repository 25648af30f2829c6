package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/apptcore/libs/auth"
	"github.com/md-rashed-zaman/apptcore/libs/clock"
	"github.com/md-rashed-zaman/apptcore/libs/config"
	"github.com/md-rashed-zaman/apptcore/libs/db"
	"github.com/md-rashed-zaman/apptcore/libs/grpcx"
	"github.com/md-rashed-zaman/apptcore/libs/httpx"
	"github.com/md-rashed-zaman/apptcore/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptcore/libs/otel"
	"github.com/md-rashed-zaman/apptcore/libs/runtime"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := runtime.LoadDotEnv(".env"); err != nil {
		panic(err)
	}
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(healthcheck())
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
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
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := migrations.Apply(ctx, pool.Pool); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied")
	}

	txOpts := db.TxOptions{
		LockTimeout:      config.Duration("DB_LOCK_TIMEOUT", 2*time.Second),
		StatementTimeout: config.Duration("DB_STATEMENT_TIMEOUT", 4*time.Second),
	}
	bookings := storage.NewBookingRepository(pool, txOpts)
	windows := storage.NewAvailabilityRepository(pool, txOpts)
	outboxRepo := outbox.NewRepository(pool)
	m := metrics.New(prometheus.DefaultRegisterer, "apptcore")

	engine := scheduling.NewEngine(bookings, windows, outboxRepo, clock.NewSystem(), logger, m, scheduling.Config{
		OpTimeout:   config.Duration("BOOKING_OP_TIMEOUT", 5*time.Second),
		MaxDuration: config.Duration("BOOKING_MAX_DURATION", 12*time.Hour),
		MaxRange:    config.Duration("AVAILABILITY_MAX_RANGE", 62*24*time.Hour),
		RetryDelay:  config.Duration("BOOKING_RETRY_DELAY", 50*time.Millisecond),
	})

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(outboxRepo, logger, m, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/metrics", promhttp.Handler())
	bookingHandler := handlers.NewBookingHandler(engine, logger)
	if verifier := tokenVerifier(); verifier != nil {
		bookingHandler.WithTokens(verifier)
		logger.Info("bearer token authentication enabled")
	}
	bookingHandler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Request-Id", "X-User-Id", "X-User-Role"},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit(ctx, logger),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 10*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
}

// healthcheck probes the local gRPC health service, for container health checks.
func healthcheck() int {
	port, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := grpcx.Probe(ctx, "127.0.0.1:"+port, ""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// tokenVerifier returns nil when neither AUTH_JWT_SECRET nor AUTH_JWKS_URL is set,
// in which case the gateway identity headers are trusted.
func tokenVerifier() *auth.Verifier {
	secret := config.String("AUTH_JWT_SECRET", "")
	jwksURL := config.String("AUTH_JWKS_URL", "")
	if secret == "" && jwksURL == "" {
		return nil
	}
	v := &auth.Verifier{Secret: secret}
	if jwksURL != "" {
		v.Keys = auth.NewJWKSClient(jwksURL, config.Duration("AUTH_JWKS_TTL", 5*time.Minute))
	}
	return v
}

// rateLimit uses a shared Redis window when REDIS_ADDR is set and a per-process
// limiter otherwise.
func rateLimit(ctx context.Context, logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_REQUESTS", 120)
	window := config.Duration("RATE_LIMIT_WINDOW", time.Minute)

	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		return httpx.NewRateLimiter(limit, window).Middleware()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	go func() {
		<-ctx.Done()
		_ = rdb.Close()
	}()
	return httpx.NewRedisRateLimiter(rdb, limit, window, config.String("RATE_LIMIT_PREFIX", "booking:rl:")).
		Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
}
