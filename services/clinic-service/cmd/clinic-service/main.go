package main

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/clinicdesk/clinicdesk/libs/config"
	"github.com/clinicdesk/clinicdesk/libs/httpx"
	"github.com/clinicdesk/clinicdesk/libs/kafkax"
	otelx "github.com/clinicdesk/clinicdesk/libs/otel"
	"github.com/clinicdesk/clinicdesk/libs/runtime"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/consumer"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/directory"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/handlers"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/inbox"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/outbox"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/refcache"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/session"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("HTTP_PORT", "8080")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	sessionTTL, err := config.Duration("SESSION_TTL", session.DefaultTTL)
	if err != nil {
		panic(err)
	}
	loc, err := time.LoadLocation(config.String("CLINIC_TZ", "America/Sao_Paulo"))
	if err != nil {
		panic(err)
	}
	upcomingLimit, err := config.Int("UPCOMING_LIMIT", directory.DefaultUpcomingLimit)
	if err != nil {
		panic(err)
	}
	refreshEvery, err := config.Duration("REFRESH_INTERVAL", 0)
	if err != nil {
		panic(err)
	}

	be, err := openBackend(ctx, logger)
	if err != nil {
		logger.Error("storage backend failed", "err", err)
		panic(err)
	}
	defer be.close()

	checks := []runtime.ReadyCheck{{Name: "store", Check: be.store.Ping}}
	store := be.store
	sessionStore := session.Store(session.NewMemoryStore(nil))

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		cacheTTL, err := config.Duration("REFCACHE_TTL", 5*time.Minute)
		if err != nil {
			panic(err)
		}
		store = refcache.New(store, rdb, cacheTTL, logger)
		sessionStore = session.NewRedisStore(rdb)
		logger.Info("redis enabled", "redis_addr", addr)
	}

	dir := directory.New(store, logger, directory.Config{
		Location:      loc,
		UpcomingLimit: upcomingLimit,
	})
	reg := directory.NewRegistry(store, logger, nil)
	sessions, err := session.NewManager(store, sessionStore, logger, session.Config{
		Secret: jwtSecret,
		TTL:    sessionTTL,
	})
	if err != nil {
		panic(err)
	}

	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})

		if be.pool != nil {
			publisher := outbox.NewPublisher(be.pool, outbox.NewRepository(be.pool), logger, outbox.PublisherConfig{
				Brokers: brokers,
			})
			go publisher.Run(ctx)
		}

		var recorder inbox.Recorder = inbox.NewMemory(0)
		if be.pool != nil {
			recorder = inbox.NewRepository(be.pool)
		}
		events := consumer.New(logger, recorder, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topics:  outbox.Topics,
		}, consumer.RefreshOnEvent(dir, logger))
		go events.Run(ctx)
	}

	if refreshEvery > 0 {
		go dir.RunRefresher(ctx, refreshEvery)
	}

	rateLimitMW, err := rateLimiter(rdb, logger)
	if err != nil {
		panic(err)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/", handlers.New(dir, reg, sessions, logger).Router())

	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		panic(err)
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		panic(err)
	}
	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "clinic")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "backend", be.kind)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if err := startGrpcServer(ctx, logger, checks); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
