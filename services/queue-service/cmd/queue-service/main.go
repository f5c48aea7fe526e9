package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turnomed/turnomed/libs/config"
	"github.com/turnomed/turnomed/libs/db"
	"github.com/turnomed/turnomed/libs/httpx"
	"github.com/turnomed/turnomed/libs/kafkax"
	otelx "github.com/turnomed/turnomed/libs/otel"
	"github.com/turnomed/turnomed/libs/outbox"
	"github.com/turnomed/turnomed/libs/runtime"
	"github.com/turnomed/turnomed/services/queue-service/internal/board"
	"github.com/turnomed/turnomed/services/queue-service/internal/handlers"
	"github.com/turnomed/turnomed/services/queue-service/internal/notify"
	"github.com/turnomed/turnomed/services/queue-service/internal/queue"
	"github.com/turnomed/turnomed/services/queue-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "queue-service")
	port, err := config.Port("PORT", "8084")
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

	pool, err := db.Open(ctx, dbURL, int32(config.Int("DB_MAX_CONNS", 10)))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: config.String("REDIS_ADDR", "localhost:6379"),
	})
	defer rdb.Close()

	repo := storage.NewQueueRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	servingBoard := board.New(rdb)

	coord := queue.NewCoordinator(repo, servingBoard, notify.NewOutboxPort(pool, outboxRepo), logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	queueHandler := handlers.NewQueueHandler(coord, repo, servingBoard, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: board.ReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/queues/issue", queueHandler.Issue)
	mux.HandleFunc("/api/v1/queues/call-next", queueHandler.CallNext)
	mux.HandleFunc("/api/v1/queues/transfer", queueHandler.Transfer)
	mux.HandleFunc("/api/v1/queues/open", queueHandler.Open)
	mux.HandleFunc("/api/v1/queues/close", queueHandler.Close)
	mux.HandleFunc("/api/v1/queues/serve", queueHandler.Serve)
	mux.HandleFunc("/api/v1/queues/cancel-turn", queueHandler.CancelTurn)
	mux.HandleFunc("/api/v1/public/turns/track", queueHandler.Track)
	mux.HandleFunc("/api/v1/public/queues/board", queueHandler.Board)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "queue")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
