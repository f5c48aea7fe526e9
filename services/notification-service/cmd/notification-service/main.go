package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/turnomed/turnomed/libs/config"
	"github.com/turnomed/turnomed/libs/db"
	"github.com/turnomed/turnomed/libs/httpx"
	"github.com/turnomed/turnomed/libs/kafkax"
	otelx "github.com/turnomed/turnomed/libs/otel"
	"github.com/turnomed/turnomed/libs/runtime"
	"github.com/turnomed/turnomed/services/notification-service/internal/consumer"
	"github.com/turnomed/turnomed/services/notification-service/internal/dispatch"
	"github.com/turnomed/turnomed/services/notification-service/internal/email"
	"github.com/turnomed/turnomed/services/notification-service/internal/inbox"
	"github.com/turnomed/turnomed/services/notification-service/internal/sms"
	"github.com/turnomed/turnomed/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// defaultTopics covers every event type the booking and queue services
// publish for user delivery.
const defaultTopics = "booking.appointment.confirmed.v1,booking.appointment.cancelled.v1,booking.appointment.rescheduled.v1,queue.turn.ready.v1,queue.turn.upcoming.v1"

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@turnomed.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	var smsSender sms.Sender
	switch smsProvider {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	handle := func(ctx context.Context, msg kafka.Message) error {
		var payload map[string]any
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		userID, _ := payload["user_id"].(string)
		if userID == "" {
			logger.Error("event missing user_id", "topic", msg.Topic)
			return nil
		}
		ref, _ := payload["ticket_id"].(string)
		if ref == "" {
			ref, _ = payload["appointment_id"].(string)
		}

		rendered, ok := dispatch.Render(msg.Topic, payload)
		if !ok {
			logger.Warn("no template for event type", "topic", msg.Topic)
			return nil
		}

		contact, err := notificationsRepo.ContactFor(ctx, userID)
		if err != nil {
			return err
		}
		if contact.Email == "" && contact.Phone == "" {
			logger.Warn("no delivery address for user", "user_id", userID)
			return notificationsRepo.Insert(ctx, storage.Notification{
				UserID:    userID,
				Ref:       ref,
				EventType: msg.Topic,
				Channel:   "none",
				Status:    "skipped",
				Payload:   payload,
			})
		}

		if contact.Email != "" {
			status := "sent"
			if err := emailSender.Send(contact.Email, rendered.Subject, rendered.Body); err != nil {
				status = "failed"
				logger.Error("email send failed", "err", err, "user_id", userID)
			}
			if err := notificationsRepo.Insert(ctx, storage.Notification{
				UserID:    userID,
				Ref:       ref,
				EventType: msg.Topic,
				Channel:   "email",
				Recipient: contact.Email,
				Payload:   payload,
				Status:    status,
			}); err != nil {
				return err
			}
		}
		if contact.Phone != "" {
			status := "sent"
			if err := smsSender.Send(ctx, contact.Phone, rendered.Body); err != nil {
				status = "failed"
				logger.Error("sms send failed", "err", err, "user_id", userID)
			}
			if err := notificationsRepo.Insert(ctx, storage.Notification{
				UserID:    userID,
				Ref:       ref,
				EventType: msg.Topic,
				Channel:   "sms",
				Recipient: contact.Phone,
				Payload:   payload,
				Status:    status,
			}); err != nil {
				return err
			}
		}

		logger.Info("notification processed", "topic", msg.Topic, "user_id", userID)
		return nil
	}

	topics := config.String("KAFKA_CONSUME_TOPICS", defaultTopics)
	for _, topic := range strings.Split(topics, ",") {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   topic,
		}, handle)
		go eventConsumer.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
