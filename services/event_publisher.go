package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/logger"
	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/Roland735/cribmatch-website-sub000/utils"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventPublisher forwards raw webhook deliveries to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close()
}

// NoopPublisher drops every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (NoopPublisher) Close() {}

// JetStreamPublisher publishes to NATS JetStream subjects under a prefix
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// NewJetStreamPublisher connects to NATS. Subjects are "<prefix>.<name>".
func NewJetStreamPublisher(natsURL, prefix string) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("cribmatch-webhook"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &JetStreamPublisher{nc: nc, js: js, prefix: strings.TrimSuffix(prefix, ".")}, nil
}

// Publish sends data to prefix.subject
func (p *JetStreamPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := p.js.Publish(ctx, p.prefix+"."+subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection
func (p *JetStreamPublisher) Close() {
	_ = p.nc.Drain()
}

// WebhookRecorder keeps a raw copy of each webhook delivery and forwards it to the event stream
type WebhookRecorder struct {
	db        *gorm.DB
	publisher EventPublisher
	log       *logger.Logger
}

// NewWebhookRecorder creates a recorder; a nil publisher disables forwarding
func NewWebhookRecorder(db *gorm.DB, publisher EventPublisher, log *logger.Logger) *WebhookRecorder {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &WebhookRecorder{db: db, publisher: publisher, log: log.WithComponent("webhook-recorder")}
}

// recordedHeaders are the delivery headers worth keeping
var recordedHeaders = []string{"Content-Type", "User-Agent", "X-Hub-Signature-256", "X-Request-Id"}

// Record stores and publishes one delivery. Failures are logged and never
// reach the caller.
func (r *WebhookRecorder) Record(ctx context.Context, kind PayloadKind, headers http.Header, body []byte, signatureValid bool) {
	headerMap := datatypes.JSONMap{}
	for _, name := range recordedHeaders {
		if v := headers.Get(name); v != "" {
			headerMap[name] = v
		}
	}

	event := models.WebhookEvent{
		Provider:       "whatsapp",
		Kind:           string(kind),
		Headers:        headerMap,
		SignatureValid: signatureValid,
		ReceivedAt:     time.Now(),
	}
	if isJSON(body) {
		event.Payload = datatypes.JSON(body)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		utils.BestEffort(ctx, r.log, "record webhook event", func(ctx context.Context) error {
			return r.db.WithContext(ctx).Create(&event).Error
		})
	}()
	go func() {
		defer wg.Done()
		utils.BestEffort(ctx, r.log, "publish webhook event", func(ctx context.Context) error {
			if err := r.publisher.Publish(ctx, "webhook", body); err != nil {
				return err
			}
			if subject := eventSubject(kind); subject != "" {
				return r.publisher.Publish(ctx, subject, body)
			}
			return nil
		})
	}()
	wg.Wait()
}

func eventSubject(kind PayloadKind) string {
	switch kind {
	case PayloadStatusUpdate:
		return "status"
	case PayloadFlowExchange:
		return "flow"
	case PayloadUnknown:
		return ""
	default:
		return "message"
	}
}

func isJSON(body []byte) bool {
	return len(body) > 0 && json.Valid(body)
}
