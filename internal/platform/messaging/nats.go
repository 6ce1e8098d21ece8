package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"d21vote/internal/shared/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultStreamName    = "ELECTIONS"
	DefaultSubjectPrefix = "elections"

	HeaderEventType    = "Event-Type"
	HeaderPartitionKey = "Partition-Key"
	HeaderSchema       = "Schema-Version"
)

type NATSOptions struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	// DuplicateWindow bounds JetStream's Nats-Msg-Id deduplication, which
	// absorbs relay retries of an already accepted event.
	DuplicateWindow time.Duration
}

// NATSPublisher writes election events to a JetStream stream. The subject is
// <prefix>.<topic>; the partition key travels in a header because voter and
// election ids are opaque and may contain subject tokens.
type NATSPublisher struct {
	conn   *nats.Conn
	owned  bool
	js     jetstream.JetStream
	prefix string
	logger *slog.Logger
}

func DialNATS(ctx context.Context, opts NATSOptions, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(opts.URL,
		nats.Name("d21-voting"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	publisher, err := NewNATSPublisher(ctx, conn, opts, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	publisher.owned = true
	return publisher, nil
}

// NewNATSPublisher ensures the stream exists on conn. The caller keeps
// ownership of conn.
func NewNATSPublisher(ctx context.Context, conn *nats.Conn, opts NATSOptions, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	streamName := strings.TrimSpace(opts.StreamName)
	if streamName == "" {
		streamName = DefaultStreamName
	}
	prefix := strings.Trim(strings.TrimSpace(opts.SubjectPrefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	window := opts.DuplicateWindow
	if window <= 0 {
		window = 2 * time.Minute
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{prefix + ".>"},
		Storage:    jetstream.FileStorage,
		Duplicates: window,
	}); err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", streamName, err)
	}
	logger.Info("nats publisher ready",
		"event", "nats_publisher_ready",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"stream", streamName,
		"subject_prefix", prefix,
	)
	return &NATSPublisher{
		conn:   conn,
		js:     js,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (p *NATSPublisher) Subject(topic string) string {
	return p.prefix + "." + topic
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event events.Envelope) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.EventID, err)
	}
	msg := nats.NewMsg(p.Subject(topic))
	msg.Data = data
	msg.Header.Set(HeaderEventType, event.EventType)
	msg.Header.Set(HeaderPartitionKey, event.PartitionKey)
	msg.Header.Set(HeaderSchema, fmt.Sprint(event.SchemaVersion))

	ack, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(event.EventID))
	if err != nil {
		p.logger.Error("nats publish failed",
			"event", "nats_publish_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debug("event published",
		"event", "nats_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"stream", ack.Stream,
		"sequence", ack.Sequence,
		"duplicate", ack.Duplicate,
	)
	return nil
}

func (p *NATSPublisher) Close() error {
	if p == nil || !p.owned || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
