package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"trust-service/internal/models"
)

type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSink publishes events keyed by user so one user's events stay ordered.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, event models.TrustEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.producer.ProduceMessage(ctx, s.topic, []byte(event.UserID), value, map[string]string{
		"event-type": string(event.EventType),
	})
}

type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS trust_events (
    event_id     String,
    event_bucket UInt16,
    event_date   Date,
    event_time   DateTime64(3, 'UTC'),
    event_type   LowCardinality(String),
    user_id      String,
    phone_token  String,
    details      String
) ENGINE = MergeTree
PARTITION BY event_date
ORDER BY (event_type, event_bucket, event_time)`

const insertEvent = `INSERT INTO trust_events
    (event_id, event_bucket, event_date, event_time, event_type, user_id, phone_token, details)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// ClickHouseSink appends events to the trust_events table.
type ClickHouseSink struct {
	conn Execer
}

func NewClickHouseSink(conn Execer) *ClickHouseSink {
	return &ClickHouseSink{conn: conn}
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("create trust_events: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Write(ctx context.Context, e models.TrustEvent) error {
	return s.conn.Exec(ctx, insertEvent,
		e.EventID, uint16(e.EventBucket), e.EventTime, e.EventTime,
		string(e.EventType), e.UserID, e.PhoneToken, e.Details)
}

type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, document any) error
}

// ElasticsearchSink makes events searchable by user and type.
type ElasticsearchSink struct {
	indexer Indexer
	index   string
}

func NewElasticsearchSink(indexer Indexer, index string) *ElasticsearchSink {
	return &ElasticsearchSink{indexer: indexer, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Write(ctx context.Context, e models.TrustEvent) error {
	return s.indexer.IndexDocument(ctx, s.index, e.EventID, e)
}
