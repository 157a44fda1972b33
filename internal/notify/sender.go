// Package notify delivers registration codes to phones.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trust-service/internal/util"
)

const codeMessage = "Your TrustSMS verification code is: \n%s"

type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// Producer is the Kafka operation KafkaSender needs.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// SMSRequest is the message an SMS gateway consumes from the outbound topic.
type SMSRequest struct {
	RequestID   string    `json:"request_id"`
	Phone       string    `json:"phone"`
	Body        string    `json:"body"`
	RequestedAt time.Time `json:"requested_at"`
}

// KafkaSender hands codes to the SMS gateway through a Kafka topic.
type KafkaSender struct {
	producer Producer
	topic    string
	nowFn    func() time.Time
}

func NewKafkaSender(producer Producer, topic string) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic, nowFn: time.Now}
}

func (s *KafkaSender) SendCode(ctx context.Context, phone, code string) error {
	req := SMSRequest{
		RequestID:   uuid.NewString(),
		Phone:       phone,
		Body:        fmt.Sprintf(codeMessage, code),
		RequestedAt: s.nowFn().UTC(),
	}
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}
	headers := map[string]string{
		"content-type": "application/json",
		"request-id":   req.RequestID,
	}
	if err := s.producer.ProduceMessage(ctx, s.topic, []byte(phone), value, headers); err != nil {
		return fmt.Errorf("queue sms: %w", err)
	}
	return nil
}

// LogSender writes codes to the log instead of sending them. Development only.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendCode(_ context.Context, phone, code string) error {
	s.logger.Warn("SMS delivery disabled, code logged instead",
		util.String("phone", phone),
		util.String("code", code),
	)
	return nil
}
