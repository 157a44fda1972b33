package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captured struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	msgs []captured
	err  error
}

func (f *fakeProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, captured{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func TestKafkaSenderPublishesRequest(t *testing.T) {
	fp := &fakeProducer{}
	s := NewKafkaSender(fp, "sms-outbound")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.nowFn = func() time.Time { return now }

	require.NoError(t, s.SendCode(context.Background(), "+15550100", "123456"))
	require.Len(t, fp.msgs, 1)

	msg := fp.msgs[0]
	assert.Equal(t, "sms-outbound", msg.topic)
	assert.Equal(t, "+15550100", string(msg.key))

	var req SMSRequest
	require.NoError(t, json.Unmarshal(msg.value, &req))
	assert.Equal(t, "+15550100", req.Phone)
	assert.Contains(t, req.Body, "123456")
	assert.Equal(t, now, req.RequestedAt)
	assert.Equal(t, req.RequestID, msg.headers["request-id"])
}

func TestKafkaSenderWrapsErrors(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	err := NewKafkaSender(fp, "t").SendCode(context.Background(), "+15550100", "1")
	assert.ErrorContains(t, err, "queue sms")
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(zap.NewNop()).SendCode(context.Background(), "+1", "2"))
}
