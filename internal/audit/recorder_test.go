package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-service/internal/bucketing"
	"trust-service/internal/config"
	"trust-service/internal/models"
)

type memorySink struct {
	mu     sync.Mutex
	name   string
	events []models.TrustEvent
	err    error
}

func (m *memorySink) Name() string { return m.name }

func (m *memorySink) Write(_ context.Context, e models.TrustEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func TestRecorderFansOutAndStamps(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	bm := bucketing.NewBucketingManager(config.BucketingConfig{UserBuckets: 8, EventBuckets: 8})
	ok := &memorySink{name: "ok"}
	broken := &memorySink{name: "broken", err: errors.New("unreachable")}

	r := NewRecorder(bm, nil, ok, broken).WithClock(func() time.Time { return now })
	r.Record(context.Background(), models.TrustEvent{EventType: models.EventListUpdated, UserID: "u-1"})

	require.Len(t, ok.events, 1)
	ev := ok.events[0]
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, now, ev.EventTime)
	assert.Equal(t, "2024-06-01", ev.EventDate)
	assert.Equal(t, bm.GetEventBucket("u-1"), ev.EventBucket)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), models.TrustEvent{})
}

type recordedExec struct {
	queries []string
	args    [][]any
}

func (r *recordedExec) Exec(_ context.Context, q string, args ...any) error {
	r.queries = append(r.queries, q)
	r.args = append(r.args, args)
	return nil
}

func TestClickHouseSink(t *testing.T) {
	ex := &recordedExec{}
	s := NewClickHouseSink(ex)
	require.NoError(t, s.EnsureSchema(context.Background()))

	ev := models.TrustEvent{EventID: "e", EventType: models.EventSessionEstablished, UserID: "u", EventBucket: 3}
	require.NoError(t, s.Write(context.Background(), ev))

	require.Len(t, ex.queries, 2)
	assert.Contains(t, ex.queries[0], "CREATE TABLE IF NOT EXISTS trust_events")
	assert.Contains(t, ex.queries[1], "INSERT INTO trust_events")
	assert.Equal(t, "e", ex.args[1][0])
	assert.Equal(t, uint16(3), ex.args[1][1])
	assert.Equal(t, "session.established", ex.args[1][4])
}

type producedMsg struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct{ msgs []producedMsg }

func (f *fakeProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, _ map[string]string) error {
	f.msgs = append(f.msgs, producedMsg{topic: topic, key: string(key), value: value})
	return nil
}

func TestKafkaSink(t *testing.T) {
	fp := &fakeProducer{}
	s := NewKafkaSink(fp, "trust-events")
	require.NoError(t, s.Write(context.Background(), models.TrustEvent{EventID: "e", UserID: "u"}))

	require.Len(t, fp.msgs, 1)
	assert.Equal(t, "u", fp.msgs[0].key)
	var decoded models.TrustEvent
	require.NoError(t, json.Unmarshal(fp.msgs[0].value, &decoded))
	assert.Equal(t, "e", decoded.EventID)
}

type fakeIndexer struct {
	index, id string
	doc       any
}

func (f *fakeIndexer) IndexDocument(_ context.Context, index, id string, doc any) error {
	f.index, f.id, f.doc = index, id, doc
	return nil
}

func TestElasticsearchSink(t *testing.T) {
	fi := &fakeIndexer{}
	s := NewElasticsearchSink(fi, "trust-events")
	require.NoError(t, s.Write(context.Background(), models.TrustEvent{EventID: "e1"}))
	assert.Equal(t, "trust-events", fi.index)
	assert.Equal(t, "e1", fi.id)
	assert.Equal(t, "elasticsearch", s.Name())
}

type recordedCypher struct {
	cypher []string
	params []map[string]any
}

func (r *recordedCypher) ExecuteWrite(_ context.Context, cypher string, params map[string]any) error {
	r.cypher = append(r.cypher, cypher)
	r.params = append(r.params, params)
	return nil
}

func TestGraphSink(t *testing.T) {
	ctx := context.Background()
	g := &recordedCypher{}
	s := NewGraphSink(g)
	require.NoError(t, s.EnsureSchema(ctx))

	events := []models.TrustEvent{
		{EventType: models.EventListUpdated, UserID: "u", PhoneToken: "t", Details: "trust"},
		{EventType: models.EventListUpdated, UserID: "u", PhoneToken: "t", Details: "rmspam"},
		{EventType: models.EventRegistrationVerified, UserID: "u", PhoneToken: "own"},
		{EventType: models.EventSessionEstablished, UserID: "u"},
		{EventType: models.EventListUpdated, UserID: "u", Details: "spam"},
	}
	for _, e := range events {
		require.NoError(t, s.Write(ctx, e))
	}

	require.Len(t, g.cypher, 4)
	assert.Contains(t, g.cypher[0], "CREATE CONSTRAINT")
	assert.Contains(t, g.cypher[1], "OPTIONAL MATCH (u)-[old:SPAM]->(p)")
	assert.Contains(t, g.cypher[1], "MERGE (u)-[e:TRUSTS]->(p)")
	assert.Equal(t, "t", g.params[1]["token"])
	assert.Contains(t, g.cypher[2], "-[e:SPAM]->")
	assert.Contains(t, g.cypher[2], "DELETE e")
	assert.Contains(t, g.cypher[3], "[:OWNS]")
	assert.Equal(t, "neo4j", s.Name())
}
