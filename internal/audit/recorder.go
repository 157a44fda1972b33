// Package audit fans trust events out to analytics and search sinks.
// Delivery is best effort: a failing sink is logged and never fails the
// request that produced the event.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trust-service/internal/models"
	"trust-service/internal/util"
)

type Sink interface {
	Name() string
	Write(ctx context.Context, event models.TrustEvent) error
}

type Bucketer interface {
	GetEventBucket(identifier string) int
	GetDateBucket(t time.Time) string
}

type Recorder struct {
	sinks    []Sink
	bucketer Bucketer
	logger   *zap.Logger
	timeout  time.Duration
	nowFn    func() time.Time
}

func NewRecorder(bucketer Bucketer, logger *zap.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		sinks:    sinks,
		bucketer: bucketer,
		logger:   logger,
		timeout:  2 * time.Second,
		nowFn:    time.Now,
	}
}

// WithClock overrides the time provider.
func (r *Recorder) WithClock(nowFn func() time.Time) *Recorder {
	if nowFn != nil {
		r.nowFn = nowFn
	}
	return r
}

// Record stamps event and writes it to every sink concurrently. It returns
// once all sinks finished or the delivery timeout passed.
func (r *Recorder) Record(ctx context.Context, event models.TrustEvent) {
	if r == nil || len(r.sinks) == 0 {
		return
	}

	now := r.nowFn().UTC()
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	event.EventTime = now
	if r.bucketer != nil {
		event.EventBucket = r.bucketer.GetEventBucket(event.UserID)
		event.EventDate = r.bucketer.GetDateBucket(now)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range r.sinks {
		g.Go(func() error {
			if err := sink.Write(ctx, event); err != nil {
				r.logger.Warn("Audit sink write failed",
					util.String("sink", sink.Name()),
					util.String("event_type", string(event.EventType)),
					util.ErrorField(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
