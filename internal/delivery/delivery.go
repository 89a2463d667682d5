package delivery

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mpark1306/TempMate12/internal/collector"
	"github.com/mpark1306/TempMate12/internal/observability"
	"github.com/mpark1306/TempMate12/internal/store"
)

// Outcome is the result of one delivery pass.
type Outcome int

const (
	// Success means every buffered reading was posted and the buffer drained.
	Success Outcome = iota
	// Failure means a transport error aborted the pass and the buffer is unchanged.
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Agent transmits every buffered reading, in order, one POST per reading.
//
// The buffer is dropped only after the whole pass succeeds. A pass that
// fails midway leaves even its already-posted readings buffered, so the
// next pass re-sends everything from the start and the collector sees
// duplicates. The collector's protocol has no per-item acknowledgement to
// do better with, so deduplication is its problem, not ours.
type Agent struct {
	mu        sync.Mutex // at most one pass in flight
	collector collector.Collector
	store     *store.Store
	logger    *zap.Logger
}

// NewAgent returns an Agent delivering st to c.
func NewAgent(c collector.Collector, st *store.Store, logger *zap.Logger) *Agent {
	return &Agent{collector: c, store: st, logger: logger}
}

// Deliver runs one delivery pass and reports the outcome. An empty buffer
// short-circuits to Success without touching the network. The pass aborts
// on the first transport error; any completed response counts as delivered
// regardless of status code.
func (a *Agent) Deliver(ctx context.Context) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := a.store.Snapshot()
	if len(snapshot) == 0 {
		a.logger.Debug("buffer empty, nothing to deliver")
		return Success
	}

	passID := uuid.New().String()
	ctx = context.WithValue(ctx, "correlation_id", passID)
	logger := a.logger.With(zap.String("pass_id", passID))
	logger.Info("delivery pass started", zap.Int("buffered", len(snapshot)))

	for i, r := range snapshot {
		status, err := a.collector.PostReading(ctx, r)
		if err != nil {
			logger.Warn("delivery pass aborted",
				zap.Int("posted", i),
				zap.Int("remaining", len(snapshot)-i),
				zap.Error(err))
			observability.DeliveryPassesTotal.WithLabelValues(Failure.String()).Inc()
			observability.ReadingsRequeuedTotal.Add(float64(i))
			return Failure
		}
		logger.Debug("reading posted", zap.Int("index", i), zap.Int("status", status))
	}

	a.store.Drop(len(snapshot))
	observability.DeliveryPassesTotal.WithLabelValues(Success.String()).Inc()
	observability.ReadingsDeliveredTotal.Add(float64(len(snapshot)))
	logger.Info("delivery pass complete", zap.Int("delivered", len(snapshot)))
	return Success
}
