package controller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mpark1306/TempMate12/internal/delivery"
	"github.com/mpark1306/TempMate12/internal/observability"
	"github.com/mpark1306/TempMate12/internal/outcome"
	"github.com/mpark1306/TempMate12/internal/store"
)

// Mode is the exclusive delivery mode of the logger.
type Mode int

const (
	// ModeNormal samples and delivers on the sampling cadence.
	ModeNormal Mode = iota
	// ModeFallback keeps sampling, retries delivery on its own cadence, and
	// raises the local status service for manual intervention.
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Sampler takes one reading per invocation.
type Sampler interface {
	Sample(ctx context.Context)
}

// Deliverer runs one delivery pass.
type Deliverer interface {
	Deliver(ctx context.Context) delivery.Outcome
}

// StatusService is the local interface raised while in fallback mode.
// Start and Stop must tolerate being called when already in the requested
// state.
type StatusService interface {
	Start() error
	Stop() error
}

// Controller owns the Normal/Fallback state machine and drives the sampler
// and the delivery agent on their cadences. The mode is mutated here only;
// everything else reads it.
type Controller struct {
	mu   sync.Mutex
	mode Mode

	sampler Sampler
	agent   Deliverer
	status  StatusService
	store   *store.Store
	logger  *zap.Logger

	sampleInterval time.Duration
	retryInterval  time.Duration
}

// New returns a Controller in normal mode. status may be nil when no local
// status service is wired (tests).
func New(s Sampler, a Deliverer, status StatusService, st *store.Store, sampleInterval, retryInterval time.Duration, logger *zap.Logger) *Controller {
	return &Controller{
		mode:           ModeNormal,
		sampler:        s,
		agent:          a,
		status:         status,
		store:          st,
		sampleInterval: sampleInterval,
		retryInterval:  retryInterval,
		logger:         logger,
	}
}

// SetStatusService wires the status service after construction. The status
// server needs the controller for its flush trigger, so the two cannot be
// built in one step. Call before Run.
func (c *Controller) SetStatusService(s StatusService) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Run drives the tick loop until ctx is done. Sampling keeps its cadence in
// both modes; delivery runs right after each sample in normal mode and on
// the shorter retry cadence in fallback, with one immediate retry on
// entering fallback. There is no backoff and no retry cap: the loop hammers
// at the fixed period until a pass succeeds or the manual trigger drains
// the buffer.
func (c *Controller) Run(ctx context.Context) error {
	sampleTicker := time.NewTicker(c.sampleInterval)
	defer sampleTicker.Stop()
	retryTicker := time.NewTicker(c.retryInterval)
	defer retryTicker.Stop()

	c.logger.Info("controller started",
		zap.Duration("sample_interval", c.sampleInterval),
		zap.Duration("retry_interval", c.retryInterval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sampleTicker.C:
			c.sampler.Sample(ctx)
			if c.Mode() == ModeNormal {
				if c.applyOutcome(c.agent.Deliver(ctx)) == ModeFallback {
					// First retry fires right away on entering fallback;
					// the ticker takes over from there.
					retryTicker.Reset(c.retryInterval)
					c.logger.Info("fallback retry", zap.Int("buffered", c.store.Len()))
					c.applyOutcome(c.agent.Deliver(ctx))
				}
			}
		case <-retryTicker.C:
			if c.Mode() == ModeFallback {
				c.logger.Info("fallback retry", zap.Int("buffered", c.store.Len()))
				c.applyOutcome(c.agent.Deliver(ctx))
			}
		}
	}
}

// Flush runs a delivery pass on behalf of the manual trigger and applies
// the resulting mode transition. Blocking; returns the pass outcome.
func (c *Controller) Flush(ctx context.Context) delivery.Outcome {
	out := c.agent.Deliver(ctx)
	c.applyOutcome(out)
	return out
}

// applyOutcome records the outcome and performs the mode transition it
// implies: Failure in normal mode enters fallback and raises the status
// service; Success in fallback mode returns to normal and lowers it. The
// other two combinations are self-loops. Returns the resulting mode.
func (c *Controller) applyOutcome(out delivery.Outcome) Mode {
	switch out {
	case delivery.Success:
		outcome.RecordSuccess()
	case delivery.Failure:
		outcome.RecordFailure()
	}

	c.mu.Lock()
	prev := c.mode
	switch {
	case out == delivery.Failure && c.mode == ModeNormal:
		c.mode = ModeFallback
	case out == delivery.Success && c.mode == ModeFallback:
		c.mode = ModeNormal
	}
	cur := c.mode
	c.mu.Unlock()

	if cur == prev {
		return cur
	}
	observability.SetFallbackMode(cur == ModeFallback)

	switch cur {
	case ModeFallback:
		c.logger.Warn("delivery failed, entering fallback mode",
			zap.Int("buffered", c.store.Len()))
		if c.status != nil {
			if err := c.status.Start(); err != nil {
				c.logger.Error("status service start", zap.Error(err))
			}
		}
	case ModeNormal:
		c.logger.Info("exiting fallback mode, resuming normal operation")
		if c.status != nil {
			if err := c.status.Stop(); err != nil {
				c.logger.Warn("status service stop", zap.Error(err))
			}
		}
	}
	return cur
}
