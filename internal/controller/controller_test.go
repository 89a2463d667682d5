package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mpark1306/TempMate12/internal/delivery"
	"github.com/mpark1306/TempMate12/internal/models"
	"github.com/mpark1306/TempMate12/internal/store"
)

type fakeSampler struct {
	mu    sync.Mutex
	calls int
	store *store.Store
}

func (f *fakeSampler) Sample(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.store != nil {
		f.store.Append(models.Reading{Timestamp: "t", Temperature: 21.5})
	}
}

func (f *fakeSampler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeDeliverer returns outcomes from a queue, repeating the last one when
// the queue runs dry.
type fakeDeliverer struct {
	mu       sync.Mutex
	outcomes []delivery.Outcome
	calls    int
}

func (f *fakeDeliverer) Deliver(ctx context.Context) delivery.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.outcomes) == 0 {
		return delivery.Success
	}
	out := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	return out
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStatus struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakeStatus) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeStatus) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeStatus) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func newTestController(d *fakeDeliverer, status *fakeStatus) *Controller {
	return New(&fakeSampler{}, d, status, store.New(), time.Minute, 30*time.Second, zap.NewNop())
}

// TestController_InitialModeNormal verifies the machine starts in normal mode.
func TestController_InitialModeNormal(t *testing.T) {
	c := newTestController(&fakeDeliverer{}, &fakeStatus{})
	if c.Mode() != ModeNormal {
		t.Errorf("initial Mode() = %v, want normal", c.Mode())
	}
}

// TestApplyOutcome_FailureEntersFallback verifies Normal -> Fallback on a
// failed pass, raising the status service.
func TestApplyOutcome_FailureEntersFallback(t *testing.T) {
	status := &fakeStatus{}
	c := newTestController(&fakeDeliverer{}, status)

	c.applyOutcome(delivery.Failure)
	if c.Mode() != ModeFallback {
		t.Errorf("Mode() = %v after failure in normal, want fallback", c.Mode())
	}
	starts, stops := status.counts()
	if starts != 1 || stops != 0 {
		t.Errorf("status service starts/stops = %d/%d, want 1/0", starts, stops)
	}
}

// TestApplyOutcome_SuccessExitsFallback verifies Fallback -> Normal on a
// successful pass, lowering the status service.
func TestApplyOutcome_SuccessExitsFallback(t *testing.T) {
	status := &fakeStatus{}
	c := newTestController(&fakeDeliverer{}, status)

	c.applyOutcome(delivery.Failure)
	c.applyOutcome(delivery.Success)
	if c.Mode() != ModeNormal {
		t.Errorf("Mode() = %v after success in fallback, want normal", c.Mode())
	}
	starts, stops := status.counts()
	if starts != 1 || stops != 1 {
		t.Errorf("status service starts/stops = %d/%d, want 1/1", starts, stops)
	}
}

// TestApplyOutcome_FailureInFallbackIsSelfLoop verifies a failed retry keeps
// fallback mode without restarting the status service.
func TestApplyOutcome_FailureInFallbackIsSelfLoop(t *testing.T) {
	status := &fakeStatus{}
	c := newTestController(&fakeDeliverer{}, status)

	c.applyOutcome(delivery.Failure)
	c.applyOutcome(delivery.Failure)
	c.applyOutcome(delivery.Failure)
	if c.Mode() != ModeFallback {
		t.Errorf("Mode() = %v, want fallback", c.Mode())
	}
	starts, _ := status.counts()
	if starts != 1 {
		t.Errorf("status service started %d times across repeated failures, want 1", starts)
	}
}

// TestApplyOutcome_SuccessInNormalIsSelfLoop verifies a successful pass in
// normal mode changes nothing.
func TestApplyOutcome_SuccessInNormalIsSelfLoop(t *testing.T) {
	status := &fakeStatus{}
	c := newTestController(&fakeDeliverer{}, status)

	c.applyOutcome(delivery.Success)
	if c.Mode() != ModeNormal {
		t.Errorf("Mode() = %v, want normal", c.Mode())
	}
	starts, stops := status.counts()
	if starts != 0 || stops != 0 {
		t.Errorf("status service touched (%d/%d) on normal-mode success", starts, stops)
	}
}

// TestFlush_SuccessReturnsToNormal covers the manual trigger: a successful
// flush in fallback mode reports Success and exits fallback.
func TestFlush_SuccessReturnsToNormal(t *testing.T) {
	status := &fakeStatus{}
	d := &fakeDeliverer{}
	c := newTestController(d, status)
	c.applyOutcome(delivery.Failure)

	out := c.Flush(context.Background())
	if out != delivery.Success {
		t.Fatalf("Flush() = %v, want Success", out)
	}
	if c.Mode() != ModeNormal {
		t.Errorf("Mode() = %v after successful flush, want normal", c.Mode())
	}
}

// TestFlush_FailureStaysInFallback verifies a failed manual flush leaves the
// machine in fallback.
func TestFlush_FailureStaysInFallback(t *testing.T) {
	d := &fakeDeliverer{outcomes: []delivery.Outcome{delivery.Failure}}
	c := newTestController(d, &fakeStatus{})
	c.applyOutcome(delivery.Failure)

	if out := c.Flush(context.Background()); out != delivery.Failure {
		t.Fatalf("Flush() = %v, want Failure", out)
	}
	if c.Mode() != ModeFallback {
		t.Errorf("Mode() = %v after failed flush, want fallback", c.Mode())
	}
}

// TestRun_SamplesInBothModes verifies the loop keeps sampling on its cadence
// while in fallback, and that a failing delivery flips the mode.
func TestRun_SamplesInBothModes(t *testing.T) {
	sampler := &fakeSampler{}
	d := &fakeDeliverer{outcomes: []delivery.Outcome{delivery.Failure}}
	status := &fakeStatus{}
	c := New(sampler, d, status, store.New(), 10*time.Millisecond, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for c.Mode() != ModeFallback {
		select {
		case <-deadline:
			t.Fatal("controller never entered fallback mode")
		case <-time.After(5 * time.Millisecond):
		}
	}
	before := sampler.count()
	for sampler.count() < before+2 {
		select {
		case <-deadline:
			t.Fatal("sampler stopped ticking in fallback mode")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

// TestRun_FallbackRetryRecovers verifies the fixed-period retry in fallback
// brings the machine back to normal once delivery succeeds.
func TestRun_FallbackRetryRecovers(t *testing.T) {
	// First pass fails, every later pass succeeds.
	d := &fakeDeliverer{outcomes: []delivery.Outcome{delivery.Failure, delivery.Success}}
	status := &fakeStatus{}
	c := New(&fakeSampler{}, d, status, store.New(), 10*time.Millisecond, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	// The fallback window can be momentary (recovery may happen on the
	// immediate retry), so watch the status service rather than the mode.
	deadline := time.After(2 * time.Second)
	for {
		if starts, _ := status.counts(); starts >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("controller never entered fallback mode")
		case <-time.After(5 * time.Millisecond):
		}
	}
	for c.Mode() != ModeNormal {
		select {
		case <-deadline:
			t.Fatal("controller never recovered to normal mode")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
	starts, stops := status.counts()
	if starts < 1 || stops < 1 {
		t.Errorf("status service starts/stops = %d/%d, want at least 1/1", starts, stops)
	}
}

// TestRun_FirstFallbackRetryImmediate verifies entering fallback triggers a
// retry right away instead of waiting out a full retry period.
func TestRun_FirstFallbackRetryImmediate(t *testing.T) {
	// One failed pass, then success. The retry period is far longer than the
	// test deadline, so recovery can only come from the immediate retry.
	d := &fakeDeliverer{outcomes: []delivery.Outcome{delivery.Failure, delivery.Success}}
	status := &fakeStatus{}
	c := New(&fakeSampler{}, d, status, store.New(), 10*time.Millisecond, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for c.Mode() != ModeNormal || d.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("no immediate retry: mode = %v, deliveries = %d", c.Mode(), d.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
	starts, stops := status.counts()
	if starts != 1 || stops != 1 {
		t.Errorf("status service starts/stops = %d/%d, want 1/1", starts, stops)
	}
}
