package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/sensei-scan/internal/events"
	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/cuongbtq/sensei-scan/internal/scan/storage"
	"github.com/cuongbtq/sensei-scan/internal/scan/synth"
	"github.com/cuongbtq/sensei-scan/shared/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scanDuration = 1200 * time.Millisecond

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// flakyStore fails writes while failSet is set, optionally only for failKey
type flakyStore struct {
	*kvstore.Memory
	failSet atomic.Bool
	failKey string
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet.Load() && (f.failKey == "" || f.failKey == key) {
		return errors.New("store unavailable")
	}
	return f.Memory.Set(ctx, key, value)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type synthFunc func(ctx context.Context, target string) (domain.ScanResult, error)

func (f synthFunc) Synthesize(ctx context.Context, target string) (domain.ScanResult, error) {
	return f(ctx, target)
}

type harness struct {
	sched     *Scheduler
	store     *flakyStore
	clock     *ManualClock
	results   *storage.ResultStore
	publisher *recordingPublisher
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

func newHarness(t *testing.T, s synth.Synthesizer) *harness {
	t.Helper()
	return newHarnessOn(t, &flakyStore{Memory: kvstore.NewMemory()}, s)
}

func newHarnessOn(t *testing.T, store *flakyStore, s synth.Synthesizer) *harness {
	t.Helper()
	return newHarnessWith(t, store, s, nil)
}

// newHarnessWith uses pub in place of the recording publisher when non-nil
func newHarnessWith(t *testing.T, store *flakyStore, s synth.Synthesizer, pub events.Publisher) *harness {
	t.Helper()
	ctx := context.Background()
	clock := NewManualClock(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))

	queue, err := storage.LoadQueue(ctx, store, discard)
	require.NoError(t, err)
	results, err := storage.LoadResults(ctx, store, discard)
	require.NoError(t, err)

	if s == nil {
		s = synth.NewCatalogue(synth.WithClock(clock.Now), synth.WithIDGenerator(sequentialIDs("res")))
	}
	publisher := &recordingPublisher{}
	if pub == nil {
		pub = publisher
	}

	sched := New(&Config{
		Logger:       discard,
		Queue:        queue,
		Results:      results,
		Synthesizer:  s,
		Publisher:    pub,
		Clock:        clock,
		NewID:        sequentialIDs("job"),
		ScanDuration: scanDuration,
	})
	return &harness{sched: sched, store: store, clock: clock, results: results, publisher: publisher}
}

func validRequest(url string) domain.SubmitRequest {
	return domain.SubmitRequest{URL: url, Consent: true, TermsAccepted: true, SimulationAck: true}
}

// checkInvariants asserts at most one running job and result ids only on completed jobs
func checkInvariants(t *testing.T, jobs []domain.ScanJob) {
	t.Helper()
	running := 0
	for _, j := range jobs {
		if j.Status == domain.JobStatusRunning {
			running++
		}
		assert.Equal(t, j.Status == domain.JobStatusCompleted, j.ResultID != "",
			"job %s status %s result %q", j.ID, j.Status, j.ResultID)
	}
	assert.LessOrEqual(t, running, 1)
}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.SubmitRequest
		wantErr error
	}{
		{name: "valid https", req: validRequest("https://target.example")},
		{name: "valid http with path", req: validRequest("http://target.example/login?next=/")},
		{name: "not a url", req: validRequest("not-a-url"), wantErr: domain.ErrInvalidURL},
		{name: "ftp scheme", req: validRequest("ftp://target.example"), wantErr: domain.ErrInvalidURL},
		{name: "javascript scheme", req: validRequest("javascript:alert(1)"), wantErr: domain.ErrInvalidURL},
		{name: "empty", req: validRequest(""), wantErr: domain.ErrInvalidURL},
		{
			name:    "no consent",
			req:     domain.SubmitRequest{URL: "https://target.example", TermsAccepted: true, SimulationAck: true},
			wantErr: domain.ErrConsentRequired,
		},
		{
			name:    "terms not accepted",
			req:     domain.SubmitRequest{URL: "https://target.example", Consent: true, SimulationAck: true},
			wantErr: domain.ErrConsentRequired,
		},
		{
			name:    "simulation not acknowledged",
			req:     domain.SubmitRequest{URL: "https://target.example", Consent: true, TermsAccepted: true},
			wantErr: domain.ErrConsentRequired,
		},
		{
			name:    "bad url wins over missing consent",
			req:     domain.SubmitRequest{URL: "not-a-url"},
			wantErr: domain.ErrInvalidURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			_, err := h.sched.Submit(context.Background(), validRequest("https://existing.example"))
			require.NoError(t, err)

			job, err := h.sched.Submit(context.Background(), tt.req)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Len(t, h.sched.List(), 1)
				assert.Len(t, h.publisher.ofType(events.TypeQueued), 1)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusQueued, job.Status)
			assert.Empty(t, job.ResultID)
			assert.Equal(t, h.clock.Now(), job.CreatedAt)

			jobs := h.sched.List()
			require.Len(t, jobs, 2)
			assert.Equal(t, job, jobs[1])
			assert.Equal(t, domain.JobStatusQueued, jobs[0].Status)
		})
	}
}

func TestSubmit_PersistenceFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.store.failSet.Store(true)

	_, err := h.sched.Submit(context.Background(), validRequest("https://target.example"))
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, h.sched.List())
	assert.Empty(t, h.publisher.ofType(events.TypeQueued))
}

func TestTick_EmptyQueueIsNoop(t *testing.T) {
	h := newHarness(t, nil)

	task, err := h.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task)
	_, pending := h.sched.Pending()
	assert.False(t, pending)
}

func TestTick_SingleInFlightSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	first, err := h.sched.Submit(ctx, validRequest("https://one.example"))
	require.NoError(t, err)
	h.clock.Advance(time.Millisecond)
	_, err = h.sched.Submit(ctx, validRequest("https://two.example"))
	require.NoError(t, err)

	task, err := h.sched.Tick(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, first.ID, task.JobID)
	assert.Equal(t, h.clock.Now().Add(scanDuration), task.FireAt)

	// Completion has not fired: later ticks see the running job and do nothing.
	for i := 0; i < 3; i++ {
		h.clock.Advance(scanDuration / 4)
		again, err := h.sched.Tick(ctx)
		require.NoError(t, err)
		assert.Nil(t, again)
		checkInvariants(t, h.sched.List())
	}

	counts := h.sched.Counts()
	assert.Equal(t, 1, counts[domain.JobStatusRunning])
	assert.Equal(t, 1, counts[domain.JobStatusQueued])
}

func TestTick_AdmissionFailureLeavesJobQueued(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	job, err := h.sched.Submit(ctx, validRequest("https://one.example"))
	require.NoError(t, err)

	h.store.failSet.Store(true)
	task, err := h.sched.Tick(ctx)
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Nil(t, task)

	got, err := h.sched.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)

	h.store.failSet.Store(false)
	task, err = h.sched.Tick(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
}

func TestFireDue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	job, err := h.sched.Submit(ctx, validRequest("https://target.example"))
	require.NoError(t, err)
	_, err = h.sched.Tick(ctx)
	require.NoError(t, err)

	h.clock.Advance(scanDuration - time.Millisecond)
	fired, err := h.sched.FireDue(ctx)
	require.NoError(t, err)
	assert.False(t, fired)

	h.clock.Advance(time.Millisecond)
	fired, err = h.sched.FireDue(ctx)
	require.NoError(t, err)
	assert.True(t, fired)

	got, err := h.sched.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotEmpty(t, got.ResultID)

	result, err := h.results.Get(ctx, got.ResultID)
	require.NoError(t, err)
	assert.Equal(t, "https://target.example", result.URL)
	assert.NotEmpty(t, result.Findings)

	// Fires once only.
	fired, err = h.sched.FireDue(ctx)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, 1, h.results.Len())
}

func TestFIFOCompletionOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	j1, err := h.sched.Submit(ctx, validRequest("https://one.example"))
	require.NoError(t, err)
	h.clock.Advance(time.Millisecond)
	j2, err := h.sched.Submit(ctx, validRequest("https://two.example"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		task, err := h.sched.Tick(ctx)
		require.NoError(t, err)
		require.NotNil(t, task)
		h.clock.Advance(scanDuration + time.Millisecond)
		fired, err := h.sched.FireDue(ctx)
		require.NoError(t, err)
		require.True(t, fired)
		checkInvariants(t, h.sched.List())
	}

	jobs := h.sched.List()
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, domain.JobStatusCompleted, j.Status)
	}
	assert.NotEqual(t, jobs[0].ResultID, jobs[1].ResultID)

	completed := h.publisher.ofType(events.TypeCompleted)
	require.Len(t, completed, 2)
	assert.Equal(t, j1.ID, completed[0].JobID)
	assert.Equal(t, j2.ID, completed[1].JobID)
	assert.False(t, completed[0].OccurredAt.After(completed[1].OccurredAt))
}

func TestFireDue_SynthesisFailure(t *testing.T) {
	ctx := context.Background()
	calls := 0
	failing := synthFunc(func(ctx context.Context, target string) (domain.ScanResult, error) {
		calls++
		if calls == 1 {
			return domain.ScanResult{}, fmt.Errorf("%w: template engine down", domain.ErrSynthesisFailure)
		}
		return synth.NewCatalogue().Synthesize(ctx, target)
	})
	h := newHarness(t, failing)

	bad, err := h.sched.Submit(ctx, validRequest("https://bad.example"))
	require.NoError(t, err)
	good, err := h.sched.Submit(ctx, validRequest("https://good.example"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := h.sched.Tick(ctx)
		require.NoError(t, err)
		h.clock.Advance(scanDuration)
		fired, err := h.sched.FireDue(ctx)
		require.NoError(t, err)
		require.True(t, fired)
	}

	gotBad, err := h.sched.Get(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, gotBad.Status)
	assert.Empty(t, gotBad.ResultID)

	gotGood, err := h.sched.Get(good.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, gotGood.Status)
	assert.Len(t, h.publisher.ofType(events.TypeFailed), 1)
}

func TestFireDue_SynthesizerPanicBecomesFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, synthFunc(func(context.Context, string) (domain.ScanResult, error) {
		panic("boom")
	}))

	job, err := h.sched.Submit(ctx, validRequest("https://target.example"))
	require.NoError(t, err)
	_, err = h.sched.Tick(ctx)
	require.NoError(t, err)
	h.clock.Advance(scanDuration)

	require.NotPanics(t, func() {
		fired, err := h.sched.FireDue(ctx)
		require.NoError(t, err)
		assert.True(t, fired)
	})

	got, err := h.sched.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
}

func TestFireDue_QueueWriteFailureRetriesWithSameResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	job, err := h.sched.Submit(ctx, validRequest("https://target.example"))
	require.NoError(t, err)
	_, err = h.sched.Tick(ctx)
	require.NoError(t, err)
	h.clock.Advance(scanDuration)

	// The result is stored but the queue write fails.
	h.store.failKey = domain.QueueKey
	h.store.failSet.Store(true)

	fired, err := h.sched.FireDue(ctx)
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.False(t, fired)
	assert.Equal(t, 1, h.results.Len())

	got, err := h.sched.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
	assert.Empty(t, got.ResultID)
	_, pending := h.sched.Pending()
	assert.True(t, pending)

	h.store.failSet.Store(false)
	fired, err = h.sched.FireDue(ctx)
	require.NoError(t, err)
	assert.True(t, fired)

	got, err = h.sched.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 1, h.results.Len())
	_, err = h.results.Get(ctx, got.ResultID)
	require.NoError(t, err)
}

func TestFireDue_ResultWriteFailureFailsJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	job, err := h.sched.Submit(ctx, validRequest("https://target.example"))
	require.NoError(t, err)
	_, err = h.sched.Tick(ctx)
	require.NoError(t, err)
	h.clock.Advance(scanDuration)

	h.store.failKey = domain.ResultsKey
	h.store.failSet.Store(true)

	fired, err := h.sched.FireDue(ctx)
	require.NoError(t, err)
	assert.True(t, fired)

	got, err := h.sched.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, 0, h.results.Len())
}

func TestConcurrentTicksAdmitOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	for i := 0; i < 5; i++ {
		_, err := h.sched.Submit(ctx, validRequest(fmt.Sprintf("https://t%d.example", i)))
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := h.sched.Tick(ctx)
			if err == nil && task != nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	checkInvariants(t, h.sched.List())
}

func TestInvariantsAcrossInterleavings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	// Deterministic interleaving of submit, tick, time and fire steps.
	steps := "stsfatsafttaafsstfaaftfaafa"
	for i, step := range steps {
		switch step {
		case 's':
			_, err := h.sched.Submit(ctx, validRequest(fmt.Sprintf("https://t%d.example", i)))
			require.NoError(t, err)
		case 't':
			_, err := h.sched.Tick(ctx)
			require.NoError(t, err)
		case 'a':
			h.clock.Advance(scanDuration / 2)
		case 'f':
			_, err := h.sched.FireDue(ctx)
			require.NoError(t, err)
		}
		checkInvariants(t, h.sched.List())
	}
}

func TestNew_ResumesRunningJob(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Memory: kvstore.NewMemory()}

	first := newHarnessOn(t, store, nil)
	job, err := first.sched.Submit(ctx, validRequest("https://target.example"))
	require.NoError(t, err)
	_, err = first.sched.Tick(ctx)
	require.NoError(t, err)

	// A new process rehydrates the queue with the job still running.
	second := newHarnessOn(t, store, nil)
	task, ok := second.sched.Pending()
	require.True(t, ok)
	assert.Equal(t, job.ID, task.JobID)

	again, err := second.sched.Tick(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)

	second.clock.Advance(scanDuration)
	fired, err := second.sched.FireDue(ctx)
	require.NoError(t, err)
	assert.True(t, fired)

	got, err := second.sched.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
}

func TestGet_Unknown(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.sched.Get("missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

// stalledBroker blocks every publish until ctx is canceled, like a broker
// that stopped accepting connections
type stalledBroker struct {
	calls atomic.Int64
}

func (b *stalledBroker) Publish(ctx context.Context, _ events.Event) error {
	b.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestSubmitAndTick_DoNotWaitForStalledBroker(t *testing.T) {
	broker := &stalledBroker{}
	outbox := events.NewOutbox(broker, 1, discard)
	h := newHarnessWith(t, &flakyStore{Memory: kvstore.NewMemory()}, nil, outbox)

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = outbox.Run(runCtx)
	}()
	defer func() {
		stop()
		<-done
	}()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		start := time.Now()
		_, err := h.sched.Submit(ctx, validRequest(fmt.Sprintf("https://target-%d.example", i)))
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 200*time.Millisecond, "submit %d", i)
	}

	start := time.Now()
	task, err := h.sched.Tick(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	h.clock.Advance(scanDuration)
	start = time.Now()
	fired, err := h.sched.FireDue(ctx)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	assert.Eventually(t, func() bool { return broker.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Positive(t, outbox.Dropped())
}

func TestEventsFollowCommitOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.sched.Submit(ctx, validRequest(fmt.Sprintf("https://target-%d.example", i)))
			assert.NoError(t, err)
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				_, _ = h.sched.Tick(ctx)
				h.clock.Advance(scanDuration)
				_, _ = h.sched.FireDue(ctx)
			}
		}()
	}
	wg.Wait()

	rank := map[events.Type]int{events.TypeQueued: 0, events.TypeRunning: 1, events.TypeCompleted: 2}
	last := map[string]int{}
	for _, e := range h.publisher.all() {
		prev, seen := last[e.JobID]
		if seen {
			assert.Greater(t, rank[e.Type], prev, "job %s saw %s out of order", e.JobID, e.Type)
		} else {
			assert.Equal(t, events.TypeQueued, e.Type, "job %s", e.JobID)
		}
		last[e.JobID] = rank[e.Type]
	}
	assert.Len(t, last, 4)
}

func TestFireDue_CanceledContextLeavesTaskPending(t *testing.T) {
	h := newHarness(t, nil)

	job, err := h.sched.Submit(context.Background(), validRequest("https://target.example"))
	require.NoError(t, err)
	_, err = h.sched.Tick(context.Background())
	require.NoError(t, err)
	h.clock.Advance(scanDuration)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	fired, err := h.sched.FireDue(canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, fired)

	got, err := h.sched.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
	task, ok := h.sched.Pending()
	require.True(t, ok)
	assert.Equal(t, job.ID, task.JobID)
	assert.Empty(t, h.publisher.ofType(events.TypeFailed))
	assert.Zero(t, h.results.Len())

	fired, err = h.sched.FireDue(context.Background())
	require.NoError(t, err)
	assert.True(t, fired)
	got, err = h.sched.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
}
