package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"studentauth/internal/auth"
)

type fakeMailer struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Email
}

func (m *fakeMailer) Send(_ context.Context, email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *fakeMailer) snapshot() (int, []Email) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]Email(nil), m.sent...)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordNotification(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[kind+"/"+outcome]++
}

func (r *countingRecorder) SetQueueDepth(int) {}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func newTestDispatcher(t *testing.T, mailer Mailer, rec Recorder) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(NewMemoryQueue(8, 5*time.Millisecond), mailer, DispatcherConfig{
		Workers:   2,
		RetryBase: time.Millisecond,
	}, WithDispatcherRecorder(rec))
	require.NoError(t, err)
	return d
}

func TestDispatcher_DeliversAfterRetries(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mailer := &fakeMailer{failures: 2}
	rec := &countingRecorder{}
	d := newTestDispatcher(t, mailer, rec)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	require.NoError(t, d.Notify(context.Background(), auth.Notification{
		Kind:     auth.NotifyPasswordResetOTP,
		To:       "alice@x.com",
		Name:     "Alice",
		OTP:      123456,
		ValidFor: 5 * time.Minute,
	}))

	require.Eventually(t, func() bool {
		_, sent := mailer.snapshot()
		return len(sent) == 1
	}, 2*time.Second, 5*time.Millisecond)

	calls, sent := mailer.snapshot()
	assert.Equal(t, 3, calls)
	assert.Contains(t, sent[0].Text, "123456")
	assert.Equal(t, 1, rec.get("password_reset_otp/queued"))
	require.Eventually(t, func() bool { return rec.get("password_reset_otp/delivered") == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_GivesUpAfterMaxRetries(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mailer := &fakeMailer{failures: 100}
	rec := &countingRecorder{}
	d := newTestDispatcher(t, mailer, rec)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	require.NoError(t, d.Notify(context.Background(), auth.Notification{Kind: auth.NotifyPasswordChanged, To: "a@x.com"}))

	require.Eventually(t, func() bool { return rec.get("password_changed/failed") == 1 }, 2*time.Second, 5*time.Millisecond)

	calls, sent := mailer.snapshot()
	assert.Equal(t, 4, calls, "one attempt plus three retries")
	assert.Empty(t, sent)
}

func TestDispatcher_NotifyWhenQueueFull(t *testing.T) {
	rec := &countingRecorder{}
	d, err := NewDispatcher(NewMemoryQueue(1, time.Millisecond), &fakeMailer{}, DispatcherConfig{}, WithDispatcherRecorder(rec))
	require.NoError(t, err)

	n := auth.Notification{Kind: auth.NotifyVerification, To: "a@x.com"}
	require.NoError(t, d.Notify(context.Background(), n))

	err = d.Notify(context.Background(), n)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, rec.get("verification/dropped"))
}

func TestDispatcher_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := newTestDispatcher(t, &fakeMailer{}, nil)
	require.NoError(t, d.Start(context.Background()))
	assert.Error(t, d.Start(context.Background()))

	d.Stop()
	d.Stop()
}

func TestDispatcher_StopsWithParentContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	d := newTestDispatcher(t, &fakeMailer{}, nil)
	require.NoError(t, d.Start(ctx))

	cancel()
	d.Stop()
}

func TestNewDispatcher_Validation(t *testing.T) {
	_, err := NewDispatcher(nil, &fakeMailer{}, DispatcherConfig{})
	assert.Error(t, err)
	_, err = NewDispatcher(NewMemoryQueue(1, 0), nil, DispatcherConfig{})
	assert.Error(t, err)
}

// trackingQueue counts Pop and Ack calls on a MemoryQueue.
type trackingQueue struct {
	*MemoryQueue
	pops atomic.Int64
	acks atomic.Int64
}

func (q *trackingQueue) Pop(ctx context.Context) (*Job, error) {
	q.pops.Add(1)
	return q.MemoryQueue.Pop(ctx)
}

func (q *trackingQueue) Ack(ctx context.Context, job *Job) error {
	q.acks.Add(1)
	return q.MemoryQueue.Ack(ctx, job)
}

func TestDispatcher_AcksFinishedJobs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := &trackingQueue{MemoryQueue: NewMemoryQueue(4, 5*time.Millisecond)}
	rec := &countingRecorder{}
	d, err := NewDispatcher(q, &fakeMailer{}, DispatcherConfig{Workers: 1, RetryBase: time.Millisecond}, WithDispatcherRecorder(rec))
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	require.NoError(t, d.Notify(context.Background(), auth.Notification{Kind: auth.NotifyPasswordChanged, To: "a@x.com"}))

	require.Eventually(t, func() bool { return q.acks.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.get("password_changed/delivered"))
}

func TestDispatcher_WorkersExitWhenQueueCloses(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := &trackingQueue{MemoryQueue: NewMemoryQueue(4, time.Hour)}
	d, err := NewDispatcher(q, &fakeMailer{}, DispatcherConfig{Workers: 2})
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	q.Close()

	// Each worker sees ErrQueueClosed once and returns.
	require.Eventually(t, func() bool { return q.pops.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), q.pops.Load())
}
