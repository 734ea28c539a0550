package admission

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"formrelay/internal/cooldown"
	"formrelay/internal/relay"
	"formrelay/internal/reputation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, address string) reputation.Verdict {
	args := m.Called(ctx, address)
	return args.Get(0).(reputation.Verdict)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(job *relay.Job) error {
	args := m.Called(job)
	return args.Error(0)
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeRecorder) ObserveAdmission(_ context.Context, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, classifier reputation.Classifier, queue Queue) (*Service, *cooldown.Tracker, *fakeClock, *outcomeRecorder) {
	t.Helper()
	tracker := cooldown.NewTracker(cooldown.DefaultInterval, 0)
	t.Cleanup(tracker.Close)
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	observer := &outcomeRecorder{}
	svc := NewService(classifier, tracker, queue, WithClock(clock.Now), WithObserver(observer))
	return svc, tracker, clock, observer
}

func TestSubmit_Accepted(t *testing.T) {
	classifier := &MockClassifier{}
	classifier.On("Classify", mock.Anything, "1.2.3.4").Return(reputation.Clean)
	queue := &MockQueue{}
	queue.On("Enqueue", mock.AnythingOfType("*relay.Job")).Return(nil)

	svc, tracker, clock, observer := newTestService(t, classifier, queue)

	job, err := svc.Submit(context.Background(), "1.2.3.4", []byte(`{"content":"hi"}`))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "1.2.3.4", job.Source)
	assert.Equal(t, []byte(`{"content":"hi"}`), job.Payload)
	assert.Equal(t, clock.Now(), job.EnqueuedAt)

	last, ok := tracker.LastAccepted("1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), last)

	assert.Equal(t, []string{OutcomeAccepted}, observer.outcomes)
	classifier.AssertExpectations(t)
	queue.AssertExpectations(t)
}

func TestSubmit_AbusiveCreatesNoRecordAndNoJob(t *testing.T) {
	classifier := &MockClassifier{}
	classifier.On("Classify", mock.Anything, "6.6.6.6").Return(reputation.Abusive)
	queue := &MockQueue{}

	svc, tracker, _, observer := newTestService(t, classifier, queue)

	job, err := svc.Submit(context.Background(), "6.6.6.6", []byte("{}"))
	assert.Nil(t, job)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, http.StatusForbidden, rejection.StatusCode)
	assert.Equal(t, CodeAbusiveSource, rejection.Code)
	assert.Equal(t, "You're using an unsupported internet brand or IP.", rejection.Message)

	_, ok := tracker.LastAccepted("6.6.6.6")
	assert.False(t, ok, "abusive sources must not start a cooldown")
	assert.Equal(t, 0, tracker.Len())
	queue.AssertNotCalled(t, "Enqueue", mock.Anything)
	assert.Equal(t, []string{OutcomeAbusive}, observer.outcomes)
}

func TestSubmit_CooldownScenario(t *testing.T) {
	classifier := &MockClassifier{}
	classifier.On("Classify", mock.Anything, "1.2.3.4").Return(reputation.Clean)
	queue := &MockQueue{}
	queue.On("Enqueue", mock.Anything).Return(nil)

	svc, _, clock, observer := newTestService(t, classifier, queue)

	_, err := svc.Submit(context.Background(), "1.2.3.4", []byte("{}"))
	require.NoError(t, err)

	clock.Advance(60 * time.Second)
	_, err = svc.Submit(context.Background(), "1.2.3.4", []byte("{}"))
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, http.StatusTooManyRequests, rejection.StatusCode)
	assert.Equal(t, 240, rejection.RetryAfter)
	assert.Equal(t, "Slow down! You must wait 240 seconds before sending another message.", rejection.Message)

	clock.Advance(241 * time.Second)
	_, err = svc.Submit(context.Background(), "1.2.3.4", []byte("{}"))
	require.NoError(t, err)

	queue.AssertNumberOfCalls(t, "Enqueue", 2)
	assert.Equal(t, []string{OutcomeAccepted, OutcomeCoolingDown, OutcomeAccepted}, observer.outcomes)
}

func TestSubmit_ReputationCheckedBeforeCooldown(t *testing.T) {
	classifier := &MockClassifier{}
	classifier.On("Classify", mock.Anything, "1.2.3.4").Return(reputation.Clean).Once()
	classifier.On("Classify", mock.Anything, "1.2.3.4").Return(reputation.Abusive).Once()
	queue := &MockQueue{}
	queue.On("Enqueue", mock.Anything).Return(nil)

	svc, _, clock, _ := newTestService(t, classifier, queue)

	_, err := svc.Submit(context.Background(), "1.2.3.4", []byte("{}"))
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = svc.Submit(context.Background(), "1.2.3.4", []byte("{}"))
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, CodeAbusiveSource, rejection.Code, "a source that is both abusive and cooling down gets the reputation error")
}

func TestSubmit_EnqueueFailure(t *testing.T) {
	classifier := &MockClassifier{}
	classifier.On("Classify", mock.Anything, "1.2.3.4").Return(reputation.Clean)
	queue := &MockQueue{}
	queue.On("Enqueue", mock.Anything).Return(relay.ErrClosed)

	svc, tracker, _, observer := newTestService(t, classifier, queue)

	_, err := svc.Submit(context.Background(), "1.2.3.4", []byte("{}"))
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, http.StatusInternalServerError, rejection.StatusCode)
	assert.True(t, errors.Is(err, relay.ErrClosed))
	assert.Equal(t, []string{OutcomeUnavailable}, observer.outcomes)

	_, recorded := tracker.LastAccepted("1.2.3.4")
	assert.False(t, recorded, "a submission that was never queued must not start a cooldown")
}

func TestSubmit_EnqueueFailureLeavesSourceFree(t *testing.T) {
	classifier := &MockClassifier{}
	classifier.On("Classify", mock.Anything, "1.2.3.4").Return(reputation.Clean)
	queue := &MockQueue{}
	queue.On("Enqueue", mock.Anything).Return(relay.ErrClosed).Once()
	queue.On("Enqueue", mock.Anything).Return(nil).Once()

	svc, _, clock, observer := newTestService(t, classifier, queue)

	_, err := svc.Submit(context.Background(), "1.2.3.4", []byte("{}"))
	require.Error(t, err)

	clock.Advance(time.Second)
	job, err := svc.Submit(context.Background(), "1.2.3.4", []byte("{}"))
	require.NoError(t, err)
	assert.NotNil(t, job)
	assert.Equal(t, []string{OutcomeUnavailable, OutcomeAccepted}, observer.outcomes)
	queue.AssertExpectations(t)
}

func TestSubmit_ConcurrentSameSourceEnqueuesOnce(t *testing.T) {
	tracker := cooldown.NewTracker(cooldown.DefaultInterval, 0)
	defer tracker.Close()

	queue := &MockQueue{}
	queue.On("Enqueue", mock.Anything).Return(nil)
	svc := NewService(reputation.AllowAll{}, tracker, queue)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Submit(context.Background(), "9.9.9.9", []byte("{}")); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	queue.AssertNumberOfCalls(t, "Enqueue", 1)
}

func TestRejectionError(t *testing.T) {
	err := NewUnavailableError(errors.New("queue closed"))
	assert.Equal(t, "Failed to send message.: queue closed", err.Error())
	assert.Equal(t, "You're using an unsupported internet brand or IP.", NewAbusiveSourceError().Error())
	assert.Equal(t, 0, NewAbusiveSourceError().RetryAfter)
}
