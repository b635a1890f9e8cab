package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/queue"
	memqueue "github.com/JakeFAU/rpa-crawler/internal/queue/memory"
)

var submittedAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestSubmitCreatesPendingJobsAndEnqueues(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	broker := memqueue.New(4)
	d := New(store, broker, &seqIDs{}, fixedClock{}, Config{}, zap.NewNop())

	jobs, err := d.Submit(context.Background(), crawler.SourceHockey, crawler.SourceOscar)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "job-1", jobs[0].ID)
	require.Equal(t, crawler.SourceOscar, jobs[1].Source)
	for _, job := range jobs {
		require.Equal(t, crawler.JobStatusPending, job.Status)
		require.Equal(t, submittedAt, job.CreatedAt)
		require.Equal(t, 0, job.ResultCount)
		require.Equal(t, job, store.jobs[job.ID])
	}
	require.Equal(t, 2, broker.Len())
}

func TestSubmitEnqueueFailureLeavesJobsPending(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	broker := &failingBroker{publishBeforeFail: 1}
	d := New(store, broker, &seqIDs{}, fixedClock{}, Config{EnqueueTimeout: time.Second}, zap.NewNop())

	jobs, err := d.Submit(context.Background(), crawler.SourceHockey, crawler.SourceOscar)
	require.Error(t, err)
	require.Len(t, jobs, 2)
	require.Len(t, store.jobs, 2)
	for _, job := range store.jobs {
		require.Equal(t, crawler.JobStatusPending, job.Status)
	}
	require.Equal(t, []string{"job-1"}, broker.published)
}

func TestSubmitStoreFailureIsTransient(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	store.err = errors.New("too many connections")
	broker := memqueue.New(1)
	d := New(store, broker, &seqIDs{}, fixedClock{}, Config{}, zap.NewNop())

	_, err := d.Submit(context.Background(), crawler.SourceHockey)
	require.Error(t, err)
	require.True(t, crawler.IsKind(err, crawler.KindTransient))
	require.Equal(t, 0, broker.Len())
}

func TestSubmitCreateFailureStillEnqueuesEarlierJobs(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	store.failAfter = 1
	store.err = errors.New("too many connections")
	broker := memqueue.New(4)
	d := New(store, broker, &seqIDs{}, fixedClock{}, Config{}, zap.NewNop())

	jobs, err := d.Submit(context.Background(), crawler.SourceHockey, crawler.SourceOscar)
	require.Error(t, err)
	require.True(t, crawler.IsKind(err, crawler.KindTransient))
	require.Len(t, jobs, 1)
	require.Equal(t, crawler.SourceHockey, jobs[0].Source)
	require.Len(t, store.jobs, 1)
	require.Equal(t, 1, broker.Len())
}

func TestSubmitCreateAndEnqueueFailuresAreJoined(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	store.failAfter = 1
	store.err = errors.New("too many connections")
	broker := &failingBroker{}
	d := New(store, broker, &seqIDs{}, fixedClock{}, Config{EnqueueTimeout: time.Second}, zap.NewNop())

	jobs, err := d.Submit(context.Background(), crawler.SourceHockey, crawler.SourceOscar)
	require.Len(t, jobs, 1)
	require.ErrorContains(t, err, "too many connections")
	require.ErrorContains(t, err, "enqueue jobs: channel closed")
	require.Empty(t, broker.published)
}

func TestSubmitRequiresSources(t *testing.T) {
	t.Parallel()

	d := New(newFakeJobStore(), memqueue.New(1), &seqIDs{}, fixedClock{}, Config{}, nil)
	_, err := d.Submit(context.Background())
	require.Error(t, err)
}

func TestEnqueueProxiesToBroker(t *testing.T) {
	t.Parallel()

	broker := memqueue.New(1)
	d := New(newFakeJobStore(), broker, &seqIDs{}, fixedClock{}, Config{}, zap.NewNop())
	require.NoError(t, d.Enqueue(context.Background(), "job-9", crawler.SourceOscar))
	require.Equal(t, 1, broker.Len())

	failing := &failingBroker{}
	d = New(newFakeJobStore(), failing, &seqIDs{}, fixedClock{}, Config{}, zap.NewNop())
	require.Error(t, d.Enqueue(context.Background(), "job-9", crawler.SourceOscar))
}

// --- fakes ---

type fixedClock struct{}

func (fixedClock) Now() time.Time { return submittedAt }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("job-%d", s.n), nil
}

type fakeJobStore struct {
	jobs map[string]crawler.Job
	err  error
	// failAfter lets that many creates succeed before err applies.
	failAfter int
	created   int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]crawler.Job)}
}

func (s *fakeJobStore) CreateJob(_ context.Context, job crawler.Job) error {
	if s.err != nil && s.created >= s.failAfter {
		return s.err
	}
	s.created++
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) GetJob(_ context.Context, id string) (crawler.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return crawler.Job{}, crawler.ErrJobNotFound
	}
	return job, nil
}

func (s *fakeJobStore) UpdateJob(_ context.Context, job crawler.Job) error {
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) ListJobs(context.Context, int, int) ([]crawler.Job, error) {
	return nil, nil
}

type failingBroker struct {
	publishBeforeFail int
	published         []string
}

func (b *failingBroker) Enqueue(context.Context, queue.Delivery) error {
	return errors.New("connection refused")
}

func (b *failingBroker) EnqueueBatch(_ context.Context, ds []queue.Delivery) (int, error) {
	for i, d := range ds {
		if i >= b.publishBeforeFail {
			return i, errors.New("channel closed")
		}
		b.published = append(b.published, d.JobID)
	}
	return len(ds), nil
}

func (b *failingBroker) Consume(context.Context, queue.Handler) error { return nil }

func (b *failingBroker) Close() error { return nil }
