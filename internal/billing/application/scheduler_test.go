package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingJob struct {
	mu   sync.Mutex
	runs []string
}

func (j *countingJob) RunDaily(_ context.Context, tenantID string, now time.Time) error {
	j.mu.Lock()
	j.runs = append(j.runs, tenantID+"@"+now.Format("2006-01-02"))
	j.mu.Unlock()
	return nil
}

func (j *countingJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.runs)
}

func TestScheduler_TickRunsOncePerDay(t *testing.T) {
	job := &countingJob{}
	s, err := NewScheduler(map[string]DailyJob{"refresh": job}, []string{"t-1", "t-2", ""}, "02:30")
	require.NoError(t, err)

	ctx := context.Background()
	day := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)

	s.Tick(ctx, day.Add(2*time.Hour+29*time.Minute))
	assert.Equal(t, 0, job.count())

	s.Tick(ctx, day.Add(2*time.Hour+30*time.Minute))
	assert.Equal(t, 2, job.count())

	s.Tick(ctx, day.Add(5*time.Hour))
	assert.Equal(t, 2, job.count())

	s.Tick(ctx, day.AddDate(0, 0, 1).Add(2*time.Hour+31*time.Minute))
	assert.Equal(t, 4, job.count())
	assert.Equal(t, []string{"t-1@2025-03-15", "t-2@2025-03-15", "t-1@2025-03-16", "t-2@2025-03-16"}, job.runs)
}

func TestNewScheduler_Validates(t *testing.T) {
	_, err := NewScheduler(map[string]DailyJob{"refresh": &countingJob{}}, []string{"t-1"}, "25:99")
	assert.Error(t, err)
	_, err = NewScheduler(nil, []string{"t-1"}, "02:00")
	assert.Error(t, err)
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	job := &countingJob{}
	s, err := NewScheduler(map[string]DailyJob{"refresh": job}, []string{"t-1"}, "02:00",
		WithClock(fixedClock{time.Date(2025, time.March, 15, 3, 0, 0, 0, time.UTC)}))
	require.NoError(t, err)
	s.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return job.count() == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1, job.count())
}
