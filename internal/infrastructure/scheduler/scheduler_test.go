package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler_RegisterRejectsDuplicates(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &countingJob{name: "rebuild"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	err := s.Register(job, NewIntervalSchedule(time.Hour))
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
}

func TestScheduler_RegisterValidatesArguments(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "j"}, nil), ErrNilSchedule)
}

func TestScheduler_RegisterCronScheduledJob(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &countingJob{name: "nightly_resync"}

	require.NoError(t, s.Register(job, MustParseCronExpression(EveryDayMidnight)))

	info, err := s.GetJobInfo("nightly_resync")
	require.NoError(t, err)
	assert.Equal(t, EveryDayMidnight, info.Schedule)
	assert.Equal(t, 0, info.NextRun.Hour())
	assert.Equal(t, 0, info.NextRun.Minute())
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &countingJob{name: "rebuild"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "rebuild")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "rebuild", result.JobName)
	assert.Equal(t, int64(1), job.runs.Load())
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	_, err := s.RunNow(context.Background(), "ghost")

	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunNowReportsJobError(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &countingJob{name: "rebuild", err: errors.New("store unavailable")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "rebuild")

	assert.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, s.Register(&countingJob{name: "rebuild"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_DisableAndEnableJob(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, s.Register(&countingJob{name: "rebuild"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.DisableJob("rebuild"))
	info, err := s.GetJobInfo("rebuild")
	require.NoError(t, err)
	assert.False(t, info.Enabled)

	require.NoError(t, s.EnableJob("rebuild"))
	info, err = s.GetJobInfo("rebuild")
	require.NoError(t, err)
	assert.True(t, info.Enabled)

	assert.ErrorIs(t, s.DisableJob("ghost"), ErrJobNotFound)
}

func TestScheduler_HistoryAndMetrics(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &countingJob{name: "rebuild"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	_, err := s.RunNow(context.Background(), "rebuild")
	require.NoError(t, err)
	_, err = s.RunNow(context.Background(), "rebuild")
	require.NoError(t, err)

	history := s.GetHistory(10)
	assert.Len(t, history, 2)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(2), snap.TotalSuccesses)
}
