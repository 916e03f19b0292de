package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForTerminal(t *testing.T, s *Scheduler, name string) JobInfo {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		info, err := s.Get(name)
		require.NoError(t, err)
		if info.Status == StatusSucceeded || info.Status == StatusFailed {
			return info
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %q never reached a terminal status", name)
	return JobInfo{}
}

func TestRunExecutesJob(t *testing.T) {
	var runs atomic.Int32
	s := New()
	s.Register(Job{
		Name:     "health",
		Interval: time.Hour,
		Fn: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	require.NoError(t, s.Run(context.Background(), "health"))
	info := waitForTerminal(t, s, "health")

	assert.Equal(t, StatusSucceeded, info.Status)
	assert.Empty(t, info.Message)
	assert.NotNil(t, info.LastRunAt)
	assert.Equal(t, int32(1), runs.Load())
}

func TestRunRecordsFailure(t *testing.T) {
	s := New()
	s.Register(Job{
		Name:     "cleanup",
		Interval: time.Hour,
		Fn: func(context.Context) error {
			return errors.New("backend gone")
		},
	})

	require.NoError(t, s.Run(context.Background(), "cleanup"))
	info := waitForTerminal(t, s, "cleanup")

	assert.Equal(t, StatusFailed, info.Status)
	assert.Equal(t, "backend gone", info.Message)
}

func TestRunUnknownJob(t *testing.T) {
	s := New()
	assert.Error(t, s.Run(context.Background(), "missing"))

	_, err := s.Get("missing")
	assert.Error(t, err)
}

func TestListSortedByName(t *testing.T) {
	s := New()
	s.Register(Job{Name: "b", Interval: time.Hour, Fn: func(context.Context) error { return nil }})
	s.Register(Job{Name: "a", Interval: time.Hour, Fn: func(context.Context) error { return nil }})

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "b", items[1].Name)
	assert.Equal(t, StatusIdle, items[0].Status)
	assert.False(t, items[0].NextRunAt.IsZero())
}

func TestStartRunsDueJobs(t *testing.T) {
	var runs atomic.Int32
	s := New()
	s.Register(Job{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Fn: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}
