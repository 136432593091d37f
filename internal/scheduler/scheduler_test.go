package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIntervalRejectsDuplicates(t *testing.T) {
	s, err := New(zerolog.Nop())
	require.NoError(t, err)
	defer s.Stop()

	task := func(context.Context) error { return nil }
	require.NoError(t, s.RegisterInterval("pass", time.Hour, task))
	assert.Error(t, s.RegisterInterval("pass", time.Hour, task))
}

func TestUnknownTask(t *testing.T) {
	s, err := New(zerolog.Nop())
	require.NoError(t, err)
	defer s.Stop()

	_, err = s.NextRun("missing")
	assert.Error(t, err)
	assert.Error(t, s.RunNow("missing"))
}

func TestRunNowExecutesTask(t *testing.T) {
	s, err := New(zerolog.Nop())
	require.NoError(t, err)
	defer s.Stop()

	ran := make(chan struct{})
	require.NoError(t, s.RegisterInterval("pass", time.Hour, func(context.Context) error {
		close(ran)
		return nil
	}))

	s.Start()
	require.NoError(t, s.RunNow("pass"))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}

	next, err := s.NextRun("pass")
	require.NoError(t, err)
	assert.False(t, next.IsZero())
}
