package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func recorder(log *[]string, name string, requires ...string) Func {
	return Func{
		Name:     name,
		Requires: requires,
		StartFn: func(context.Context) error {
			*log = append(*log, "start:"+name)
			return nil
		},
		StopFn: func(context.Context) error {
			*log = append(*log, "stop:"+name)
			return nil
		},
	}
}

func TestStartOrdersByDependencies(t *testing.T) {
	var log []string
	s := NewStartup(newTestLogger(), 1)
	s.AddDependency(recorder(&log, "http", "engine"))
	s.AddDependency(recorder(&log, "engine", "state"))
	s.AddDependency(recorder(&log, "state"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:state", "start:engine", "start:http"}, log)
	assert.Equal(t, StatusStarted, s.StatusOf("http"))

	log = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:http", "stop:engine", "stop:state"}, log)
	assert.Equal(t, StatusStopped, s.StatusOf("state"))
}

func TestStartRetriesUntilSuccess(t *testing.T) {
	calls := 0
	s := NewStartup(newTestLogger(), 3).WithBackoffUnit(time.Millisecond)
	s.AddDependency(Func{
		Name: "redis",
		StartFn: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, s.Attempts())
}

func TestStartGivesUp(t *testing.T) {
	boom := errors.New("connection refused")
	s := NewStartup(newTestLogger(), 2).WithBackoffUnit(time.Millisecond)
	s.AddDependency(Func{Name: "kafka", StartFn: func(context.Context) error { return boom }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StatusFailed, s.StatusOf("kafka"))
}

func TestStartUnknownDependency(t *testing.T) {
	s := NewStartup(newTestLogger(), 1)
	s.AddDependency(Func{Name: "http", Requires: []string{"missing"}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown startup dependency "missing"`)
}

func TestStartCycle(t *testing.T) {
	s := NewStartup(newTestLogger(), 1)
	s.AddDependency(Func{Name: "a", Requires: []string{"b"}})
	s.AddDependency(Func{Name: "b", Requires: []string{"a"}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestStopContinuesPastErrors(t *testing.T) {
	var log []string
	boom := errors.New("flush failed")
	s := NewStartup(newTestLogger(), 1)
	s.AddDependency(recorder(&log, "state"))
	s.AddDependency(Func{
		Name:     "engine",
		Requires: []string{"state"},
		StopFn:   func(context.Context) error { return boom },
	})

	require.NoError(t, s.Start(context.Background()))
	log = nil

	err := s.Stop(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"stop:state"}, log)
}
