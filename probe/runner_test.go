package probe

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emozilla/ethereum-validator-stack/types"
)

type fakeClient struct {
	backend types.BackendKind
	calls   atomic.Int32
	observe func(ctx context.Context, call int) (*types.Observation, error)
}

func (c *fakeClient) GetBackend() types.BackendKind {
	return c.backend
}

func (c *fakeClient) GetName() string {
	return "fake-" + c.backend.String()
}

func (c *fakeClient) Observe(ctx context.Context) (*types.Observation, error) {
	call := int(c.calls.Add(1))
	return c.observe(ctx, call)
}

func syncedObservation() *types.Observation {
	return &types.Observation{
		Syncing:      types.BoolPtr(false),
		SyncDistance: types.Uint64Ptr(0),
		State:        "online",
	}
}

func failWith(kind types.ErrorKind, failures int) func(ctx context.Context, call int) (*types.Observation, error) {
	return func(ctx context.Context, call int) (*types.Observation, error) {
		if call <= failures {
			return nil, &types.ProbeError{Kind: kind, Message: "injected"}
		}
		return syncedObservation(), nil
	}
}

func newTestRunner(config RetryConfig) *Runner {
	logger, _ := test.NewNullLogger()
	return NewRunner(config, logger)
}

var fastRetries = RetryConfig{
	Timeout:        200 * time.Millisecond,
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     5 * time.Millisecond,
	Jitter:         time.Millisecond,
}

func TestProbeRecoversFromTransientFailures(t *testing.T) {
	client := &fakeClient{backend: types.BackendExecution, observe: failWith(types.ErrorTimeout, 2)}

	result := newTestRunner(fastRetries).Probe(context.Background(), client)

	assert.True(t, result.Reachable)
	assert.Nil(t, result.Error)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "online", result.State)
}

func TestProbeExhaustsAttempts(t *testing.T) {
	client := &fakeClient{backend: types.BackendConsensus, observe: failWith(types.ErrorConnectionRefused, 4)}

	result := newTestRunner(fastRetries).Probe(context.Background(), client)

	assert.False(t, result.Reachable)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, int32(3), client.calls.Load())
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrorConnectionRefused, result.Error.Kind)
}

func TestProbeDoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *types.ProbeError
	}{
		{"malformed", &types.ProbeError{Kind: types.ErrorMalformedResponse, Message: "bad json"}},
		{"client error", &types.ProbeError{Kind: types.ErrorHttp, Status: 404}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{backend: types.BackendValidatorClient, observe: func(ctx context.Context, call int) (*types.Observation, error) {
				return nil, tt.err
			}}

			result := newTestRunner(fastRetries).Probe(context.Background(), client)

			assert.Equal(t, 1, result.Attempts)
			assert.True(t, result.Reachable, "protocol errors come from a reachable backend")
			assert.Equal(t, tt.err, result.Error)
		})
	}
}

func TestProbeRetriesServerErrors(t *testing.T) {
	client := &fakeClient{backend: types.BackendConsensus, observe: func(ctx context.Context, call int) (*types.Observation, error) {
		if call == 1 {
			return nil, &types.ProbeError{Kind: types.ErrorHttp, Status: 503}
		}
		return syncedObservation(), nil
	}}

	result := newTestRunner(fastRetries).Probe(context.Background(), client)

	assert.True(t, result.Reachable)
	assert.Equal(t, 2, result.Attempts)
}

func TestProbeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	client := &fakeClient{backend: types.BackendExecution, observe: func(ctx context.Context, call int) (*types.Observation, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	result := newTestRunner(fastRetries).Probe(ctx, client)

	assert.False(t, result.Reachable)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrorCancelled, result.Error.Kind)
	assert.Equal(t, 1, result.Attempts)
}

func TestProbeAttemptTimeout(t *testing.T) {
	config := fastRetries
	config.Timeout = 20 * time.Millisecond
	config.MaxAttempts = 2

	client := &fakeClient{backend: types.BackendExecution, observe: func(ctx context.Context, call int) (*types.Observation, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	result := newTestRunner(config).Probe(context.Background(), client)

	assert.False(t, result.Reachable)
	assert.Equal(t, 2, result.Attempts)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrorTimeout, result.Error.Kind)
}

func TestRetryConfigWorstCase(t *testing.T) {
	config := RetryConfig{Timeout: 2 * time.Second, MaxAttempts: 3, MaxBackoff: time.Second}
	assert.Equal(t, 9*time.Second, config.WorstCase())

	config.MaxAttempts = 0
	assert.Equal(t, 3*time.Second, config.WorstCase())
}

func TestCycleRunsProbesConcurrently(t *testing.T) {
	slow := 150 * time.Millisecond

	clients := []Client{}
	for _, backend := range types.AllBackends {
		clients = append(clients, &fakeClient{backend: backend, observe: func(ctx context.Context, call int) (*types.Observation, error) {
			select {
			case <-time.After(slow):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return syncedObservation(), nil
		}})
	}

	config := fastRetries
	config.Timeout = time.Second

	start := time.Now()
	results, err := newTestRunner(config).Cycle(context.Background(), clients)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, backend := range types.AllBackends {
		assert.True(t, results[backend].Reachable, backend.String())
	}
	assert.Less(t, elapsed, 3*slow, "probes ran sequentially")
}

func TestCycleSlowBackendDoesNotBlockOthers(t *testing.T) {
	clients := []Client{
		&fakeClient{backend: types.BackendExecution, observe: func(ctx context.Context, call int) (*types.Observation, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		&fakeClient{backend: types.BackendConsensus, observe: failWith(types.ErrorTimeout, 0)},
		&fakeClient{backend: types.BackendValidatorClient, observe: failWith(types.ErrorTimeout, 0)},
	}

	config := fastRetries
	config.Timeout = 30 * time.Millisecond
	config.MaxAttempts = 1

	results, err := newTestRunner(config).Cycle(context.Background(), clients)
	require.NoError(t, err)

	assert.False(t, results[types.BackendExecution].Reachable)
	assert.Equal(t, types.ErrorTimeout, results[types.BackendExecution].Error.Kind)
	assert.True(t, results[types.BackendConsensus].Reachable)
	assert.True(t, results[types.BackendValidatorClient].Reachable)
	assert.Less(t, results[types.BackendConsensus].Latency, 30*time.Millisecond)
}

func TestCycleTimeout(t *testing.T) {
	clients := []Client{
		&fakeClient{backend: types.BackendExecution, observe: func(ctx context.Context, call int) (*types.Observation, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	}

	config := fastRetries
	config.Timeout = time.Second
	config.CycleTimeout = 30 * time.Millisecond

	results, err := newTestRunner(config).Cycle(context.Background(), clients)
	require.NoError(t, err)

	result := results[types.BackendExecution]
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrorCancelled, result.Error.Kind)
}

func TestCycleRejectsDuplicateBackends(t *testing.T) {
	clients := []Client{
		&fakeClient{backend: types.BackendConsensus, observe: failWith(types.ErrorTimeout, 0)},
		&fakeClient{backend: types.BackendConsensus, observe: failWith(types.ErrorTimeout, 0)},
	}

	_, err := newTestRunner(fastRetries).Cycle(context.Background(), clients)
	assert.Error(t, err)
}

func TestCycleRecoversPanics(t *testing.T) {
	clients := []Client{
		&fakeClient{backend: types.BackendExecution, observe: func(ctx context.Context, call int) (*types.Observation, error) {
			panic("boom")
		}},
		&fakeClient{backend: types.BackendConsensus, observe: failWith(types.ErrorTimeout, 0)},
	}

	results, err := newTestRunner(fastRetries).Cycle(context.Background(), clients)
	require.NoError(t, err)

	result := results[types.BackendExecution]
	require.NotNil(t, result)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrorMalformedResponse, result.Error.Kind)
	assert.Contains(t, result.Error.Message, "boom")
	assert.True(t, results[types.BackendConsensus].Reachable)
}

func TestProbeWithoutBackoff(t *testing.T) {
	config := RetryConfig{Timeout: 100 * time.Millisecond, MaxAttempts: 3}
	client := &fakeClient{backend: types.BackendExecution, observe: failWith(types.ErrorConnectionRefused, 2)}

	result := newTestRunner(config).Probe(context.Background(), client)

	assert.True(t, result.Reachable)
	assert.Equal(t, 3, result.Attempts)
}
