// Package probe turns single endpoint exchanges into resilient probe results and runs the per-cycle fan-out.
package probe

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/emozilla/ethereum-validator-stack/clients/rpcerror"
	"github.com/emozilla/ethereum-validator-stack/types"
)

// Client is a single-exchange endpoint client.
type Client interface {
	GetBackend() types.BackendKind
	GetName() string
	Observe(ctx context.Context) (*types.Observation, error)
}

type RetryConfig struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         time.Duration
	CycleTimeout   time.Duration
}

// WorstCase is the longest a single probe may take.
func (c *RetryConfig) WorstCase() time.Duration {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return time.Duration(attempts) * (c.Timeout + c.MaxBackoff)
}

type Runner struct {
	config RetryConfig
	logger logrus.FieldLogger
}

func NewRunner(config RetryConfig, logger logrus.FieldLogger) *Runner {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	return &Runner{
		config: config,
		logger: logger.WithField("module", "probe"),
	}
}

func (r *Runner) GetConfig() RetryConfig {
	return r.config
}

func (r *Runner) newBackoff() retry.Backoff {
	if r.config.InitialBackoff <= 0 {
		// retry immediately
		return retry.WithMaxRetries(uint64(r.config.MaxAttempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		}))
	}

	backoff := retry.NewExponential(r.config.InitialBackoff)

	// jitter first so the cap still bounds the final delay
	if r.config.Jitter > 0 {
		jitter := r.config.Jitter
		if jitter > r.config.InitialBackoff {
			jitter = r.config.InitialBackoff
		}
		backoff = retry.WithJitter(jitter, backoff)
	}
	if r.config.MaxBackoff > 0 {
		backoff = retry.WithCappedDuration(r.config.MaxBackoff, backoff)
	}

	return retry.WithMaxRetries(uint64(r.config.MaxAttempts-1), backoff)
}

// Probe runs the exchange until it succeeds, fails non-transiently or runs out of attempts.
// Failures are returned as part of the result, never raised.
func (r *Runner) Probe(ctx context.Context, client Client) *types.ProbeResult {
	backend := client.GetBackend()
	logger := r.logger.WithFields(logrus.Fields{
		"backend": backend.String(),
		"client":  client.GetName(),
	})

	start := time.Now()
	attempts := 0

	var obs *types.Observation
	var lastErr *types.ProbeError

	err := retry.Do(ctx, r.newBackoff(), func(ctx context.Context) error {
		attempts++

		callCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()

		result, err := client.Observe(callCtx)
		if err == nil {
			obs = result
			lastErr = nil
			return nil
		}

		lastErr = rpcerror.Classify(ctx, err)
		if lastErr.Transient() && attempts < r.config.MaxAttempts {
			logger.Warnf("probe attempt %v/%v failed: %v, retrying...", attempts, r.config.MaxAttempts, lastErr)
			return retry.RetryableError(lastErr)
		}

		logger.Debugf("probe attempt %v/%v failed: %v", attempts, r.config.MaxAttempts, lastErr)
		return lastErr
	})

	if err != nil && ctx.Err() != nil && (lastErr == nil || lastErr.Kind != types.ErrorCancelled) {
		// cancelled while waiting for the next attempt
		lastErr = &types.ProbeError{
			Kind:    types.ErrorCancelled,
			Message: fmt.Sprintf("probe did not complete after %v attempts: %v", attempts, ctx.Err()),
			Err:     lastErr,
		}
	}

	result := types.NewProbeResult(backend, obs, lastErr, time.Since(start), attempts)
	logger.Debugf("probe finished: reachable: %v, attempts: %v, latency: %v ms", result.Reachable, attempts, result.Latency.Milliseconds())

	return result
}

// Cycle probes all clients concurrently and blocks until every probe resolved.
// The backends must be unique.
func (r *Runner) Cycle(ctx context.Context, clients []Client) (map[types.BackendKind]*types.ProbeResult, error) {
	seen := map[types.BackendKind]bool{}
	for _, client := range clients {
		backend := client.GetBackend()
		if seen[backend] {
			return nil, fmt.Errorf("duplicate client for backend %v", backend)
		}
		seen[backend] = true
	}

	if r.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.CycleTimeout)
		defer cancel()
	}

	// one slot per probe, merged after the barrier
	results := make([]*types.ProbeResult, len(clients))

	var group errgroup.Group
	for idx, client := range clients {
		idx, client := idx, client

		group.Go(func() error {
			defer func() {
				if err := recover(); err != nil {
					r.logger.Errorf("uncaught panic in %v probe: %v, stack: %v", client.GetBackend(), err, string(debug.Stack()))
					results[idx] = types.NewProbeResult(client.GetBackend(), nil, &types.ProbeError{
						Kind:    types.ErrorMalformedResponse,
						Message: fmt.Sprintf("probe panicked: %v", err),
					}, 0, 1)
				}
			}()

			results[idx] = r.Probe(ctx, client)
			return nil
		})
	}

	_ = group.Wait()

	merged := make(map[types.BackendKind]*types.ProbeResult, len(results))
	for _, result := range results {
		merged[result.Backend] = result
	}

	return merged, nil
}
