package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emozilla/ethereum-validator-stack/clients/consensus"
	"github.com/emozilla/ethereum-validator-stack/clients/execution"
	"github.com/emozilla/ethereum-validator-stack/clients/validator"
	"github.com/emozilla/ethereum-validator-stack/probe"
	"github.com/emozilla/ethereum-validator-stack/reconciler"
	"github.com/emozilla/ethereum-validator-stack/types"
	"github.com/emozilla/ethereum-validator-stack/utils"
)

// HealthService wires the endpoint clients, the probe runner and the reconciler for repeated cycles.
// Nothing but the configuration is shared between cycles.
type HealthService struct {
	logger     logrus.FieldLogger
	clients    []probe.Client
	runner     *probe.Runner
	reconciler *reconciler.Reconciler
	now        func() time.Time
}

// NewHealthService validates the configuration and builds the service. Configuration problems are
// returned as *utils.ConfigError.
func NewHealthService(cfg *types.Config, logger logrus.FieldLogger) (*HealthService, error) {
	err := utils.ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}

	validatorIndex, err := utils.ParseValidatorIndex(cfg.Validator.Index)
	if err != nil {
		return nil, err
	}

	beaconHeaders := cfg.Consensus.Headers
	if cfg.ValidatorClient.BeaconUrl != cfg.Consensus.Url {
		beaconHeaders = cfg.ValidatorClient.Headers
	}

	clients := []probe.Client{
		execution.NewClient(&execution.ClientConfig{
			URL:     cfg.Execution.Url,
			Name:    "execution",
			Headers: cfg.Execution.Headers,
			Timeout: cfg.Probe.Timeout,
		}, logger),
		consensus.NewClient(&consensus.ClientConfig{
			URL:     cfg.Consensus.Url,
			Name:    "consensus",
			Headers: cfg.Consensus.Headers,
			Timeout: cfg.Probe.Timeout,
		}, logger),
		validator.NewClient(&validator.ClientConfig{
			URL:             cfg.ValidatorClient.Url,
			Name:            "validator",
			HealthPath:      cfg.ValidatorClient.HealthPath,
			Headers:         cfg.ValidatorClient.Headers,
			Timeout:         cfg.Probe.Timeout,
			BeaconURL:       cfg.ValidatorClient.BeaconUrl,
			BeaconHeaders:   beaconHeaders,
			ValidatorIndex:  validatorIndex,
			SlotsPerEpoch:   cfg.Thresholds.SlotsPerEpoch,
			SecondsPerSlot:  cfg.Thresholds.SecondsPerSlot,
			DutyStaleEpochs: cfg.Thresholds.DutyStaleEpochs,
		}, logger),
	}

	return NewHealthServiceWithClients(cfg, clients, logger), nil
}

// NewHealthServiceWithClients builds the service around prepared clients. The configuration is
// expected to be validated already.
func NewHealthServiceWithClients(cfg *types.Config, clients []probe.Client, logger logrus.FieldLogger) *HealthService {
	runner := probe.NewRunner(probe.RetryConfig{
		Timeout:        cfg.Probe.Timeout,
		MaxAttempts:    cfg.Probe.MaxAttempts,
		InitialBackoff: cfg.Probe.InitialBackoff,
		MaxBackoff:     cfg.Probe.MaxBackoff,
		Jitter:         cfg.Probe.Jitter,
		CycleTimeout:   cfg.Probe.CycleTimeout,
	}, logger)

	return &HealthService{
		logger:  logger.WithField("service", "health"),
		clients: clients,
		runner:  runner,
		reconciler: reconciler.NewReconciler(reconciler.Thresholds{
			ExecutionSyncDistance: cfg.Thresholds.ExecutionSyncDistance,
			ConsensusSyncDistance: cfg.Thresholds.ConsensusSyncDistance,
			DutyStaleEpochs:       cfg.Thresholds.DutyStaleEpochs,
		}),
		now: time.Now,
	}
}

// RunCycle probes all backends once and reconciles the results.
func (hs *HealthService) RunCycle(ctx context.Context) (*types.HealthReport, error) {
	t1 := time.Now()

	results, err := hs.runner.Cycle(ctx, hs.clients)
	if err != nil {
		return nil, fmt.Errorf("health cycle failed: %w", err)
	}

	report := hs.reconciler.Reconcile(results, hs.now())

	hs.logger.WithFields(logrus.Fields{
		"overall": report.Overall.String(),
		"reasons": len(report.Reasons),
	}).Infof("health cycle completed (%v ms)", time.Since(t1).Milliseconds())

	return report, nil
}

func (hs *HealthService) GetRunner() *probe.Runner {
	return hs.runner
}
