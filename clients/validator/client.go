package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
	"sync"
	"time"

	v1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethpandaops/ethwallclock"
	"github.com/sirupsen/logrus"

	"github.com/emozilla/ethereum-validator-stack/clients/consensus"
	consensusrpc "github.com/emozilla/ethereum-validator-stack/clients/consensus/rpc"
	"github.com/emozilla/ethereum-validator-stack/clients/rpcerror"
	"github.com/emozilla/ethereum-validator-stack/clients/validator/rpc"
	"github.com/emozilla/ethereum-validator-stack/types"
)

type ClientConfig struct {
	URL        string
	Name       string
	HealthPath string
	Headers    map[string]string
	Timeout    time.Duration

	// duties are served by the beacon node, not the validator client
	BeaconURL     string
	BeaconHeaders map[string]string

	ValidatorIndex uint64
	// zero values are loaded from the chain spec of the beacon node
	SlotsPerEpoch   uint64
	SecondsPerSlot  uint64
	DutyStaleEpochs uint64
}

// Client probes the validator client and the duty state of the configured validator.
type Client struct {
	endpointConfig *ClientConfig
	rpcClient      *rpc.ValidatorClient
	beaconClient   *consensusrpc.BeaconClient
	logger         logrus.FieldLogger

	wallclockMutex sync.Mutex
	wallclock      *ethwallclock.EthereumBeaconChain
	slotsPerEpoch  uint64
}

func NewClient(endpoint *ClientConfig, logger logrus.FieldLogger) *Client {
	logger = logger.WithFields(logrus.Fields{
		"backend":   types.BackendValidatorClient.String(),
		"validator": endpoint.ValidatorIndex,
	})

	return &Client{
		endpointConfig: endpoint,
		rpcClient:      rpc.NewValidatorClient(endpoint.Name, endpoint.URL, endpoint.HealthPath, endpoint.Headers, endpoint.Timeout, logger),
		beaconClient:   consensusrpc.NewBeaconClient(endpoint.Name+"-beacon", endpoint.BeaconURL, endpoint.BeaconHeaders, endpoint.Timeout, logger),
		logger:         logger,
	}
}

func (client *Client) GetBackend() types.BackendKind {
	return types.BackendValidatorClient
}

func (client *Client) GetName() string {
	return client.endpointConfig.Name
}

// Observe checks validator client health, then the validator state and its latest attester duty.
func (client *Client) Observe(ctx context.Context) (*types.Observation, error) {
	err := client.rpcClient.GetHealth(ctx)
	if err != nil {
		return nil, err
	}

	status, err := client.getValidatorStatus(ctx)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("error encoding validator snapshot: %w", err)
	}

	return &types.Observation{
		Head:      types.Uint64Ptr(status.HeadSlot),
		State:     status.State,
		Validator: status,
		Snapshot:  snapshot,
	}, nil
}

func (client *Client) getValidatorStatus(ctx context.Context) (*types.ValidatorStatus, error) {
	index := phase0.ValidatorIndex(client.endpointConfig.ValidatorIndex)

	validator, err := client.beaconClient.GetStateValidator(ctx, "head", index)
	if err != nil {
		return nil, fmt.Errorf("could not get validator %v from beacon state: %w", index, err)
	}

	headSlot, err := client.beaconClient.GetLatestHeadSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get chain head: %w", err)
	}

	wallclock, slotsPerEpoch, err := client.getWallclock(ctx)
	if err != nil {
		return nil, err
	}

	// the current epoch comes from the wall clock, not from the head
	_, wallEpoch, err := wallclock.Now()
	if err != nil {
		return nil, rpcerror.Malformed(fmt.Sprintf("could not determine current epoch: %v", err), err)
	}
	currentEpoch := phase0.Epoch(wallEpoch.Number())

	if headEpoch := uint64(headSlot) / slotsPerEpoch; headEpoch < uint64(currentEpoch) {
		client.logger.Debugf("beacon head epoch %v is behind wall clock epoch %v", headEpoch, currentEpoch)
	}

	state := validator.Status.String()
	status := &types.ValidatorStatus{
		Index:        uint64(index),
		Pubkey:       fmt.Sprintf("%#x", validator.Validator.PublicKey[:]),
		State:        state,
		Active:       strings.HasPrefix(state, "active"),
		HeadSlot:     uint64(headSlot),
		CurrentEpoch: uint64(currentEpoch),
	}

	if !status.Active {
		client.logger.Debugf("validator is not active (%v), skipping duty checks", state)
		return status, nil
	}

	duty, err := client.findLatestDuty(ctx, index, currentEpoch)
	if err != nil {
		return nil, err
	}
	if duty != nil {
		status.LastDutyEpoch = types.Uint64Ptr(uint64(duty.Slot) / slotsPerEpoch)
		status.DutySlot = types.Uint64Ptr(uint64(duty.Slot))
	}

	if currentEpoch > 0 {
		attesting, err := client.getLiveness(ctx, index, currentEpoch-1)
		if err != nil {
			return nil, err
		}
		status.Attesting = attesting
	}

	return status, nil
}

// getWallclock sets up the beacon chain wall clock from the genesis time on first use.
func (client *Client) getWallclock(ctx context.Context) (*ethwallclock.EthereumBeaconChain, uint64, error) {
	client.wallclockMutex.Lock()
	defer client.wallclockMutex.Unlock()

	if client.wallclock != nil {
		return client.wallclock, client.slotsPerEpoch, nil
	}

	genesis, err := client.beaconClient.GetGenesis(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("could not get genesis: %w", err)
	}

	secondsPerSlot, slotsPerEpoch, err := client.getChainTiming(ctx)
	if err != nil {
		return nil, 0, err
	}

	client.wallclock = ethwallclock.NewEthereumBeaconChain(genesis.GenesisTime, time.Duration(secondsPerSlot)*time.Second, slotsPerEpoch)
	client.slotsPerEpoch = slotsPerEpoch

	return client.wallclock, slotsPerEpoch, nil
}

// getChainTiming uses the configured values, or the chain spec of the beacon node for any that are missing.
func (client *Client) getChainTiming(ctx context.Context) (secondsPerSlot, slotsPerEpoch uint64, err error) {
	secondsPerSlot = client.endpointConfig.SecondsPerSlot
	slotsPerEpoch = client.endpointConfig.SlotsPerEpoch
	if secondsPerSlot > 0 && slotsPerEpoch > 0 {
		return secondsPerSlot, slotsPerEpoch, nil
	}

	specs, err := consensus.LoadChainSpec(ctx, client.beaconClient)
	if err != nil {
		return 0, 0, fmt.Errorf("could not load chain spec: %w", err)
	}

	client.logger.Debugf("loaded chain spec %v: %v seconds per slot, %v slots per epoch", specs.ConfigName, specs.SecondsPerSlot, specs.SlotsPerEpoch)

	if secondsPerSlot == 0 {
		secondsPerSlot = specs.SecondsPerSlot
	}
	if slotsPerEpoch == 0 {
		slotsPerEpoch = specs.SlotsPerEpoch
	}
	if secondsPerSlot == 0 {
		return 0, 0, rpcerror.Malformed("chain spec without SECONDS_PER_SLOT", nil)
	}

	return secondsPerSlot, slotsPerEpoch, nil
}

// findLatestDuty walks back from the current epoch until a duty is found. Looking one epoch past the
// staleness window is enough to tell a stale duty from a missing one.
func (client *Client) findLatestDuty(ctx context.Context, index phase0.ValidatorIndex, currentEpoch phase0.Epoch) (*v1.AttesterDuty, error) {
	lookback := phase0.Epoch(client.endpointConfig.DutyStaleEpochs + 1)

	for epoch := currentEpoch; ; epoch-- {
		duties, err := client.beaconClient.GetAttesterDuties(ctx, epoch, []phase0.ValidatorIndex{index})
		if err != nil {
			if epoch == currentEpoch {
				return nil, fmt.Errorf("could not fetch attester duties for epoch %v: %w", epoch, err)
			}

			// historic duties are optional on some beacon nodes
			client.logger.Debugf("could not fetch attester duties for epoch %v: %v", epoch, err)
			return nil, nil
		}

		for _, duty := range duties {
			if duty.ValidatorIndex == index {
				return duty, nil
			}
		}

		client.logger.Debugf("no attester duty for epoch %v", epoch)

		if epoch == 0 || currentEpoch-epoch >= lookback {
			return nil, nil
		}
	}
}

// getLiveness returns nil when the beacon node does not support the liveness endpoint.
func (client *Client) getLiveness(ctx context.Context, index phase0.ValidatorIndex, epoch phase0.Epoch) (*bool, error) {
	liveness, err := client.beaconClient.GetValidatorLiveness(ctx, epoch, []phase0.ValidatorIndex{index})
	if err != nil {
		var probeErr *types.ProbeError
		if errors.As(err, &probeErr) && probeErr.Kind == types.ErrorHttp && livenessUnsupported(probeErr.Status) {
			client.logger.Debugf("liveness endpoint not supported (status %v)", probeErr.Status)
			return nil, nil
		}

		return nil, fmt.Errorf("could not fetch validator liveness for epoch %v: %w", epoch, err)
	}

	for _, entry := range liveness {
		if entry.Index == index {
			return types.BoolPtr(entry.IsLive), nil
		}
	}

	return nil, nil
}

func livenessUnsupported(status int) bool {
	switch status {
	case nethttp.StatusBadRequest, nethttp.StatusNotFound, nethttp.StatusMethodNotAllowed, nethttp.StatusNotImplemented:
		return true
	}

	return false
}
