package consensus

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emozilla/ethereum-validator-stack/clients/consensus/rpc"
	"github.com/emozilla/ethereum-validator-stack/types"
)

type ClientConfig struct {
	URL     string
	Name    string
	Headers map[string]string
	Timeout time.Duration
}

// Client probes the sync state of one beacon node.
type Client struct {
	endpointConfig *ClientConfig
	rpcClient      *rpc.BeaconClient
	logger         logrus.FieldLogger
}

func NewClient(endpoint *ClientConfig, logger logrus.FieldLogger) *Client {
	logger = logger.WithField("backend", types.BackendConsensus.String())

	return &Client{
		endpointConfig: endpoint,
		rpcClient:      rpc.NewBeaconClient(endpoint.Name, endpoint.URL, endpoint.Headers, endpoint.Timeout, logger),
		logger:         logger,
	}
}

func (client *Client) GetBackend() types.BackendKind {
	return types.BackendConsensus
}

func (client *Client) GetName() string {
	return client.endpointConfig.Name
}

// Observe performs one health + syncing exchange.
func (client *Client) Observe(ctx context.Context) (*types.Observation, error) {
	health, err := client.rpcClient.GetNodeHealth(ctx)
	if err != nil {
		return nil, err
	}

	if health == rpc.NodeHealthNotInitialized {
		syncStatus := rpc.NewSyncStatus(health, nil)

		return &types.Observation{
			Syncing: types.BoolPtr(true),
			State:   GetClientStatus(&syncStatus).String(),
		}, nil
	}

	syncState, raw, err := client.rpcClient.GetNodeSyncing(ctx)
	if err != nil {
		return nil, err
	}

	syncStatus := rpc.NewSyncStatus(health, syncState)
	clientStatus := GetClientStatus(&syncStatus)

	client.logger.Debugf("node health: %v, status: %v, head slot: %v, sync distance: %v (%.2f%%)", health, clientStatus, syncStatus.HeadSlot, syncStatus.SyncDistance, syncStatus.Percent())

	// the version is informational only, failures do not affect the verdict
	version, err := client.rpcClient.GetNodeVersion(ctx)
	implementation := ""
	if err != nil {
		client.logger.Debugf("could not get node version: %v", err)
	} else {
		implementation = ParseClientVersion(version).String()
		client.logger.Debugf("node version: %v (%v)", version, implementation)
	}

	return &types.Observation{
		Syncing:      types.BoolPtr(syncStatus.IsSyncing),
		Optimistic:   syncStatus.IsOptimistic,
		SyncDistance: types.Uint64Ptr(syncStatus.SyncDistance),
		Head:         types.Uint64Ptr(syncStatus.HeadSlot),
		State:        clientStatus.String(),
		Version:      version,
		Client:       implementation,
		Snapshot:     raw,
	}, nil
}
