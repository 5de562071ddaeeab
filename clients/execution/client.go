package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emozilla/ethereum-validator-stack/clients/execution/rpc"
	"github.com/emozilla/ethereum-validator-stack/types"
)

type ClientConfig struct {
	URL     string
	Name    string
	Headers map[string]string
	Timeout time.Duration
}

// Client probes the sync state of one execution client.
type Client struct {
	endpointConfig *ClientConfig
	logger         logrus.FieldLogger
}

func NewClient(endpoint *ClientConfig, logger logrus.FieldLogger) *Client {
	logger = logger.WithField("backend", types.BackendExecution.String())

	return &Client{
		endpointConfig: endpoint,
		logger:         logger,
	}
}

func (client *Client) GetBackend() types.BackendKind {
	return types.BackendExecution
}

func (client *Client) GetName() string {
	return client.endpointConfig.Name
}

// Observe performs one eth_syncing exchange, followed by eth_blockNumber when the node is synced.
func (client *Client) Observe(ctx context.Context) (*types.Observation, error) {
	// one json-rpc client per exchange, so concurrent cycles never share a connection
	rpcClient := rpc.NewExecutionClient(client.endpointConfig.Name, client.endpointConfig.URL, client.endpointConfig.Headers, client.endpointConfig.Timeout, client.logger)

	err := rpcClient.Initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialization of json-rpc client failed: %w", err)
	}
	defer rpcClient.Close()

	syncStatus, raw, err := rpcClient.GetNodeSyncing(ctx)
	if err != nil {
		return nil, err
	}

	obs := &types.Observation{
		Syncing:  types.BoolPtr(syncStatus.IsSyncing),
		Snapshot: raw,
	}

	if syncStatus.IsSyncing {
		obs.SyncDistance = types.Uint64Ptr(syncStatus.Distance())
		obs.Head = types.Uint64Ptr(syncStatus.CurrentBlock)
		obs.State = "synchronizing"

		client.logger.Debugf("node is syncing: %v / %v (%v blocks left, %.2f%%)", syncStatus.CurrentBlock, syncStatus.HighestBlock, syncStatus.Distance(), syncStatus.Percent())
	} else {
		obs.SyncDistance = types.Uint64Ptr(0)
		obs.State = "online"

		// a synced node without block height is still synced
		blockNumber, err := rpcClient.GetBlockNumber(ctx)
		if err != nil {
			client.logger.Warnf("node is synced, but failed to retrieve block number: %v", err)
		} else {
			obs.Head = types.Uint64Ptr(blockNumber)
			client.logger.Debugf("node is synced, block height: %v", blockNumber)
		}
	}

	// the version is informational only, failures do not affect the verdict
	version, err := rpcClient.GetClientVersion(ctx)
	if err != nil {
		client.logger.Debugf("could not get client version: %v", err)
	} else {
		obs.Version = version
		obs.Client = ParseClientVersion(version).String()
		client.logger.Debugf("client version: %v (%v)", version, obs.Client)
	}

	return obs, nil
}
