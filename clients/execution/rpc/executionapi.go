package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/emozilla/ethereum-validator-stack/clients/rpcerror"
)

type ExecutionClient struct {
	name      string
	endpoint  string
	headers   map[string]string
	timeout   time.Duration
	logger    logrus.FieldLogger
	rpcClient *rpc.Client
}

// NewExecutionClient is used to create a new execution client
func NewExecutionClient(name, endpoint string, headers map[string]string, timeout time.Duration, logger logrus.FieldLogger) *ExecutionClient {
	return &ExecutionClient{
		name:     name,
		endpoint: endpoint,
		headers:  headers,
		timeout:  timeout,
		logger:   logger.WithField("client", name),
	}
}

// Initialize prepares the json-rpc client. Dialing an http endpoint does not open a connection yet.
func (ec *ExecutionClient) Initialize(ctx context.Context) error {
	if ec.rpcClient != nil {
		return nil
	}

	httpClient := &nethttp.Client{
		Timeout: ec.timeout,
		Transport: &nethttp.Transport{
			Proxy:             nethttp.ProxyFromEnvironment,
			DisableKeepAlives: true,
		},
	}

	rpcClient, err := rpc.DialOptions(ctx, ec.endpoint, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return err
	}

	for hKey, hVal := range ec.headers {
		rpcClient.SetHeader(hKey, hVal)
	}

	ec.rpcClient = rpcClient

	return nil
}

func (ec *ExecutionClient) Close() {
	if ec.rpcClient != nil {
		ec.rpcClient.Close()
		ec.rpcClient = nil
	}
}

func (ec *ExecutionClient) GetName() string {
	return ec.name
}

func (ec *ExecutionClient) GetClientVersion(ctx context.Context) (string, error) {
	var result string
	err := ec.rpcClient.CallContext(ctx, &result, "web3_clientVersion")

	return result, err
}

func (ec *ExecutionClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64

	err := ec.rpcClient.CallContext(ctx, &result, "eth_blockNumber")
	if err != nil {
		return 0, err
	}

	return uint64(result), nil
}

type rpcSyncProgress struct {
	StartingBlock *hexutil.Uint64 `json:"startingBlock"`
	CurrentBlock  *hexutil.Uint64 `json:"currentBlock"`
	HighestBlock  *hexutil.Uint64 `json:"highestBlock"`
}

// GetNodeSyncing queries eth_syncing, which answers either false or a progress object.
func (ec *ExecutionClient) GetNodeSyncing(ctx context.Context) (*SyncStatus, json.RawMessage, error) {
	var raw json.RawMessage

	err := ec.rpcClient.CallContext(ctx, &raw, "eth_syncing")
	if err != nil {
		return nil, nil, err
	}

	status, err := ParseSyncStatus(raw)
	if err != nil {
		return nil, nil, err
	}

	return status, raw, nil
}

// ParseSyncStatus translates a raw eth_syncing result.
func ParseSyncStatus(raw json.RawMessage) (*SyncStatus, error) {
	trimmed := bytes.TrimSpace(raw)

	if bytes.Equal(trimmed, []byte("false")) {
		return &SyncStatus{IsSyncing: false}, nil
	}

	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, rpcerror.Malformed(fmt.Sprintf("unexpected eth_syncing result: %.64s", string(trimmed)), nil)
	}

	var progress rpcSyncProgress

	err := json.Unmarshal(trimmed, &progress)
	if err != nil {
		return nil, rpcerror.Malformed(fmt.Sprintf("error parsing eth_syncing result: %v", err), err)
	}

	if progress.CurrentBlock == nil || progress.HighestBlock == nil {
		return nil, rpcerror.Malformed("eth_syncing result without currentBlock/highestBlock", nil)
	}

	status := &SyncStatus{
		IsSyncing:    true,
		CurrentBlock: uint64(*progress.CurrentBlock),
		HighestBlock: uint64(*progress.HighestBlock),
	}
	if progress.StartingBlock != nil {
		status.StartingBlock = uint64(*progress.StartingBlock)
	}

	return status, nil
}
