package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emozilla/ethereum-validator-stack/clients/rpcerror"
	"github.com/emozilla/ethereum-validator-stack/probe"
	"github.com/emozilla/ethereum-validator-stack/reconciler"
	"github.com/emozilla/ethereum-validator-stack/types"
)

func newNodeServer(results map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		if result, ok := results[req.Method]; ok {
			w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
		} else {
			w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
		}
	}))
}

func newTestClient(url string) *Client {
	logger, _ := test.NewNullLogger()

	return NewClient(&ClientConfig{
		URL:     url,
		Name:    "execution",
		Timeout: time.Second,
	}, logger)
}

func TestObserveSynced(t *testing.T) {
	srv := newNodeServer(map[string]string{
		"eth_syncing":        `false`,
		"eth_blockNumber":    `"0x10"`,
		"web3_clientVersion": `"Nethermind/v1.31.0"`,
	})
	defer srv.Close()

	obs, err := newTestClient(srv.URL).Observe(context.Background())
	require.NoError(t, err)

	assert.False(t, *obs.Syncing)
	assert.Equal(t, uint64(0), *obs.SyncDistance)
	assert.Equal(t, uint64(16), *obs.Head)
	assert.Equal(t, "online", obs.State)
	assert.Equal(t, "Nethermind/v1.31.0", obs.Version)
	assert.Equal(t, NethermindClient, ParseClientVersion(obs.Version))
	assert.Equal(t, "nethermind", obs.Client)
}

func TestObserveSyncedWithoutBlockNumber(t *testing.T) {
	srv := newNodeServer(map[string]string{
		"eth_syncing": `false`,
	})
	defer srv.Close()

	obs, err := newTestClient(srv.URL).Observe(context.Background())
	require.NoError(t, err)

	assert.False(t, *obs.Syncing)
	assert.Nil(t, obs.Head)
	assert.Empty(t, obs.Version)
}

func TestObserveSyncing(t *testing.T) {
	srv := newNodeServer(map[string]string{
		"eth_syncing": `{"startingBlock":"0x0","currentBlock":"0x5","highestBlock":"0x64"}`,
	})
	defer srv.Close()

	obs, err := newTestClient(srv.URL).Observe(context.Background())
	require.NoError(t, err)

	assert.True(t, *obs.Syncing)
	assert.Equal(t, uint64(95), *obs.SyncDistance)
	assert.Equal(t, uint64(5), *obs.Head)
	assert.Equal(t, "synchronizing", obs.State)
	assert.JSONEq(t, `{"startingBlock":"0x0","currentBlock":"0x5","highestBlock":"0x64"}`, string(obs.Snapshot))
}

func TestObserveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Observe(context.Background())
	require.Error(t, err)

	probeErr := rpcerror.Classify(context.Background(), err)
	assert.Equal(t, types.ErrorHttp, probeErr.Kind)
	assert.Equal(t, http.StatusBadGateway, probeErr.Status)
	assert.True(t, probeErr.Transient())
}

func TestObserveMalformedSyncing(t *testing.T) {
	srv := newNodeServer(map[string]string{
		"eth_syncing": `"yes"`,
	})
	defer srv.Close()

	_, err := newTestClient(srv.URL).Observe(context.Background())

	var probeErr *types.ProbeError
	require.ErrorAs(t, err, &probeErr)
	assert.Equal(t, types.ErrorMalformedResponse, probeErr.Kind)
}

func newBodyServer(body string) (*httptest.Server, *atomic.Int32) {
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	return srv, hits
}

func TestObserveBrokenBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"truncated", `{"jsonrpc":"2.0","id":1,"res`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newBodyServer(tt.body)
			defer srv.Close()

			_, err := newTestClient(srv.URL).Observe(context.Background())
			require.Error(t, err)

			probeErr := rpcerror.Classify(context.Background(), err)
			assert.Equal(t, types.ErrorMalformedResponse, probeErr.Kind)
			assert.False(t, probeErr.Transient())
		})
	}
}

func TestRunnerDoesNotRetryBrokenBody(t *testing.T) {
	srv, hits := newBodyServer("")
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	runner := probe.NewRunner(probe.RetryConfig{
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, logger)

	result := runner.Probe(context.Background(), newTestClient(srv.URL))

	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, result.Reachable, "the node answered with a broken body")
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrorMalformedResponse, result.Error.Kind)

	report := reconciler.NewReconciler(reconciler.DefaultThresholds).Reconcile(map[types.BackendKind]*types.ProbeResult{
		types.BackendExecution: result,
	}, time.Now())
	assert.Equal(t, types.SeverityUnknown, report.BackendSeverity[types.BackendExecution])
}

func TestParseClientVersion(t *testing.T) {
	tests := map[string]ClientType{
		"Geth/v1.16.3-stable-d818a9af/linux-amd64/go1.24.1": GethClient,
		"Nethermind/v1.31.0+2b8f1d2a/linux-x64/dotnet9.0.0": NethermindClient,
		"besu/v25.7.0/linux-x86_64/openjdk-java-21":         BesuClient,
		"erigon/3.0.0/linux-amd64/go1.23.4":                 ErigonClient,
		"reth/v1.5.0-9d56da5/x86_64-unknown-linux-gnu":      RethClient,
		"EthereumJS/10.0.0/linux/node22.4.0":                EthjsClient,
		"Something/1.0":                                     UnknownClient,
		"":                                                  UnknownClient,
	}

	for version, expected := range tests {
		assert.Equal(t, expected, ParseClientVersion(version), version)
	}
	assert.Equal(t, "geth", GethClient.String())
	assert.Equal(t, "unknown", UnknownClient.String())
}
