package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	v1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/sirupsen/logrus"

	"github.com/emozilla/ethereum-validator-stack/clients/rpcerror"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 4 << 20

type BeaconClient struct {
	name     string
	endpoint string
	headers  map[string]string
	client   *nethttp.Client
	logger   logrus.Ext1FieldLogger
}

// NewBeaconClient is used to create a new beacon client
func NewBeaconClient(name, endpoint string, headers map[string]string, timeout time.Duration, logger logrus.FieldLogger) *BeaconClient {
	return &BeaconClient{
		name:     name,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		headers:  headers,
		client: &nethttp.Client{
			Timeout: timeout,
			// no connection outlives a probe cycle
			Transport: &nethttp.Transport{
				Proxy:             nethttp.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
		logger: logger.WithField("client", name),
	}
}

func (bc *BeaconClient) GetName() string {
	return bc.name
}

// do issues the request and returns status and body. Status handling is left to the caller.
func (bc *BeaconClient) do(ctx context.Context, method, requrl string, body io.Reader) (int, []byte, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, requrl, body)
	if err != nil {
		return 0, nil, err
	}

	if method == "POST" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	for headerKey, headerVal := range bc.headers {
		req.Header.Set(headerKey, headerVal)
	}

	resp, err := bc.client.Do(req)
	if err != nil {
		return 0, nil, err
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	bc.logger.Tracef("%v %v: %v (%v bytes)", method, getRedactedURL(requrl), resp.StatusCode, len(data))

	return resp.StatusCode, data, nil
}

func (bc *BeaconClient) getJSON(ctx context.Context, requrl string, returnValue interface{}) (json.RawMessage, error) {
	status, data, err := bc.do(ctx, "GET", requrl, nethttp.NoBody)
	if err != nil {
		return nil, err
	}

	return decodeResponse(requrl, status, data, returnValue)
}

func (bc *BeaconClient) postJSON(ctx context.Context, requrl string, postData, returnValue interface{}) (json.RawMessage, error) {
	postDataBytes, err := json.Marshal(postData)
	if err != nil {
		return nil, fmt.Errorf("error encoding json request: %v", err)
	}

	status, data, err := bc.do(ctx, "POST", requrl, bytes.NewReader(postDataBytes))
	if err != nil {
		return nil, err
	}

	return decodeResponse(requrl, status, data, returnValue)
}

func decodeResponse(requrl string, status int, data []byte, returnValue interface{}) (json.RawMessage, error) {
	if status != nethttp.StatusOK {
		return nil, rpcerror.HTTPStatus(status, data)
	}

	if returnValue != nil {
		err := json.Unmarshal(data, returnValue)
		if err != nil {
			return nil, rpcerror.Malformed(fmt.Sprintf("error parsing json response from %v: %v", getRedactedURL(requrl), err), err)
		}
	}

	return json.RawMessage(data), nil
}

// NodeHealth is the discrete state reported by /eth/v1/node/health.
type NodeHealth uint8

const (
	NodeHealthReady NodeHealth = iota
	NodeHealthSyncing
	NodeHealthNotInitialized
)

func (h NodeHealth) String() string {
	switch h {
	case NodeHealthReady:
		return "ready"
	case NodeHealthSyncing:
		return "syncing"
	case NodeHealthNotInitialized:
		return "not_initialized"
	}

	return "unknown"
}

func (bc *BeaconClient) GetNodeHealth(ctx context.Context) (NodeHealth, error) {
	status, data, err := bc.do(ctx, "GET", fmt.Sprintf("%s/eth/v1/node/health", bc.endpoint), nethttp.NoBody)
	if err != nil {
		return 0, err
	}

	switch status {
	case nethttp.StatusOK:
		return NodeHealthReady, nil
	case nethttp.StatusPartialContent:
		return NodeHealthSyncing, nil
	case nethttp.StatusServiceUnavailable:
		return NodeHealthNotInitialized, nil
	}

	return 0, rpcerror.HTTPStatus(status, data)
}

type apiNodeVersion struct {
	Data struct {
		Version string `json:"version"`
	} `json:"data"`
}

func (bc *BeaconClient) GetNodeVersion(ctx context.Context) (string, error) {
	var nodeVersion apiNodeVersion

	_, err := bc.getJSON(ctx, fmt.Sprintf("%s/eth/v1/node/version", bc.endpoint), &nodeVersion)
	if err != nil {
		return "", fmt.Errorf("error retrieving node version: %w", err)
	}

	return nodeVersion.Data.Version, nil
}

type apiConfigSpec struct {
	Data map[string]interface{} `json:"data"`
}

// GetConfigSpec returns the raw chain spec values of the beacon node.
func (bc *BeaconClient) GetConfigSpec(ctx context.Context) (map[string]interface{}, error) {
	var configSpec apiConfigSpec

	_, err := bc.getJSON(ctx, fmt.Sprintf("%s/eth/v1/config/spec", bc.endpoint), &configSpec)
	if err != nil {
		return nil, fmt.Errorf("error retrieving chain spec: %w", err)
	}
	if configSpec.Data == nil {
		return nil, rpcerror.Malformed("chain spec response without data", nil)
	}

	return configSpec.Data, nil
}

type apiGenesis struct {
	Data *v1.Genesis `json:"data"`
}

func (bc *BeaconClient) GetGenesis(ctx context.Context) (*v1.Genesis, error) {
	var genesis apiGenesis

	_, err := bc.getJSON(ctx, fmt.Sprintf("%s/eth/v1/beacon/genesis", bc.endpoint), &genesis)
	if err != nil {
		return nil, err
	}

	if genesis.Data == nil || genesis.Data.GenesisTime.IsZero() {
		return nil, rpcerror.Malformed("genesis response without genesis time", nil)
	}

	return genesis.Data, nil
}

type apiSyncState struct {
	Data *v1.SyncState `json:"data"`
}

func (bc *BeaconClient) GetNodeSyncing(ctx context.Context) (*v1.SyncState, json.RawMessage, error) {
	var syncState apiSyncState

	raw, err := bc.getJSON(ctx, fmt.Sprintf("%s/eth/v1/node/syncing", bc.endpoint), &syncState)
	if err != nil {
		return nil, nil, err
	}

	if syncState.Data == nil {
		return nil, nil, rpcerror.Malformed("node syncing response without data", nil)
	}

	return syncState.Data, raw, nil
}

type apiStateValidator struct {
	Data *v1.Validator `json:"data"`
}

func (bc *BeaconClient) GetStateValidator(ctx context.Context, stateRef string, index phase0.ValidatorIndex) (*v1.Validator, error) {
	var validator apiStateValidator

	_, err := bc.getJSON(ctx, fmt.Sprintf("%s/eth/v1/beacon/states/%s/validators/%d", bc.endpoint, stateRef, index), &validator)
	if err != nil {
		return nil, err
	}

	if validator.Data == nil || validator.Data.Validator == nil {
		return nil, rpcerror.Malformed("state validator response without data", nil)
	}

	return validator.Data, nil
}

type apiBlockHeader struct {
	Data *struct {
		Root   string `json:"root"`
		Header *struct {
			Message *struct {
				Slot string `json:"slot"`
			} `json:"message"`
		} `json:"header"`
	} `json:"data"`
}

func (bc *BeaconClient) GetLatestHeadSlot(ctx context.Context) (phase0.Slot, error) {
	var header apiBlockHeader

	_, err := bc.getJSON(ctx, fmt.Sprintf("%s/eth/v1/beacon/headers/head", bc.endpoint), &header)
	if err != nil {
		return 0, err
	}

	if header.Data == nil || header.Data.Header == nil || header.Data.Header.Message == nil {
		return 0, rpcerror.Malformed("block header response without message", nil)
	}

	slot, err := strconv.ParseUint(header.Data.Header.Message.Slot, 10, 64)
	if err != nil {
		return 0, rpcerror.Malformed(fmt.Sprintf("invalid head slot %q", header.Data.Header.Message.Slot), err)
	}

	return phase0.Slot(slot), nil
}

type apiAttesterDuties struct {
	Data []*v1.AttesterDuty `json:"data"`
}

func (bc *BeaconClient) GetAttesterDuties(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*v1.AttesterDuty, error) {
	var duties apiAttesterDuties

	_, err := bc.postJSON(ctx, fmt.Sprintf("%s/eth/v1/validator/duties/attester/%d", bc.endpoint, epoch), indexList(indices), &duties)
	if err != nil {
		return nil, err
	}

	if duties.Data == nil {
		return nil, rpcerror.Malformed("attester duties response without data", nil)
	}

	return duties.Data, nil
}

// ValidatorLiveness is one entry of the liveness response.
type ValidatorLiveness struct {
	Index  phase0.ValidatorIndex
	IsLive bool
}

type apiValidatorLiveness struct {
	Data []struct {
		Index  string `json:"index"`
		IsLive *bool  `json:"is_live"`
	} `json:"data"`
}

func (bc *BeaconClient) GetValidatorLiveness(ctx context.Context, epoch phase0.Epoch, indices []phase0.ValidatorIndex) ([]*ValidatorLiveness, error) {
	var liveness apiValidatorLiveness

	_, err := bc.postJSON(ctx, fmt.Sprintf("%s/eth/v1/validator/liveness/%d", bc.endpoint, epoch), indexList(indices), &liveness)
	if err != nil {
		return nil, err
	}

	result := make([]*ValidatorLiveness, 0, len(liveness.Data))
	for _, entry := range liveness.Data {
		index, err := strconv.ParseUint(entry.Index, 10, 64)
		if err != nil || entry.IsLive == nil {
			return nil, rpcerror.Malformed(fmt.Sprintf("invalid liveness entry for index %q", entry.Index), err)
		}

		result = append(result, &ValidatorLiveness{
			Index:  phase0.ValidatorIndex(index),
			IsLive: *entry.IsLive,
		})
	}

	return result, nil
}

func indexList(indices []phase0.ValidatorIndex) []string {
	list := make([]string, len(indices))
	for i, index := range indices {
		list[i] = strconv.FormatUint(uint64(index), 10)
	}

	return list
}

func getRedactedURL(requrl string) string {
	var logurl string

	urlData, _ := url.Parse(requrl)
	if urlData != nil {
		logurl = urlData.Redacted()
	} else {
		logurl = requrl
	}

	return logurl
}
