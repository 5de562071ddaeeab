package consensus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mashingan/smapping"

	"github.com/emozilla/ethereum-validator-stack/clients/consensus/rpc"
)

// ChainSpec holds the chain parameters the health checks depend on.
// https://github.com/ethereum/consensus-specs/blob/dev/configs/mainnet.yaml
type ChainSpec struct {
	PresetBase     string `yaml:"PRESET_BASE"`
	ConfigName     string `yaml:"CONFIG_NAME"`
	SecondsPerSlot uint64 `yaml:"SECONDS_PER_SLOT"`
	SlotsPerEpoch  uint64 `yaml:"SLOTS_PER_EPOCH"`
}

// ParseChainSpec fills the chain spec from the string values served by /eth/v1/config/spec.
func ParseChainSpec(specValues map[string]interface{}) (*ChainSpec, error) {
	specs := ChainSpec{}

	err := smapping.FillStructByTags(&specs, parseSpecMap(specValues), "yaml")
	if err != nil {
		return nil, fmt.Errorf("error parsing chain spec: %w", err)
	}

	if specs.SlotsPerEpoch == 0 {
		return nil, fmt.Errorf("chain spec without SLOTS_PER_EPOCH")
	}

	return &specs, nil
}

// LoadChainSpec fetches and parses the chain spec of a beacon node.
func LoadChainSpec(ctx context.Context, client *rpc.BeaconClient) (*ChainSpec, error) {
	specValues, err := client.GetConfigSpec(ctx)
	if err != nil {
		return nil, err
	}

	return ParseChainSpec(specValues)
}

func parseSpecMap(data map[string]interface{}) smapping.Mapped {
	config := make(smapping.Mapped, len(data))
	for k, v := range data {
		value, isString := v.(string)
		if !isString {
			config[k] = v
			continue
		}

		intVal, err := strconv.ParseUint(value, 10, 64)
		if err == nil {
			config[k] = intVal
		} else {
			config[k] = value
		}
	}

	return config
}
