package utils

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/emozilla/ethereum-validator-stack/config"
	"github.com/emozilla/ethereum-validator-stack/types"
)

// ConfigError reports an invalid or missing configuration field. It aborts the run before any probing.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %v: %v", e.Field, e.Reason)
}

// ReadConfig will process a configuration: embedded defaults, then the optional file, then the environment.
func ReadConfig(cfg *types.Config, path string) error {
	err := yaml.Unmarshal([]byte(config.DefaultConfigYml), cfg)
	if err != nil {
		return fmt.Errorf("error decoding default config: %v", err)
	}

	err = readConfigFile(cfg, path)
	if err != nil {
		return err
	}

	err = readConfigEnv(cfg)
	if err != nil {
		return fmt.Errorf("error reading config from environment: %v", err)
	}

	if cfg.ValidatorClient.BeaconUrl == "" {
		cfg.ValidatorClient.BeaconUrl = cfg.Consensus.Url
	}

	log.WithFields(log.Fields{
		"execution":       getRedactedURL(cfg.Execution.Url),
		"consensus":       getRedactedURL(cfg.Consensus.Url),
		"validatorClient": getRedactedURL(cfg.ValidatorClient.Url),
		"validatorIndex":  cfg.Validator.Index,
	}).Debugf("did init config")

	return nil
}

func readConfigFile(cfg *types.Config, path string) error {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file %v: %v", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(cfg)
	if err != nil {
		return fmt.Errorf("error decoding config file %v: %v", path, err)
	}

	return nil
}

func readConfigEnv(cfg *types.Config) error {
	return envconfig.Process("", cfg)
}

// ParseValidatorIndex parses the configured validator index, which must be a non-negative integer.
func ParseValidatorIndex(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, &ConfigError{Field: "validator.index", Reason: "missing (set VALIDATOR_INDEX or validator.index)"}
	}

	index, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, &ConfigError{Field: "validator.index", Reason: fmt.Sprintf("%q is not a non-negative integer", value)}
	}

	return index, nil
}

// ValidateConfig checks every field the health cycle depends on.
func ValidateConfig(cfg *types.Config) error {
	if _, err := ParseValidatorIndex(cfg.Validator.Index); err != nil {
		return err
	}

	urls := []struct {
		field string
		value string
	}{
		{"execution.url", cfg.Execution.Url},
		{"consensus.url", cfg.Consensus.Url},
		{"validatorClient.url", cfg.ValidatorClient.Url},
		{"validatorClient.beaconUrl", cfg.ValidatorClient.BeaconUrl},
	}
	for _, u := range urls {
		if err := validateURL(u.field, u.value); err != nil {
			return err
		}
	}

	if cfg.Probe.Timeout <= 0 {
		return &ConfigError{Field: "probe.timeout", Reason: "must be positive"}
	}
	if cfg.Probe.MaxAttempts < 1 {
		return &ConfigError{Field: "probe.maxAttempts", Reason: "must be at least 1"}
	}
	if cfg.Probe.InitialBackoff < 0 || cfg.Probe.MaxBackoff < 0 || cfg.Probe.Jitter < 0 || cfg.Probe.CycleTimeout < 0 {
		return &ConfigError{Field: "probe", Reason: "durations must not be negative"}
	}
	if cfg.Probe.MaxBackoff < cfg.Probe.InitialBackoff {
		return &ConfigError{Field: "probe.maxBackoff", Reason: "must not be below probe.initialBackoff"}
	}
	if cfg.Server.RateLimit < 0 {
		return &ConfigError{Field: "server.rateLimit", Reason: "must not be negative"}
	}

	switch cfg.Output.Format {
	case "text", "json":
	default:
		return &ConfigError{Field: "output.format", Reason: fmt.Sprintf("unknown format %q (text, json)", cfg.Output.Format)}
	}

	return nil
}

func validateURL(field, value string) error {
	if value == "" {
		return &ConfigError{Field: field, Reason: "missing"}
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("unparseable url: %v", err)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("unsupported scheme %q", parsed.Scheme)}
	}
	if parsed.Host == "" {
		return &ConfigError{Field: field, Reason: "missing host"}
	}

	return nil
}

func getRedactedURL(requrl string) string {
	urlData, err := url.Parse(requrl)
	if err != nil || urlData == nil {
		return requrl
	}

	return urlData.Redacted()
}
