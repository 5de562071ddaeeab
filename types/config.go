package types

import "time"

// Config is a struct to hold the configuration data
type Config struct {
	Logging struct {
		OutputLevel  string `yaml:"outputLevel" envconfig:"OUTPUT_LEVEL"`
		OutputStderr bool   `yaml:"outputStderr" envconfig:"OUTPUT_STDERR"`
	} `yaml:"logging"`

	Execution EndpointConfig `yaml:"execution"`
	Consensus EndpointConfig `yaml:"consensus"`

	ValidatorClient struct {
		EndpointConfig `yaml:",inline"`
		HealthPath     string `yaml:"healthPath" envconfig:"HEALTH_PATH"`
		BeaconUrl      string `yaml:"beaconUrl" envconfig:"BEACON_URL"`
	} `yaml:"validatorClient"`

	Validator struct {
		// kept as string so that malformed values can be reported instead of being zeroed
		Index string `yaml:"index" envconfig:"INDEX"`
	} `yaml:"validator"`

	Probe struct {
		Timeout        time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
		MaxAttempts    int           `yaml:"maxAttempts" envconfig:"MAX_ATTEMPTS"`
		InitialBackoff time.Duration `yaml:"initialBackoff" envconfig:"INITIAL_BACKOFF"`
		MaxBackoff     time.Duration `yaml:"maxBackoff" envconfig:"MAX_BACKOFF"`
		Jitter         time.Duration `yaml:"jitter" envconfig:"JITTER"`
		CycleTimeout   time.Duration `yaml:"cycleTimeout" envconfig:"CYCLE_TIMEOUT"`
	} `yaml:"probe"`

	Thresholds ThresholdConfig `yaml:"thresholds"`

	Output struct {
		Format string `yaml:"format" envconfig:"FORMAT"`
		Color  bool   `yaml:"color" envconfig:"COLOR"`
	} `yaml:"output"`

	Server struct {
		Port string `yaml:"port" envconfig:"PORT"`
		Host string `yaml:"host" envconfig:"HOST"`

		// health cycles per second triggered by /health and /metrics, 0 disables the limit
		RateLimit float64 `yaml:"rateLimit" envconfig:"RATE_LIMIT"`
		RateBurst int     `yaml:"rateBurst" envconfig:"RATE_BURST"`
	} `yaml:"server"`
}

type EndpointConfig struct {
	Url     string            `yaml:"url" envconfig:"URL"`
	Headers map[string]string `yaml:"headers" envconfig:"HEADERS"`
}

type ThresholdConfig struct {
	ExecutionSyncDistance uint64 `yaml:"executionSyncDistance" envconfig:"EXECUTION_SYNC_DISTANCE"`
	ConsensusSyncDistance uint64 `yaml:"consensusSyncDistance" envconfig:"CONSENSUS_SYNC_DISTANCE"`
	DutyStaleEpochs       uint64 `yaml:"dutyStaleEpochs" envconfig:"DUTY_STALE_EPOCHS"`
	SlotsPerEpoch         uint64 `yaml:"slotsPerEpoch" envconfig:"SLOTS_PER_EPOCH"`
	SecondsPerSlot        uint64 `yaml:"secondsPerSlot" envconfig:"SECONDS_PER_SLOT"`
}
