package types

import (
	"encoding/json"
	"time"
)

// BackendKind identifies one leg of the validator node triplet.
type BackendKind uint8

const (
	BackendExecution BackendKind = iota
	BackendConsensus
	BackendValidatorClient
)

// AllBackends lists the backends in report order.
var AllBackends = []BackendKind{BackendExecution, BackendConsensus, BackendValidatorClient}

func (b BackendKind) String() string {
	switch b {
	case BackendExecution:
		return "execution"
	case BackendConsensus:
		return "consensus"
	case BackendValidatorClient:
		return "validator"
	}

	return "unknown"
}

func (b BackendKind) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Severity is the verdict of a health cycle. The numeric values double as process exit codes.
type Severity uint8

const (
	SeverityOK       Severity = 0
	SeverityDegraded Severity = 1
	SeverityCritical Severity = 2
	SeverityUnknown  Severity = 3
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityDegraded:
		return "DEGRADED"
	case SeverityCritical:
		return "CRITICAL"
	case SeverityUnknown:
		return "UNKNOWN"
	}

	return "INVALID"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// rank orders severities for reconciliation: UNKNOWN outranks DEGRADED but never CRITICAL.
func (s Severity) rank() int {
	switch s {
	case SeverityOK:
		return 0
	case SeverityDegraded:
		return 1
	case SeverityUnknown:
		return 2
	case SeverityCritical:
		return 3
	}

	return 0
}

// Worse returns the more severe of s and other.
func (s Severity) Worse(other Severity) Severity {
	if other.rank() > s.rank() {
		return other
	}

	return s
}

// ValidatorStatus describes the configured validator as seen by the beacon node.
type ValidatorStatus struct {
	Index         uint64  `json:"index"`
	Pubkey        string  `json:"pubkey,omitempty"`
	State         string  `json:"state"`
	Active        bool    `json:"active"`
	Attesting     *bool   `json:"attesting"`
	LastDutyEpoch *uint64 `json:"last_duty_epoch"`
	DutySlot      *uint64 `json:"duty_slot,omitempty"`
	HeadSlot      uint64  `json:"head_slot"`
	CurrentEpoch  uint64  `json:"current_epoch"`
}

// Observation holds the backend-agnostic fields extracted from a single successful exchange.
type Observation struct {
	Syncing      *bool
	Optimistic   bool
	SyncDistance *uint64
	Head         *uint64
	State        string
	Version      string
	Client       string
	Validator    *ValidatorStatus
	Snapshot     json.RawMessage
}

// ProbeResult is the normalized outcome of probing one backend. It is never modified after creation.
type ProbeResult struct {
	Backend      BackendKind      `json:"backend"`
	Reachable    bool             `json:"reachable"`
	Syncing      *bool            `json:"syncing"`
	Optimistic   bool             `json:"optimistic"`
	SyncDistance *uint64          `json:"sync_distance"`
	Head         *uint64          `json:"head,omitempty"`
	State        string           `json:"state,omitempty"`
	Version      string           `json:"version,omitempty"`
	Client       string           `json:"client,omitempty"`
	Latency      time.Duration    `json:"latency"`
	Attempts     int              `json:"attempts"`
	Error        *ProbeError      `json:"error,omitempty"`
	Validator    *ValidatorStatus `json:"-"`
	Snapshot     json.RawMessage  `json:"snapshot,omitempty"`
}

// NewProbeResult builds the result for a finished probe. A nil observation means the probe failed
// and err must be set; transient failures mark the backend unreachable.
func NewProbeResult(backend BackendKind, obs *Observation, err *ProbeError, latency time.Duration, attempts int) *ProbeResult {
	result := &ProbeResult{
		Backend:  backend,
		Latency:  latency,
		Attempts: attempts,
		Error:    err,
	}

	if obs == nil {
		if err == nil {
			result.Error = &ProbeError{Kind: ErrorMalformedResponse, Message: "empty observation"}
		}
		// a backend that answered with something we could not use is still reachable
		result.Reachable = result.Error.Protocol()
		return result
	}

	result.Reachable = true
	result.Syncing = obs.Syncing
	result.Optimistic = obs.Optimistic
	result.SyncDistance = obs.SyncDistance
	result.Head = obs.Head
	result.State = obs.State
	result.Version = obs.Version
	result.Client = obs.Client
	result.Validator = obs.Validator
	result.Snapshot = obs.Snapshot

	return result
}

// HealthReport is the reconciled verdict of one probe cycle.
type HealthReport struct {
	Overall         Severity                     `json:"overall"`
	Reasons         []string                     `json:"reasons"`
	PerBackend      map[BackendKind]*ProbeResult `json:"backends"`
	BackendSeverity map[BackendKind]Severity     `json:"backend_severity"`
	Validator       *ValidatorStatus             `json:"validator,omitempty"`
	GeneratedAt     time.Time                    `json:"generated_at"`
}

// BoolPtr and Uint64Ptr help building optional fields.
func BoolPtr(v bool) *bool {
	return &v
}

func Uint64Ptr(v uint64) *uint64 {
	return &v
}
