package reconciler

import (
	"fmt"
	"strings"
	"time"

	"github.com/emozilla/ethereum-validator-stack/types"
)

type Thresholds struct {
	// maximum sync distance in blocks that still counts as catching up
	ExecutionSyncDistance uint64
	// maximum sync distance in slots that still counts as catching up
	ConsensusSyncDistance uint64
	// a duty older than this many epochs is stale
	DutyStaleEpochs uint64
}

var DefaultThresholds = Thresholds{
	ExecutionSyncDistance: 1,
	ConsensusSyncDistance: 1,
	DutyStaleEpochs:       2,
}

// Reconciler derives the overall verdict from the probe results of one cycle.
type Reconciler struct {
	thresholds Thresholds
}

func NewReconciler(thresholds Thresholds) *Reconciler {
	return &Reconciler{
		thresholds: thresholds,
	}
}

type verdict struct {
	severity types.Severity
	backends map[types.BackendKind]types.Severity
	reasons  []string
}

func (v *verdict) raise(backend types.BackendKind, severity types.Severity, format string, args ...interface{}) {
	v.severity = v.severity.Worse(severity)
	v.backends[backend] = v.backends[backend].Worse(severity)
	v.reasons = append(v.reasons, fmt.Sprintf("[%v] %v", severity, fmt.Sprintf(format, args...)))
}

// Reconcile builds the report. It is a pure function of its inputs.
func (r *Reconciler) Reconcile(results map[types.BackendKind]*types.ProbeResult, now time.Time) *types.HealthReport {
	report := &types.HealthReport{
		PerBackend:  make(map[types.BackendKind]*types.ProbeResult, len(types.AllBackends)),
		GeneratedAt: now,
	}

	v := &verdict{
		severity: types.SeverityOK,
		backends: make(map[types.BackendKind]types.Severity, len(types.AllBackends)),
		reasons:  []string{},
	}

	for _, backend := range types.AllBackends {
		result := results[backend]
		if result == nil {
			v.raise(backend, types.SeverityUnknown, "%v: no probe result", backend)
			continue
		}

		report.PerBackend[backend] = result

		if !r.checkReachability(v, result) {
			continue
		}

		switch backend {
		case types.BackendExecution:
			r.checkSync(v, result, r.thresholds.ExecutionSyncDistance, "blocks")
		case types.BackendConsensus:
			r.checkSync(v, result, r.thresholds.ConsensusSyncDistance, "slots")
			if result.Optimistic {
				v.raise(backend, types.SeverityDegraded, "%v: beacon node is optimistic, execution payloads are not verified (check the execution client)", backend)
			}
		case types.BackendValidatorClient:
			report.Validator = result.Validator
			r.checkValidator(v, result)
		}
	}

	report.Overall = v.severity
	report.BackendSeverity = v.backends
	report.Reasons = v.reasons

	return report
}

// checkReachability reports whether the result carries usable data.
func (r *Reconciler) checkReachability(v *verdict, result *types.ProbeResult) bool {
	if !result.Reachable {
		if result.Error != nil && result.Error.Kind == types.ErrorCancelled {
			v.raise(result.Backend, types.SeverityUnknown, "%v: probe did not complete in time: %v", result.Backend, result.Error)
		} else {
			v.raise(result.Backend, types.SeverityCritical, "%v: unreachable: %v", result.Backend, result.Error)
		}

		return false
	}

	if result.Error != nil {
		v.raise(result.Backend, types.SeverityUnknown, "%v: incompatible response: %v", result.Backend, result.Error)
		return false
	}

	return true
}

func (r *Reconciler) checkSync(v *verdict, result *types.ProbeResult, threshold uint64, unit string) {
	if result.Syncing == nil {
		v.raise(result.Backend, types.SeverityUnknown, "%v: sync state could not be determined", result.Backend)
		return
	}

	if !*result.Syncing {
		return
	}

	if result.SyncDistance == nil {
		v.raise(result.Backend, types.SeverityCritical, "%v: node is syncing with unknown distance (%v)", result.Backend, result.State)
		return
	}

	distance := *result.SyncDistance
	if distance > threshold {
		v.raise(result.Backend, types.SeverityCritical, "%v: node is syncing, %v %v behind (threshold %v)", result.Backend, distance, unit, threshold)
	} else {
		v.raise(result.Backend, types.SeverityDegraded, "%v: node is catching up, %v %v behind", result.Backend, distance, unit)
	}
}

func (r *Reconciler) checkValidator(v *verdict, result *types.ProbeResult) {
	status := result.Validator
	if status == nil {
		v.raise(result.Backend, types.SeverityUnknown, "%v: validator status could not be determined", result.Backend)
		return
	}

	if !status.Active || status.State == "active_slashed" {
		r.checkInactiveValidator(v, status)
		return
	}

	if status.Attesting != nil && !*status.Attesting {
		v.raise(types.BackendValidatorClient, types.SeverityDegraded, "validator %v: no attestation seen in epoch %v", status.Index, previousEpoch(status.CurrentEpoch))
	}

	if status.LastDutyEpoch == nil {
		v.raise(types.BackendValidatorClient, types.SeverityDegraded, "validator %v: no attester duty found within the last %v epochs", status.Index, r.thresholds.DutyStaleEpochs+1)
	} else if age := epochAge(status.CurrentEpoch, *status.LastDutyEpoch); age > r.thresholds.DutyStaleEpochs {
		v.raise(types.BackendValidatorClient, types.SeverityDegraded, "validator %v: last attester duty in epoch %v is %v epochs old", status.Index, *status.LastDutyEpoch, age)
	}
}

func (r *Reconciler) checkInactiveValidator(v *verdict, status *types.ValidatorStatus) {
	switch {
	case strings.HasPrefix(status.State, "pending"):
		v.raise(types.BackendValidatorClient, types.SeverityDegraded, "validator %v: not active yet (%v)", status.Index, status.State)
	case strings.HasSuffix(status.State, "_slashed"):
		v.raise(types.BackendValidatorClient, types.SeverityCritical, "validator %v: slashed (%v)", status.Index, status.State)
	case strings.HasPrefix(status.State, "exited"), strings.HasPrefix(status.State, "withdrawal"):
		v.raise(types.BackendValidatorClient, types.SeverityCritical, "validator %v: no longer active (%v)", status.Index, status.State)
	default:
		v.raise(types.BackendValidatorClient, types.SeverityUnknown, "validator %v: unrecognized state %q", status.Index, status.State)
	}
}

func epochAge(current, epoch uint64) uint64 {
	if epoch >= current {
		return 0
	}

	return current - epoch
}

func previousEpoch(epoch uint64) uint64 {
	if epoch == 0 {
		return 0
	}

	return epoch - 1
}
