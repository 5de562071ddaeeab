package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/emozilla/ethereum-validator-stack/types"
)

const (
	colorGreen  = "\033[92m"
	colorYellow = "\033[93m"
	colorRed    = "\033[91m"
	colorBold   = "\033[1m"
	colorReset  = "\033[0m"
)

// ExitCode maps the verdict to the process exit status monitors depend on.
func ExitCode(severity types.Severity) int {
	switch severity {
	case types.SeverityOK:
		return 0
	case types.SeverityDegraded:
		return 1
	case types.SeverityCritical:
		return 2
	default:
		return 3
	}
}

type Reporter struct {
	color bool
}

func NewReporter(color bool) *Reporter {
	return &Reporter{
		color: color,
	}
}

// Render writes the human readable summary: one line per backend, the validator, the reasons and the verdict.
func (rep *Reporter) Render(w io.Writer, report *types.HealthReport) error {
	var sb strings.Builder

	sb.WriteString(rep.bold("HEALTH CHECK: Ethereum Validator Stack"))
	sb.WriteString("\n")

	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	for _, backend := range types.AllBackends {
		severity := report.BackendSeverity[backend]
		result := report.PerBackend[backend]

		fmt.Fprintf(tw, "%v\t%v\t%v\n", rep.tag(severity), backend, describeResult(result))
	}
	tw.Flush()

	if report.Validator != nil {
		sb.WriteString(describeValidator(report.Validator))
		sb.WriteString("\n")
	}

	for _, reason := range report.Reasons {
		fmt.Fprintf(&sb, "  - %v\n", reason)
	}

	fmt.Fprintf(&sb, "%v %v\n", rep.bold("overall:"), rep.paint(report.Overall, report.Overall.String()))

	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderJSON writes the report for machine consumers.
func (rep *Reporter) RenderJSON(w io.Writer, report *types.HealthReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}

func (rep *Reporter) tag(severity types.Severity) string {
	var tag string
	switch severity {
	case types.SeverityOK:
		tag = "[OK]"
	case types.SeverityDegraded:
		tag = "[WARN]"
	case types.SeverityCritical:
		tag = "[ERR]"
	default:
		tag = "[UNKNOWN]"
	}

	return rep.paint(severity, tag)
}

func (rep *Reporter) paint(severity types.Severity, text string) string {
	if !rep.color {
		return text
	}

	switch severity {
	case types.SeverityOK:
		return colorGreen + text + colorReset
	case types.SeverityDegraded:
		return colorYellow + text + colorReset
	default:
		return colorRed + text + colorReset
	}
}

func (rep *Reporter) bold(text string) string {
	if !rep.color {
		return text
	}

	return colorBold + text + colorReset
}

func describeResult(result *types.ProbeResult) string {
	if result == nil {
		return "no result"
	}

	parts := []string{}

	if !result.Reachable {
		parts = append(parts, "unreachable")
	} else if result.State != "" {
		parts = append(parts, result.State)
	}

	if result.Syncing != nil && *result.Syncing {
		if result.SyncDistance != nil {
			parts = append(parts, fmt.Sprintf("%v behind", *result.SyncDistance))
		} else {
			parts = append(parts, "distance unknown")
		}
	}
	if result.Optimistic {
		parts = append(parts, "optimistic")
	}
	if result.Head != nil {
		parts = append(parts, fmt.Sprintf("head %v", *result.Head))
	}
	if result.Version != "" {
		parts = append(parts, result.Version)
	}

	parts = append(parts, fmt.Sprintf("%v ms", result.Latency.Round(time.Millisecond).Milliseconds()))

	if result.Attempts != 1 {
		parts = append(parts, fmt.Sprintf("%v attempts", result.Attempts))
	}
	if result.Error != nil {
		parts = append(parts, fmt.Sprintf("error: %v", result.Error))
	}

	return strings.Join(parts, ", ")
}

func describeValidator(status *types.ValidatorStatus) string {
	parts := []string{
		fmt.Sprintf("validator %v", status.Index),
	}

	if status.Pubkey != "" {
		parts[0] = fmt.Sprintf("%v (%v)", parts[0], shortPubkey(status.Pubkey))
	}

	parts = append(parts, status.State, fmt.Sprintf("epoch %v", status.CurrentEpoch))

	if status.DutySlot != nil {
		parts = append(parts, describeDutySlot(*status.DutySlot, status.HeadSlot))
	} else if status.Active {
		parts = append(parts, "no attester duty")
	}

	if status.Attesting != nil {
		if *status.Attesting {
			parts = append(parts, "attesting")
		} else {
			parts = append(parts, "not attesting")
		}
	}

	return strings.Join(parts, ", ")
}

func describeDutySlot(dutySlot, headSlot uint64) string {
	switch {
	case dutySlot > headSlot:
		return fmt.Sprintf("upcoming duty: slot %v (in %v slots)", dutySlot, dutySlot-headSlot)
	case dutySlot == headSlot:
		return fmt.Sprintf("attesting now: slot %v", dutySlot)
	default:
		return fmt.Sprintf("past duty: slot %v (%v slots ago)", dutySlot, headSlot-dutySlot)
	}
}

func shortPubkey(pubkey string) string {
	if len(pubkey) <= 12 {
		return pubkey
	}

	return fmt.Sprintf("%v...%v", pubkey[:6], pubkey[len(pubkey)-4:])
}
