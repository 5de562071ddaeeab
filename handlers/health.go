package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/emozilla/ethereum-validator-stack/types"
)

// CycleRunner runs one full health cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*types.HealthReport, error)
}

type ApiResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

type HealthHandler struct {
	runner CycleRunner
	logger logrus.FieldLogger
}

func NewHealthHandler(runner CycleRunner, logger logrus.FieldLogger) *HealthHandler {
	return &HealthHandler{
		runner: runner,
		logger: logger.WithField("module", "handlers"),
	}
}

// Health runs a fresh cycle for every request. OK and DEGRADED answer 200, everything else 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	report, err := h.runner.RunCycle(r.Context())
	if err != nil {
		h.logger.Errorf("health cycle failed: %v", err)
		sendErrorWithCodeResponse(w, h.logger, r.URL.Path, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(StatusCode(report.Overall))

	err = json.NewEncoder(w).Encode(report)
	if err != nil {
		h.logger.Errorf("error serializing json data for API %v route: %v", r.URL.Path, err)
	}
}

// StatusCode maps a verdict to the http status of the health endpoint.
func StatusCode(severity types.Severity) int {
	switch severity {
	case types.SeverityOK, types.SeverityDegraded:
		return http.StatusOK
	default:
		return http.StatusServiceUnavailable
	}
}

func sendErrorWithCodeResponse(w http.ResponseWriter, logger logrus.FieldLogger, route, message string, errorcode int) {
	w.WriteHeader(errorcode)

	response := &ApiResponse{
		Status: "ERROR: " + message,
	}

	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		logger.Errorf("error serializing json error for API %v route: %v", route, err)
	}
}
