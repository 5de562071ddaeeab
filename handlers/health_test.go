package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emozilla/ethereum-validator-stack/types"
)

type fakeRunner struct {
	report *types.HealthReport
	err    error
}

func (f *fakeRunner) RunCycle(ctx context.Context) (*types.HealthReport, error) {
	return f.report, f.err
}

func serveHealth(t *testing.T, runner CycleRunner) *httptest.ResponseRecorder {
	logger, _ := test.NewNullLogger()

	rec := httptest.NewRecorder()
	NewHealthHandler(runner, logger).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		severity types.Severity
		status   int
	}{
		{types.SeverityOK, http.StatusOK},
		{types.SeverityDegraded, http.StatusOK},
		{types.SeverityCritical, http.StatusServiceUnavailable},
		{types.SeverityUnknown, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.severity.String(), func(t *testing.T) {
			rec := serveHealth(t, &fakeRunner{report: &types.HealthReport{
				Overall:     tt.severity,
				Reasons:     []string{},
				GeneratedAt: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
			}})

			assert.Equal(t, tt.status, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.severity.String(), body["overall"])
		})
	}
}

func TestHealthCycleError(t *testing.T) {
	rec := serveHealth(t, &fakeRunner{err: errors.New("duplicate client for backend consensus")})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var response ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "ERROR: duplicate client for backend consensus", response.Status)
}
