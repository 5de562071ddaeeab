package rpc

import (
	"context"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emozilla/ethereum-validator-stack/clients/rpcerror"
)

type ValidatorClient struct {
	name       string
	endpoint   string
	healthPath string
	headers    map[string]string
	client     *nethttp.Client
	logger     logrus.FieldLogger
}

// NewValidatorClient is used to create a new validator client api client
func NewValidatorClient(name, endpoint, healthPath string, headers map[string]string, timeout time.Duration, logger logrus.FieldLogger) *ValidatorClient {
	if healthPath != "" && !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}

	return &ValidatorClient{
		name:       name,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		healthPath: healthPath,
		headers:    headers,
		client: &nethttp.Client{
			Timeout: timeout,
			Transport: &nethttp.Transport{
				Proxy:             nethttp.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
		logger: logger.WithField("client", name),
	}
}

func (vc *ValidatorClient) GetName() string {
	return vc.name
}

// GetHealth succeeds for any 2xx answer on the health path.
func (vc *ValidatorClient) GetHealth(ctx context.Context) error {
	req, err := nethttp.NewRequestWithContext(ctx, "GET", vc.endpoint+vc.healthPath, nethttp.NoBody)
	if err != nil {
		return err
	}

	for headerKey, headerVal := range vc.headers {
		req.Header.Set(headerKey, headerVal)
	}

	resp, err := vc.client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		vc.logger.Debugf("validator client health error %v: %s", resp.StatusCode, data)

		return rpcerror.HTTPStatus(resp.StatusCode, data)
	}

	_, err = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return err
}
