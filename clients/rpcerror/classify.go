// Package rpcerror translates transport and protocol failures of the endpoint clients into typed probe errors.
package rpcerror

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/emozilla/ethereum-validator-stack/types"
)

// Malformed wraps a schema mismatch. These are never retried.
func Malformed(format string, err error) *types.ProbeError {
	return &types.ProbeError{
		Kind:    types.ErrorMalformedResponse,
		Message: format,
		Err:     err,
	}
}

// HTTPStatus builds the error for an unexpected response status.
func HTTPStatus(status int, body []byte) *types.ProbeError {
	msg := string(body)
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if msg == "" {
		msg = "unexpected response status"
	}

	return &types.ProbeError{
		Kind:    types.ErrorHttp,
		Status:  status,
		Message: msg,
	}
}

// Classify maps err to a ProbeError. ctx is the invocation context: its cancellation takes precedence
// over whatever the per-call context reported.
func Classify(ctx context.Context, err error) *types.ProbeError {
	if err == nil {
		return nil
	}

	var probeErr *types.ProbeError
	if errors.As(err, &probeErr) {
		return probeErr
	}

	if ctx != nil && ctx.Err() != nil {
		return &types.ProbeError{Kind: types.ErrorCancelled, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &types.ProbeError{Kind: types.ErrorTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &types.ProbeError{Kind: types.ErrorTimeout, Err: err}
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return &types.ProbeError{Kind: types.ErrorHttp, Status: httpErr.StatusCode, Err: err}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &types.ProbeError{Kind: types.ErrorMalformedResponse, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &types.ProbeError{Kind: types.ErrorMalformedResponse, Err: err}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return &types.ProbeError{Kind: types.ErrorConnectionRefused, Err: err}
	}

	// an EOF inside these is a dropped connection
	var dnsErr *net.DNSError
	var opErr *net.OpError
	var urlErr *url.Error
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.As(err, &urlErr) {
		return &types.ProbeError{Kind: types.ErrorConnectionRefused, Err: err}
	}

	// a bare EOF comes from decoding an empty or truncated body the node did answer with
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &types.ProbeError{Kind: types.ErrorMalformedResponse, Message: "empty or truncated response body", Err: err}
	}

	return &types.ProbeError{Kind: types.ErrorMalformedResponse, Err: err}
}
