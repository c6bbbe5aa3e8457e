package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// maxBodySize caps how much of a provider response is read.
const maxBodySize = 8 << 20

// NewHTTPClient returns the client collectors share when none is injected.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Request describes one provider GET.
type Request struct {
	Source string
	Symbol string
	Kind   core.PayloadKind
	URL    string
	Header http.Header
}

// Get performs req and returns its body as a RawPayload. Transport and status
// failures are mapped onto the upstream error codes: 404 is SymbolNotFound,
// 429 is RateLimited, deadlines are Timeout, anything else non-2xx is Failed.
func Get(ctx context.Context, client *http.Client, req Request) (core.RawPayload, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return core.RawPayload{}, core.WrapError(core.ErrUpstreamFailed, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", "marketlens/1.0")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return core.RawPayload{}, ClassifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return core.RawPayload{}, ClassifyTransport(ctx, err)
	}

	payload := core.RawPayload{
		Source: req.Source,
		Symbol: req.Symbol,
		Kind:   req.Kind,
		Status: resp.StatusCode,
		Body:   body,
	}

	if err := ClassifyStatus(resp.StatusCode); err != nil {
		return payload, core.Errorf(err, "%s %s: status %d", req.Source, req.Symbol, resp.StatusCode)
	}
	return payload, nil
}

// ClassifyStatus maps a non-2xx HTTP status to an upstream error code.
func ClassifyStatus(status int) *core.Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return core.ErrSymbolNotFound
	case status == http.StatusTooManyRequests:
		return core.ErrUpstreamRateLimited
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return core.ErrUpstreamTimeout
	default:
		return core.ErrUpstreamFailed
	}
}

// ClassifyTransport maps a transport error onto Timeout or Failed.
func ClassifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.WrapError(core.ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.WrapError(core.ErrUpstreamTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return core.WrapError(core.ErrUpstreamFailed, fmt.Errorf("transport: %w", err))
}
