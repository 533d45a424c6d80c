package spanz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// TracerVersion is reported to the agent with every payload.
const TracerVersion = "0.1.0"

// errAgentStatus is returned for non-2xx agent responses.
var errAgentStatus = errors.New("unexpected agent status")

// transport delivers encoded payloads.
type transport interface {
	send(ctx context.Context, payload []byte, traces int, version string) error
}

// agentResponse is the body the agent returns for accepted payloads.
type agentResponse struct {
	RateByService map[string]float64 `json:"rate_by_service"`
}

// agentTransport PUTs payloads to the agent. A bare connection error is
// retried once, immediately; HTTP errors and timeouts are not retried.
type agentTransport struct {
	client  *retryablehttp.Client
	onRates func(map[string]float64)
	logger  *zap.Logger
	headers map[string]string
	baseURL string
}

func newAgentTransport(cfg Config, logger *zap.Logger, onRates func(map[string]float64)) *agentTransport {
	client := retryablehttp.NewClient()
	client.HTTPClient = cfg.HTTPClient
	client.RetryMax = 1
	client.RetryWaitMin = 0
	client.RetryWaitMax = 0
	client.Backoff = func(time.Duration, time.Duration, int, *http.Response) time.Duration { return 0 }
	client.CheckRetry = retryConnectionErrors
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = newLeveledLogger(logger)

	return &agentTransport{
		client:  client,
		onRates: onRates,
		logger:  logger,
		baseURL: strings.TrimSuffix(cfg.AgentURL, "/"),
		headers: map[string]string{
			"Content-Type":                  "application/msgpack",
			"Datadog-Meta-Lang":             "go",
			"Datadog-Meta-Lang-Version":     strings.TrimPrefix(runtime.Version(), "go"),
			"Datadog-Meta-Lang-Interpreter": runtime.Compiler + "-" + runtime.GOARCH + "-" + runtime.GOOS,
			"Datadog-Meta-Tracer-Version":   TracerVersion,
		},
	}
}

// retryConnectionErrors retries only requests that failed before any
// response was received, excluding timeouts.
func retryConnectionErrors(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false, nil
	}
	return true, nil
}

func (t *agentTransport) send(ctx context.Context, payload []byte, traces int, version string) error {
	url := t.baseURL + "/v" + version + "/traces"

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, url, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Datadog-Trace-Count", strconv.Itoa(traces))

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send traces: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", errAgentStatus, resp.StatusCode)
	}
	if err != nil {
		return fmt.Errorf("failed to read agent response: %w", err)
	}

	if len(body) == 0 || t.onRates == nil {
		return nil
	}
	var parsed agentResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		t.logger.Debug("ignoring malformed agent response", zap.Error(err))
		return nil
	}
	if parsed.RateByService != nil {
		t.onRates(parsed.RateByService)
	}
	return nil
}
