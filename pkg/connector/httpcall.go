package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flowzap/flowzap/pkg/models"
)

// RESTCaller performs generic call_api requests. The per-call timeout is
// the connector-level call timeout; it is distinct from reply-wait
// timeouts and deliberate delays.
type RESTCaller struct {
	client *http.Client
}

func NewRESTCaller() *RESTCaller {
	return &RESTCaller{client: &http.Client{}}
}

// Call executes the request and classifies the response: 2xx/3xx succeed,
// 4xx fail permanently, 5xx and 429 surface as transient for retry.
func (c *RESTCaller) Call(ctx context.Context, call *models.HTTPCallPayload) (models.DispatchResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	var reqBody io.Reader
	if call.Body != "" {
		reqBody = strings.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(callCtx, call.Method, call.URL, reqBody)
	if err != nil {
		return models.DispatchResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range call.Headers {
		req.Header.Set(key, value)
	}

	if call.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.DispatchResult{}, &models.TransientProviderError{Err: err}
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.DispatchResult{}, &models.TransientProviderError{Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return models.DispatchResult{}, &models.TransientProviderError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream returned %s", http.StatusText(resp.StatusCode)),
		}
	}

	result := models.DispatchResult{
		Success:    resp.StatusCode < 400,
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}

	if !result.Success {
		result.Error = fmt.Sprintf("upstream returned %d", resp.StatusCode)
	}

	var jsonBody map[string]any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result.Output = jsonBody
	}

	return result, nil
}

var _ HTTPCaller = (*RESTCaller)(nil)
