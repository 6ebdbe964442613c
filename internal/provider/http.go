// internal/provider/http.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"thellex-wallet/internal/util"
)

// defaultHTTPTimeout bounds any single provider call. Callers layer their own
// context deadlines on top.
const defaultHTTPTimeout = 15 * time.Second

// doJSON performs one JSON request against a provider API and decodes the
// response body into out. Transport failures are classified into the retryable
// sentinel errors so callers can tell an outage from a rejection.
func doJSON(ctx context.Context, client *http.Client, method, url, bearer string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s: %v", util.ErrProviderTimeout, method, url, err)
		}
		return fmt.Errorf("%w: %s %s: %v", util.ErrProviderUnavail, method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response from %s: %v", util.ErrProviderUnavail, url, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s %s returned %d", util.ErrProviderUnavail, method, url, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("provider rejected %s %s: status %d body %s", method, url, resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", url, err)
		}
	}
	return nil
}
