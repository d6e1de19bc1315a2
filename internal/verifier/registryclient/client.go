// Package registryclient is the HTTP client verifiers use to pull deltas
// from the registry. It exists behind verifier.RegistryClient so the cache
// itself never touches the network directly.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"meldid/internal/registry"
	"meldid/internal/verifier"
	"meldid/pkg/platform/sentinel"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the registry at baseURL. The timeout bounds the
// whole request; a verifier's sync must fail, not hang.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type batchLookupRequest struct {
	ChipIDs  []string `json:"chipIDs"`
	LastSync int64    `json:"lastSync,omitempty"`
}

type batchLookupResponse struct {
	Updated       int              `json:"updated"`
	Total         int              `json:"total"`
	SyncTimestamp int64            `json:"syncTimestamp"`
	Entries       []registry.Entry `json:"entries"`
}

func (c *Client) BatchLookup(ctx context.Context, chipIDs []string, lastSync int64) (verifier.SyncResult, error) {
	payload, err := json.Marshal(batchLookupRequest{ChipIDs: chipIDs, LastSync: lastSync})
	if err != nil {
		return verifier.SyncResult{}, fmt.Errorf("marshal batchLookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/registry/batchLookup", bytes.NewReader(payload))
	if err != nil {
		return verifier.SyncResult{}, fmt.Errorf("build batchLookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return verifier.SyncResult{}, fmt.Errorf("batchLookup: %w: %v", sentinel.ErrUnavailable, err)
		}
		return verifier.SyncResult{}, fmt.Errorf("batchLookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return verifier.SyncResult{}, fmt.Errorf("batchLookup: %w: registry returned %d", sentinel.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return verifier.SyncResult{}, fmt.Errorf("batchLookup: registry returned %d", resp.StatusCode)
	}

	var body batchLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return verifier.SyncResult{}, fmt.Errorf("decode batchLookup response: %w", err)
	}
	return verifier.SyncResult{
		Entries:       body.Entries,
		Total:         body.Total,
		SyncTimestamp: body.SyncTimestamp,
	}, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
