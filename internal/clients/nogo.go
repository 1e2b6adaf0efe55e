package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNoGoHit is returned by Validate when the holder is on the no-go list.
var ErrNoGoHit = errors.New("holder is on the no-go list")

// NoGoClient runs the no-go-user check against a holder's auth code.
type NoGoClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewNoGoClient returns a NoGoClient for baseURL.
func NewNoGoClient(baseURL, apiKey string, timeout time.Duration) *NoGoClient {
	return &NoGoClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: NewHTTPClient(timeout)}
}

type noGoResult struct {
	Hit bool `json:"hit"`
}

// Validate returns nil when the holder may enter, ErrNoGoHit on a hit and
// any other error when the check itself failed.
func (c *NoGoClient) Validate(ctx context.Context, authCode string) error {
	body, err := json.Marshal(map[string]string{"auth_code": authCode})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checks", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	var res noGoResult
	if err := DoJSON(ctx, c.hc, req, &res); err != nil {
		return fmt.Errorf("no-go check: %w", err)
	}
	if res.Hit {
		return ErrNoGoHit
	}
	return nil
}
