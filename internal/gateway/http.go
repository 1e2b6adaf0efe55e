package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/ticket-reconciler/internal/clients"
)

// HTTPClient talks to the gateway's REST API using the merchant secret key
// as the basic-auth user name.
type HTTPClient struct {
	baseURL   string
	secretKey string
	hc        *http.Client
}

// NewHTTPClient returns a gateway client for baseURL.
func NewHTTPClient(baseURL, secretKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		hc:        clients.NewHTTPClient(timeout),
	}
}

func (c *HTTPClient) ChargeStatus(ctx context.Context, chargeID string) (*Charge, error) {
	var out Charge
	if err := c.do(ctx, http.MethodGet, chargeID, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Capture(ctx context.Context, chargeID string, amount uint32) (*Charge, error) {
	var out Charge
	body := map[string]uint32{"amount": amount}
	if err := c.do(ctx, http.MethodPost, chargeID, "/capture", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Refund(ctx context.Context, chargeID string) error {
	return c.do(ctx, http.MethodPost, chargeID, "/refund", struct{}{}, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, chargeID, suffix string, in, out interface{}) error {
	u := c.baseURL + "/v1/charges/" + url.PathEscape(chargeID) + suffix
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.secretKey, "")

	err = clients.DoJSON(ctx, c.hc, req, out)
	if err == nil {
		return nil
	}
	var apiErr *clients.APIError
	if errors.As(err, &apiErr) {
		return &Error{StatusCode: apiErr.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s charge %s: %w", method, chargeID, ctx.Err())
	}
	return &Error{Message: err.Error(), Err: err}
}
