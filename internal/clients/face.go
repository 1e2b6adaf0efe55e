package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrFaceRecordNotFound is returned by DeleteRecord when the
// face-recognition system holds no record for the scan code.
var ErrFaceRecordNotFound = errors.New("face record not found")

// FaceClient deletes biometric records held by the face-recognition system
// at the venue.
type FaceClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewFaceClient returns a FaceClient for baseURL.
func NewFaceClient(baseURL, apiKey string, timeout time.Duration) *FaceClient {
	return &FaceClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: NewHTTPClient(timeout)}
}

// DeleteRecord removes the record registered for qrCode.
func (c *FaceClient) DeleteRecord(ctx context.Context, qrCode string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/records/"+url.PathEscape(qrCode), nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	err = DoJSON(ctx, c.hc, req, nil)
	if IsStatus(err, http.StatusNotFound) {
		return ErrFaceRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("delete face record: %w", err)
	}
	return nil
}
