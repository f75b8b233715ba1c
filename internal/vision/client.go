// Package vision proxies uploaded images to an external object-detection
// service and normalises its predictions for incident reports.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

// ErrUnavailable signals that no detection service is configured or that
// it cannot be reached. Callers degrade to incident reports without
// labels.
var ErrUnavailable = errors.New("vision: detection service unavailable")

// Detection is one labelled object found in an analysed image.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Client wraps the HTTP detection service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClientFromEnv builds a client from EVENTGUARD_VISION_URL. Returns
// nil if the variable is not set so callers can degrade gracefully.
func NewClientFromEnv() *Client {
	base := os.Getenv("EVENTGUARD_VISION_URL")
	if base == "" {
		return nil
	}
	return NewClient(base)
}

// NewClient builds a client against an explicit service URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type detectResponse struct {
	Predictions []struct {
		Class      string  `json:"class"`
		Confidence float64 `json:"confidence"`
	} `json:"predictions"`
}

// Analyze uploads the image and returns the detections the service found.
// A nil client is a valid receiver and reports ErrUnavailable.
func (c *Client) Analyze(ctx context.Context, filename string, image io.Reader) ([]Detection, error) {
	if c == nil {
		return nil, ErrUnavailable
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("vision: build upload: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("vision: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("vision: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("vision: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: service returned HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("vision: decode response: %w", err)
	}

	out := make([]Detection, 0, len(decoded.Predictions))
	for _, p := range decoded.Predictions {
		out = append(out, Detection{Label: p.Class, Confidence: p.Confidence})
	}
	return out, nil
}
