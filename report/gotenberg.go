// Package report turns rendered HTML documents into PDFs through a Gotenberg
// service.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no Gotenberg endpoint is set.
var ErrNotConfigured = errors.New("report: gotenberg endpoint not configured")

// PageOptions are the Chromium print settings, in inches.
type PageOptions struct {
	PaperWidth  string
	PaperHeight string
	Margin      string
}

// A4 with half-inch margins.
var A4 = PageOptions{PaperWidth: "8.27", PaperHeight: "11.7", Margin: "0.5"}

// Client converts HTML to PDF.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a Client. An empty endpoint yields a client whose calls
// fail with ErrNotConfigured.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ping checks the Gotenberg health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c.endpoint == "" {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("report: ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("report: gotenberg health returned %d", resp.StatusCode)
	}
	return nil
}

// ConvertHTML posts html as index.html and returns the PDF bytes.
func (c *Client) ConvertHTML(ctx context.Context, html []byte, opts PageOptions) ([]byte, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(html); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"paperWidth":   opts.PaperWidth,
		"paperHeight":  opts.PaperHeight,
		"marginTop":    opts.Margin,
		"marginBottom": opts.Margin,
		"marginLeft":   opts.Margin,
		"marginRight":  opts.Margin,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report: convert: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("report: gotenberg returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return io.ReadAll(resp.Body)
}
