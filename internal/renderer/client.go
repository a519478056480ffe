// ABOUTME: HTTP client for the template render service
// ABOUTME: Posts zipped template packages and maps service errors to fault kinds

package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/2389/document-gateway/internal/fault"
)

// maxErrorBody bounds how much of an error response is kept as the message.
const maxErrorBody = 4 << 10

// Config configures a Client.
type Config struct {
	URL    string
	Logger *slog.Logger
	// HTTPClient defaults to a plain http.Client. Deadlines come from the
	// caller's context.
	HTTPClient *http.Client
}

// Client talks to the render service.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New validates the service URL and creates a Client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parsing renderer url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("renderer url %q must use http or https", cfg.URL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("renderer url %q has no host", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		client:  httpClient,
		logger:  logger.With("component", "renderer"),
	}, nil
}

// Render posts the package at pkg and writes the returned ODT document to dst.
func (c *Client) Render(ctx context.Context, pkg string, dst io.Writer, embedErrors bool) error {
	resp, err := c.postPackage(ctx, "/render?error="+strconv.FormatBool(embedErrors), pkg)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fault.Wrap(fault.BackendUnavailable, err, "reading rendered document")
	}
	return nil
}

// Vars posts the package at pkg and returns the variable names it references.
func (c *Client) Vars(ctx context.Context, pkg string) ([]string, error) {
	resp, err := c.postPackage(ctx, "/vars", pkg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fault.Wrap(fault.Generic, err, "decoding renderer vars")
	}
	return names, nil
}

// Ping checks the service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fault.Wrap(fault.BackendUnavailable, err, "renderer unavailable")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fault.Newf(fault.BackendUnavailable, "renderer health returned status %d", resp.StatusCode)
	}
	return nil
}

// postPackage sends the zip at pkg to path. A non-200 response is turned
// into a fault error and its body closed.
func (c *Client) postPackage(ctx context.Context, path, pkg string) (*http.Response, error) {
	f, err := os.Open(pkg)
	if err != nil {
		return nil, fmt.Errorf("opening template package: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("inspecting template package: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, f)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/zip")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.BackendUnavailable, err, "renderer unavailable")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}
	return resp, nil
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("renderer returned status %d", resp.StatusCode)
	}

	kind := KindForStatus(resp.StatusCode)
	c.logger.Debug("renderer rejected request", "status", resp.StatusCode, "kind", kind.String())
	return fault.New(kind, msg)
}

// KindForStatus maps a render service status code to a fault kind.
func KindForStatus(status int) fault.Kind {
	switch status {
	case http.StatusBadRequest:
		return fault.BadInput
	case http.StatusUnprocessableEntity:
		return fault.CompilationFailed
	case http.StatusNotImplemented:
		return fault.UnsupportedFormat
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fault.BackendUnavailable
	default:
		return fault.Generic
	}
}
