package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const (
	DefaultPath       = "predict"
	DefaultLabelField = "prediction"
	DefaultUserAgent  = "wheatscan/1.0"
	DefaultTimeout    = 30 * time.Second

	// responses larger than this are cut off before parsing
	maxResponseBytes = 1 << 20
)

type Config struct {
	BaseURL    string
	Path       string
	FieldName  string
	LabelField string
	UserAgent  string
}

// Client uploads images to the classification endpoint. It never retries and
// keeps no state between calls.
type Client struct {
	http       *http.Client
	endpoint   string
	fieldName  string
	labelField string
	userAgent  string
}

// NewHTTPClient returns an http.Client tuned for single image uploads.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects (limit: 3)")
			}
			return nil
		},
	}
}

func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid classifier base url %q", cfg.BaseURL)
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	endpoint, err := url.JoinPath(cfg.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("invalid classifier path %q: %w", path, err)
	}

	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	client := &Client{
		http:       httpClient,
		endpoint:   endpoint,
		fieldName:  cfg.FieldName,
		labelField: cfg.LabelField,
		userAgent:  cfg.UserAgent,
	}
	if client.fieldName == "" {
		client.fieldName = DefaultFieldName
	}
	if client.labelField == "" {
		client.labelField = DefaultLabelField
	}
	if client.userAgent == "" {
		client.userAgent = DefaultUserAgent
	}
	return client, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) FieldName() string { return c.fieldName }

// Upload sends the image in one POST and turns every possible outcome into a
// Result. It never returns an error.
func (c *Client) Upload(ctx context.Context, req *UploadRequest) Result {
	start := time.Now()
	body, contentType, err := req.encode()
	if err != nil {
		slog.Error("failed to build upload body", "image", req.asset.Name, "error", err)
		return Failure(FailureTransport, genericErrorPrefix+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Failure(FailureTransport, genericErrorPrefix+err.Error())
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	slog.Info("uploading image", "endpoint", c.endpoint, "image", req.asset.Name,
		"content_type", req.contentType, "size_bytes", body.Len())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		message := describeTransportError(err)
		slog.Warn("upload failed", "endpoint", c.endpoint, "error", err, "message", message,
			"elapsed", time.Since(start))
		return Failure(FailureTransport, message)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(data))
		if message == "" {
			message = resp.Status
		}
		slog.Warn("classifier rejected upload", "status", resp.StatusCode, "message", message,
			"elapsed", time.Since(start))
		return Failure(FailureAPI, message)
	}
	if readErr != nil {
		return Failure(FailureTransport, describeTransportError(readErr))
	}

	label, err := c.parseLabel(data)
	if err != nil {
		slog.Warn("malformed classifier response", "error", err, "body_bytes", len(data))
		return Failure(FailureTransport, genericErrorPrefix+err.Error())
	}
	slog.Info("classifier answered", "label", label, "elapsed", time.Since(start))
	return Success(label)
}

func (c *Client) parseLabel(data []byte) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	switch v := payload[c.labelField].(type) {
	case nil:
		return UnknownLabel, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return UnknownLabel, nil
		}
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

// describeTransportError maps a failed round trip to a short message for the
// user. Timeouts are checked first because a dial timeout is both.
func describeTransportError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return MessageTimeout
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return MessageConnectionFailed
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return MessageConnectionFailed
	case errors.Is(err, syscall.ECONNREFUSED):
		return MessageConnectionFailed
	}
	return genericErrorPrefix + err.Error()
}
