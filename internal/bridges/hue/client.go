package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const defaultRequestTimeout = 15 * time.Second

// Connector is the bridge transport the sync engine programs against.
// Client implements it; tests substitute fakes.
type Connector interface {
	// FetchAll retrieves the full resource payload in one round trip.
	FetchAll(ctx context.Context) (map[string]any, error)

	// Send issues a command to a relative resource address and returns
	// the bridge's per-field result array.
	Send(ctx context.Context, method, address string, body map[string]any) ([]map[string]any, error)

	// IsConnected reports whether the last request reached the bridge.
	IsConnected() bool

	// Stats returns transport counters for health reporting.
	Stats() ClientStats
}

// ClientStats is a snapshot of the transport counters.
type ClientStats struct {
	RequestsTotal uint64    `json:"requests_total"`
	ErrorsTotal   uint64    `json:"errors_total"`
	LastSuccess   time.Time `json:"last_success"`
	Reachable     bool      `json:"reachable"`
}

// ClientConfig holds the settings for a bridge client.
type ClientConfig struct {
	// Host is the bridge address, hostname or IP.
	Host string

	// Port is the bridge HTTP port. Zero means 80.
	Port int

	// Username is the API key issued by the bridge during pairing. It
	// may be empty for a client that only registers.
	Username string

	// Timeout bounds each request. Zero means 15s.
	Timeout time.Duration

	// Logger receives debug output. May be nil.
	Logger Logger
}

// Client talks to a Hue bridge over its v1 REST API.
//
// All methods are safe for concurrent use. The client keeps running
// request counters and a reachability flag that feed the health
// reporter; it holds no other state.
type Client struct {
	host     string
	port     int
	username string
	http     *http.Client

	requestsTotal atomic.Uint64
	errorsTotal   atomic.Uint64
	lastSuccess   atomic.Int64
	reachable     atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex
}

var _ Connector = (*Client)(nil)

// NewClient creates a bridge client.
//
// Parameters:
//   - cfg: connection settings. Host is required; Username may be empty
//     when the client is only used for pairing.
//
// Returns:
//   - A ready client, or ErrMissingCredentials when no host is set.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, ErrMissingCredentials
	}
	port := cfg.Port
	if port <= 0 {
		port = 80
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		host:     cfg.Host,
		port:     port,
		username: cfg.Username,
		http:     &http.Client{Timeout: timeout},
		logger:   cfg.Logger,
	}, nil
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	c.logger = logger
}

// Address returns the bridge's host:port pair.
func (c *Client) Address() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// IsConnected reports whether the most recent request reached the
// bridge. A fresh client reports false until the first round trip.
func (c *Client) IsConnected() bool {
	return c.reachable.Load()
}

// Stats returns a snapshot of the transport counters.
func (c *Client) Stats() ClientStats {
	stats := ClientStats{
		RequestsTotal: c.requestsTotal.Load(),
		ErrorsTotal:   c.errorsTotal.Load(),
		Reachable:     c.reachable.Load(),
	}
	if ts := c.lastSuccess.Load(); ts > 0 {
		stats.LastSuccess = time.Unix(ts, 0)
	}
	return stats
}

// FetchAll retrieves the bridge's full resource payload.
//
// The v1 API answers the root resource with either the resource map or
// an error array; the array form is folded into ErrBridgeResponse.
func (c *Client) FetchAll(ctx context.Context) (map[string]any, error) {
	if c.username == "" {
		return nil, ErrMissingCredentials
	}
	raw, err := c.do(ctx, http.MethodGet, c.baseURL()+"/", nil)
	if err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	switch v := payload.(type) {
	case map[string]any:
		return v, nil
	case []any:
		return nil, bridgeError(asObjects(v))
	}
	return nil, fmt.Errorf("%w: unexpected payload type %T", ErrInvalidResponse, payload)
}

// Send issues a command against a relative resource address.
//
// Parameters:
//   - method: HTTP method; empty means PUT. GET requests carry no body.
//   - address: resource path relative to the API root, with or without
//     a leading slash, e.g. "lights/1/state".
//   - body: command fields, marshalled as a JSON object.
//
// Returns:
//   - The bridge's result array: one element per field, each carrying a
//     "success" or "error" object.
func (c *Client) Send(ctx context.Context, method, address string, body map[string]any) ([]map[string]any, error) {
	if c.username == "" {
		return nil, ErrMissingCredentials
	}
	if method == "" {
		method = http.MethodPut
	}
	var payload any
	if len(body) > 0 && method != http.MethodGet {
		payload = body
	}

	url := c.baseURL() + "/" + strings.TrimPrefix(address, "/")
	raw, err := c.do(ctx, method, url, payload)
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return results, nil
}

// Register pairs with the bridge and returns the issued username. The
// bridge's link button must have been pressed within the last 30s.
func (c *Client) Register(ctx context.Context, devicetype string) (string, error) {
	url := fmt.Sprintf("http://%s/api", c.Address())
	raw, err := c.do(ctx, http.MethodPost, url, map[string]any{"devicetype": devicetype})
	if err != nil {
		return "", err
	}

	var results []map[string]any
	if err := json.Unmarshal(raw, &results); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	for _, el := range results {
		if success, ok := el["success"].(map[string]any); ok {
			if username, ok := success["username"].(string); ok && username != "" {
				return username, nil
			}
		}
	}
	return "", bridgeError(results)
}

// do performs one HTTP round trip and maintains the transport counters.
func (c *Client) do(ctx context.Context, method, url string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("hue: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("hue: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.requestsTotal.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		c.errorsTotal.Add(1)
		c.reachable.Store(false)
		err = classifyTransport(err)
		c.logDebug("bridge request failed", "method", method, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errorsTotal.Add(1)
		c.reachable.Store(false)
		return nil, classifyTransport(err)
	}

	c.reachable.Store(true)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.errorsTotal.Add(1)
		return nil, fmt.Errorf("%w: status %d", ErrBridgeResponse, resp.StatusCode)
	}

	c.lastSuccess.Store(time.Now().Unix())
	c.logDebug("bridge request", "method", method, "status", resp.StatusCode)
	return data, nil
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("http://%s/api/%s", c.Address(), c.username)
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// classifyTransport maps low-level request failures onto the package's
// sentinel errors so the sync loop can tell transport faults apart from
// upstream ones.
func classifyTransport(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	case errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("%w: %v", ErrConnectionReset, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
	}
	return fmt.Errorf("hue: request failed: %w", err)
}

// bridgeError folds a v1 error array into ErrBridgeResponse.
func bridgeError(results []map[string]any) error {
	var descriptions []string
	for _, el := range results {
		errObj, ok := el["error"].(map[string]any)
		if !ok {
			continue
		}
		if desc, ok := errObj["description"].(string); ok && desc != "" {
			descriptions = append(descriptions, desc)
		}
	}
	if len(descriptions) == 0 {
		return fmt.Errorf("%w: unknown error", ErrBridgeResponse)
	}
	return fmt.Errorf("%w: %s", ErrBridgeResponse, strings.Join(descriptions, "; "))
}

func asObjects(elements []any) []map[string]any {
	objects := make([]map[string]any, 0, len(elements))
	for _, el := range elements {
		if m, ok := el.(map[string]any); ok {
			objects = append(objects, m)
		}
	}
	return objects
}
