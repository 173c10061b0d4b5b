// Package netinfo resolves the server's public IP and looks up coarse
// geolocation for visitor addresses via external HTTP services.
package netinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultIPEndpoint     = "https://api.ipify.org?format=json"
	defaultLookupEndpoint = "http://ip-api.com/json/"
	defaultRequestTimeout = 5 * time.Second
)

// IPInfo describes a looked-up address.
type IPInfo struct {
	IP       string `json:"query"`
	Country  string `json:"country"`
	Region   string `json:"regionName"`
	City     string `json:"city"`
	ISP      string `json:"isp"`
	Timezone string `json:"timezone"`
}

// Client fetches public-IP and lookup data. Requests carry a timeout and are
// never retried; a failed lookup degrades to an empty result at call sites.
type Client struct {
	httpClient     *http.Client
	ipEndpoint     string
	lookupEndpoint string
	group          singleflight.Group
}

// Option mutates client configuration.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithIPEndpoint overrides the public-IP service URL.
func WithIPEndpoint(endpoint string) Option {
	return func(c *Client) {
		if strings.TrimSpace(endpoint) != "" {
			c.ipEndpoint = endpoint
		}
	}
}

// WithLookupEndpoint overrides the IP lookup service base URL.
func WithLookupEndpoint(endpoint string) Option {
	return func(c *Client) {
		if strings.TrimSpace(endpoint) != "" {
			c.lookupEndpoint = endpoint
		}
	}
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient:     &http.Client{Timeout: defaultRequestTimeout},
		ipEndpoint:     defaultIPEndpoint,
		lookupEndpoint: defaultLookupEndpoint,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// CurrentIP returns the server's public IP address. Concurrent callers share
// a single in-flight request.
func (c *Client) CurrentIP(ctx context.Context) (string, error) {
	result, err, _ := c.group.Do("current-ip", func() (any, error) {
		return c.fetchCurrentIP(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) fetchCurrentIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ipEndpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build ip request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch public ip: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch public ip: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode public ip response: %w", err)
	}
	ip := strings.TrimSpace(payload.IP)
	if ip == "" {
		return "", fmt.Errorf("public ip service returned empty address")
	}
	return ip, nil
}

// Lookup resolves location details for the given address.
func (c *Client) Lookup(ctx context.Context, ip string) (IPInfo, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return IPInfo{}, fmt.Errorf("ip is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.lookupEndpoint+ip, nil)
	if err != nil {
		return IPInfo{}, fmt.Errorf("build lookup request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return IPInfo{}, fmt.Errorf("lookup ip %s: %w", ip, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return IPInfo{}, fmt.Errorf("lookup ip %s: unexpected status %d", ip, resp.StatusCode)
	}

	var info IPInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&info); err != nil {
		return IPInfo{}, fmt.Errorf("decode lookup response: %w", err)
	}
	return info, nil
}
