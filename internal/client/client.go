// Package client provides a Go SDK for talking to one registry node.
//
// Big idea:
//
// Instead of writing raw HTTP requests everywhere,
// we wrap them inside a clean Go API.
//
// So instead of:
//
//	http.NewRequest(...)
//	json.Marshal(...)
//
// Users can simply call:
//
//	client.Register(ctx, "svc-A", "10.0.0.1:9000", "Go", "1.0", "EU")
//	client.Get(ctx, "svc-A")
//
// This is called a "client library" or "SDK". It hides:
//   - HTTP details
//   - JSON encoding/decoding
//   - Error handling
//
// and exposes a clean Go interface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to one registry node over its two planes: the business plane
// (registration reads/writes) and the liveness plane (ping/uptime probes).
//
// Important:
//
// A Client talks to ONE node. That node is responsible for replicating
// writes to the rest of the cluster and for deciding its own role — the
// client never implements any of that distributed logic itself.
type Client struct {
	bizURL     string
	hbURL      string
	httpClient *http.Client
}

// New creates a Client. bizAddr and hbAddr are host:port pairs; timeout
// protects every call from hanging forever — in a distributed system, never
// call the network without one.
func New(bizAddr, hbAddr string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		bizURL:     "http://" + bizAddr,
		hbURL:      "http://" + hbAddr,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Object is one registered service entry as returned by Get/List.
type Object struct {
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Language string  `json:"language"`
	Version  string  `json:"version"`
	Region   string  `json:"region"`
	LastSeen float64 `json:"last_seen"`
}

// Register creates or replaces the object named name (an upsert).
func (c *Client) Register(ctx context.Context, name, address, language, version, region string) error {
	body, _ := json.Marshal(map[string]string{
		"name": name, "address": address, "language": language, "version": version, "region": region,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bizURL+"/registry", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("register request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Update replaces an already-registered object's fields. Unlike Register,
// it fails if name is not already present.
func (c *Client) Update(ctx context.Context, name, address, language, version, region string) error {
	body, _ := json.Marshal(map[string]string{
		"address": address, "language": language, "version": version, "region": region,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/registry/%s", c.bizURL, name), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("update %q: not registered", name)
	}
	return nil
}

// Deregister removes name from the cluster.
func (c *Client) Deregister(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/registry/%s", c.bizURL, name), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deregister request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Get retrieves the address registered under name. ok is false if absent.
func (c *Client) Get(ctx context.Context, name string) (address string, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/registry/%s", c.bizURL, name), nil)
	if err != nil {
		return "", false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("get request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", false, err
	}

	var result struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false, err
	}
	return result.Address, result.Address != "", nil
}

// List returns every object currently registered on the node, unspecified
// order.
func (c *Client) List(ctx context.Context) ([]Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bizURL+"/registry", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result struct {
		Objects []Object `json:"objects"`
	}
	return result.Objects, json.NewDecoder(resp.Body).Decode(&result)
}

// Heartbeat refreshes name's last-seen timestamp so it survives TTL
// eviction. ok is false if name is not registered.
func (c *Client) Heartbeat(ctx context.Context, name string) (ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/registry/%s/heartbeat", c.bizURL, name), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("heartbeat request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return false, err
	}

	var result struct {
		OK bool `json:"ok"`
	}
	return result.OK, json.NewDecoder(resp.Body).Decode(&result)
}

// Ping reports whether the node currently believes itself PRIMARY.
func (c *Client) Ping(ctx context.Context) (primary bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.hbURL+"/ping", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("ping request failed: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// UptimeInfo mirrors cluster.UptimeInfo without importing the cluster
// package into the public SDK surface.
type UptimeInfo struct {
	NodeID    string  `json:"node_id"`
	UptimeSec float64 `json:"uptime_sec"`
}

// GetUptime retrieves the node's self-reported uptime.
func (c *Client) GetUptime(ctx context.Context) (UptimeInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.hbURL+"/uptime", nil)
	if err != nil {
		return UptimeInfo{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UptimeInfo{}, fmt.Errorf("uptime request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return UptimeInfo{}, err
	}

	var info UptimeInfo
	return info, json.NewDecoder(resp.Body).Decode(&info)
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts HTTP error responses into Go errors.
//
// If status is 2xx → success. Otherwise, read the body, try parsing
// {"error": "..."} JSON, and return an APIError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
