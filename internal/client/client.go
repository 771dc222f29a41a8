// Package client provides a small Go SDK for talking to one dynamokv
// node's HTTP API: hide the HTTP/JSON plumbing behind typed methods, talk
// to exactly one node (that node is responsible for replica fanout and
// quorum), and convert a 404 into a distinguishable ErrNotFound.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dynamokv/internal/vclock"
)

// Client talks to a single coordinatord node over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client bound to baseURL (e.g. "http://localhost:8080"),
// with timeout protecting every call from hanging indefinitely.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// PutResponse is returned after a successful write.
type PutResponse struct {
	Key             string    `json:"key"`
	ReplicasWritten int       `json:"replicas_written"`
}

// GetResponse is returned for a single, unambiguous value.
type GetResponse struct {
	Key   string    `json:"key"`
	Value string    `json:"value"`
	Clock vclock.VC `json:"clock"`
}

// Sibling is one entry of the concurrent value set Get returns alongside
// ErrConflict.
type Sibling struct {
	Value string    `json:"value"`
	Clock vclock.VC `json:"clock"`
}

// Put stores key=value under context (the caller's last-seen clock for
// this key, or nil for a first write).
func (c *Client) Put(ctx context.Context, key, value string, ctxClock vclock.VC) (*PutResponse, error) {
	body, err := json.Marshal(map[string]any{"value": value, "context": ctxClock})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/kv/%s", c.baseURL, key), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PUT request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result PutResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Get retrieves value for key. If the replicas disagree with no causal
// winner, it returns ErrConflict along with the surviving siblings.
func (c *Client) Get(ctx context.Context, key string) (*GetResponse, []Sibling, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/kv/%s", c.baseURL, key), nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, ErrNotFound
	}
	if resp.StatusCode == http.StatusConflict {
		var body struct {
			Siblings []Sibling `json:"siblings"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, nil, err
		}
		return nil, body.Siblings, ErrConflict
	}
	if err := checkStatus(resp); err != nil {
		return nil, nil, err
	}

	var result GetResponse
	return &result, nil, json.NewDecoder(resp.Body).Decode(&result)
}

// Delete removes key from the cluster.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/kv/%s", c.baseURL, key), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("DELETE request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// JoinCluster asks this node's coordinator to admit nodeID into the
// cluster.
func (c *Client) JoinCluster(ctx context.Context, nodeID string) error {
	return c.postJSON(ctx, "/cluster/join", map[string]string{"node": nodeID})
}

// LeaveCluster asks this node's coordinator to remove nodeID.
func (c *Client) LeaveCluster(ctx context.Context, nodeID string) error {
	return c.postJSON(ctx, "/cluster/remove", map[string]string{"node": nodeID})
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// ─── Errors ─────────────────────────────────────────────────────────────

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = fmt.Errorf("key not found")

// ErrConflict is returned by Get when replicas disagree with no causal
// winner; the caller must inspect the returned siblings.
var ErrConflict = fmt.Errorf("concurrent siblings")

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

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
