// Package client implements the CLI's HTTP client against a running ftmd,
// grounded on original_source/src/client.rs's client_* functions: the same
// calls, the same "server not running" friendly error on a connection
// refusal, the same pattern of decoding a {message} body on non-2xx
// responses. Built on net/http.Client rather than a third-party HTTP
// client — nothing in the retrieval pack reaches for one over the standard
// library for outbound JSON calls.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ftm/internal/history"
)

// Client talks to one ftmd instance over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for the ftmd listening on port.
func New(port int) *Client {
	return &Client{
		baseURL: "http://127.0.0.1:" + strconv.Itoa(port),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ErrNotRunning is returned by any call when the connection itself is
// refused, mirroring client.rs's handle_connection_error's "Server not
// running. Start with 'ftm serve'" message.
var ErrNotRunning = fmt.Errorf("server not running; start it with 'ftm checkout <dir>'")

type messageBody struct {
	Message string `json:"message"`
}

// do sends req and, on a non-2xx response, turns its {message} body into a
// Go error, matching client.rs's check_response.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if isConnRefused(err) {
			return nil, ErrNotRunning
		}
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	var body messageBody
	data, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(data, &body) != nil || body.Message == "" {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return nil, fmt.Errorf("%s", body.Message)
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	for e := err; e != nil; {
		if oe, ok := e.(*net.OpError); ok {
			opErr = oe
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return opErr != nil
}

func (c *Client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsRunning reports whether ftmd answers /api/health at all, used by
// checkout/stop to decide whether a server already owns the port.
func (c *Client) IsRunning() bool {
	var health HealthResult
	return c.getJSON("/api/health", &health) == nil
}

// WaitHealthy polls /api/health until it answers or timeout elapses.
func (c *Client) WaitHealthy(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsRunning() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// WaitStopped polls /api/health until it stops answering or timeout
// elapses, used by `ftm stop` to confirm a clean shutdown.
func (c *Client) WaitStopped(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !c.IsRunning() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

type HealthResult struct {
	WatchDir string `json:"watch_dir,omitempty"`
}

func (c *Client) Health() (HealthResult, error) {
	var h HealthResult
	err := c.getJSON("/api/health", &h)
	return h, err
}

func (c *Client) Version() (string, error) {
	var v struct {
		Version string `json:"version"`
	}
	if err := c.getJSON("/api/version", &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

func (c *Client) Checkout(directory string) (string, error) {
	var msg messageBody
	err := c.postJSON("/api/checkout", map[string]string{"directory": directory}, &msg)
	return msg.Message, err
}

func (c *Client) Files(includeDeleted bool) ([]*history.FileNode, error) {
	path := "/api/files"
	if includeDeleted {
		path += "?include_deleted=true"
	}
	var nodes []*history.FileNode
	err := c.getJSON(path, &nodes)
	return nodes, err
}

// Entry is the client-side decoding of the slim wire entry httpapi emits —
// the CLI never needs mtime_nanos, so it is not represented here either.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	File      string    `json:"file"`
	Op        string    `json:"op"`
	Checksum  string    `json:"checksum,omitempty"`
	Size      *int64    `json:"size,omitempty"`
}

func (c *Client) History(file string) ([]Entry, error) {
	var entries []Entry
	err := c.getJSON("/api/history?file="+url.QueryEscape(file), &entries)
	return entries, err
}

func (c *Client) Restore(file, checksum string) (string, error) {
	var msg messageBody
	err := c.postJSON("/api/restore", map[string]string{"file": file, "checksum": checksum}, &msg)
	return msg.Message, err
}

type ScanResult struct {
	Created  int `json:"created"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
}

func (c *Client) Scan() (ScanResult, error) {
	var r ScanResult
	err := c.postJSON("/api/scan", nil, &r)
	return r, err
}

type CleanResult struct {
	EntriesTrimmed int   `json:"entries_trimmed"`
	BytesFreedTrim int64 `json:"bytes_freed_trim"`
	FilesRemoved   int   `json:"files_removed"`
	BytesRemoved   int64 `json:"bytes_removed"`
}

func (c *Client) Clean() (CleanResult, error) {
	var r CleanResult
	err := c.postJSON("/api/clean", nil, &r)
	return r, err
}

type StatsResult struct {
	History    int   `json:"history"`
	MaxHistory int   `json:"max_history"`
	Quota      int64 `json:"quota"`
	MaxQuota   int64 `json:"max_quota"`
}

func (c *Client) Stats() (StatsResult, error) {
	var r StatsResult
	err := c.getJSON("/api/stats", &r)
	return r, err
}

func (c *Client) ConfigGet(key string) (any, error) {
	var r struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	err := c.getJSON("/api/config?key="+url.QueryEscape(key), &r)
	return r.Value, err
}

func (c *Client) ConfigSet(key, value string) (string, error) {
	var msg messageBody
	err := c.postJSON("/api/config", map[string]string{"key": key, "value": value}, &msg)
	return msg.Message, err
}

type LogFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type LogsResult struct {
	LogDir string    `json:"log_dir"`
	Files  []LogFile `json:"files"`
}

func (c *Client) Logs() (LogsResult, error) {
	var r LogsResult
	err := c.getJSON("/api/logs", &r)
	return r, err
}

func (c *Client) Shutdown() error {
	return c.postJSON("/api/shutdown", nil, nil)
}
