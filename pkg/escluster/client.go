// Package escluster is a thin HTTP client for an Elasticsearch-class
// search/index cluster: search with routing, bulk writes with per-item
// status, and index existence checks.
package escluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Client represents a cluster API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	config     ClientConfig
}

// ClientConfig holds configuration for the cluster client.
type ClientConfig struct {
	URL       string
	Username  string
	Password  string
	VerifySSL bool
	Timeout   time.Duration
}

// NewClient creates a new cluster API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("cluster URL is required")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		cfg.URL = "https://" + cfg.URL
		log.Debug().Str("url", cfg.URL).Msg("No protocol specified in cluster URL, defaulting to HTTPS")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	transport := &http.Transport{}
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		config: cfg,
	}, nil
}

// Search executes a query body against the given index patterns. Routing, when
// non-empty, is passed through as the routing query parameter.
func (c *Client) Search(ctx context.Context, indices []string, routing string, body []byte) (*SearchResponse, error) {
	target := "_all"
	if len(indices) > 0 {
		target = strings.Join(indices, ",")
	}

	endpoint := fmt.Sprintf("%s/%s/_search", c.baseURL, url.PathEscape(target))
	if routing != "" {
		endpoint += "?routing=" + url.QueryEscape(routing)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	var parsed SearchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	parsed.Raw = raw
	return &parsed, nil
}

// Bulk submits a mixed stream of index and delete requests and returns the
// per-item results.
func (c *Client) Bulk(ctx context.Context, items []BulkItem) (*BulkResponse, error) {
	if len(items) == 0 {
		return &BulkResponse{}, nil
	}

	var buf bytes.Buffer
	for _, item := range items {
		meta, err := item.metaLine()
		if err != nil {
			return nil, err
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		if item.OpType == OpIndex {
			doc := item.Doc
			if doc == nil {
				doc = []byte("{}")
			}
			buf.Write(doc)
			buf.WriteByte('\n')
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/_bulk", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	c.applyAuth(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulk request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bulk response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	var parsed BulkResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	return &parsed, nil
}

// IndexExists reports whether the given index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/"+url.PathEscape(index), nil)
	if err != nil {
		return false, err
	}
	c.applyAuth(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("index exists request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &StatusError{Status: resp.StatusCode}
	}
}

// CreateIndex creates an index with an optional mapping body.
func (c *Client) CreateIndex(ctx context.Context, index string, mapping []byte) error {
	var body io.Reader
	if len(mapping) > 0 {
		body = bytes.NewReader(mapping)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+url.PathEscape(index), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create index request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}
	return nil
}

// applyAuth sets basic auth plus the security-context headers derived from
// the request context.
func (c *Client) applyAuth(ctx context.Context, req *http.Request) {
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	switch sc := securityFrom(ctx); sc.mode {
	case modeInjected:
		req.Header.Set(headerInjectedRoles, sc.monitorID+"|"+strings.Join(sc.roles, ","))
	case modeStashed:
		req.Header.Set(headerSystemRequest, "true")
	}
}

// StatusError is a non-2xx cluster response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cluster returned status %d", e.Status)
	}
	return fmt.Sprintf("cluster returned status %d: %s", e.Status, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, status int) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == status
	}
	return false
}
