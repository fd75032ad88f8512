package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Remote is the distributed cache variant. It speaks the REST command
// protocol of hosted key/value stores (GET/SET/DEL paths, bearer token,
// JSON result envelope).
//
// Get fails soft: any transport failure is reported as ErrNotFound so
// caching stays best-effort. Set and Delete return their errors; callers
// log and continue.
type Remote struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewRemote creates a remote cache client.
func NewRemote(baseURL, token string) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Second},
		logger:  slog.Default().With("component", "remote-cache"),
	}
}

// restResult is the response envelope: {"result": ...} or {"error": "..."}.
type restResult struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Get returns the value for key. Never returns an error other than
// ErrNotFound; transport failures are logged and reported as misses.
func (r *Remote) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.command(ctx, "GET", key)
	if err != nil {
		r.logger.Warn("Remote cache get failed, treating as miss", "error", err)
		return nil, ErrNotFound
	}

	var value *string
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return nil, ErrNotFound
	}
	return []byte(*value), nil
}

// Set stores value under key with the given TTL.
func (r *Remote) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	path := fmt.Sprintf("SET/%s/%s?EX=%d",
		url.PathEscape(key), url.PathEscape(string(value)), seconds)
	_, err := r.command(ctx, path)
	return err
}

// Delete removes key.
func (r *Remote) Delete(ctx context.Context, key string) error {
	_, err := r.command(ctx, "DEL", key)
	return err
}

// Type identifies the variant.
func (r *Remote) Type() string { return "remote" }

// Len is unavailable for the remote store.
func (r *Remote) Len() int { return -1 }

// command issues a single REST command. Parts already containing a path
// (like SET above) are passed through; bare parts are escaped and joined.
func (r *Remote) command(ctx context.Context, parts ...string) (json.RawMessage, error) {
	segments := make([]string, len(parts))
	for i, p := range parts {
		if strings.ContainsAny(p, "/?") {
			segments[i] = p
		} else {
			segments[i] = url.PathEscape(p)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/"+strings.Join(segments, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("building cache request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cache transport: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading cache response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cache store returned status %d", resp.StatusCode)
	}

	var envelope restResult
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding cache response: %w", err)
	}
	if envelope.Error != "" {
		return nil, fmt.Errorf("cache store error: %s", envelope.Error)
	}
	return envelope.Result, nil
}
