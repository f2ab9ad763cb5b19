package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/sony/gobreaker/v2"
)

const maxErrorBody = 4 << 10

// BreakerSettings tunes the submission circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultBreakerSettings trips after five consecutive transient failures and
// probes again after thirty seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// HTTPClient talks to the ingest server over its JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	logger  logging.Logger
	breaker *gobreaker.CircuitBreaker[*api.Entry]
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the server at baseURL. Every request is
// bounded by timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, token TokenSource, bs BreakerSettings, logger logging.Logger) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if token == nil {
		token = StaticToken("")
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
		logger:  logger.With("module", "httpclient"),
	}

	c.breaker = gobreaker.NewCircuitBreaker[*api.Entry](gobreaker.Settings{
		Name:        "ingest",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn(context.Background(), "circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
		// Rejections and auth problems say nothing about server health.
		IsSuccessful: func(err error) bool {
			return err == nil || common.IsPermanent(err) || errors.Is(err, ErrUnauthorized) ||
				errors.Is(err, common.ErrorNotFound)
		},
	})

	return c, nil
}

// Submit posts req to the sync endpoint.
func (c *HTTPClient) Submit(ctx context.Context, req api.SyncRequest) (*api.Entry, error) {
	body, err := api.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return c.execute(func() (*api.Entry, error) {
		return c.do(ctx, http.MethodPost, api.SyncPath, body)
	})
}

// Get reads the canonical state of an entry. Unknown ids return
// common.ErrorNotFound.
func (c *HTTPClient) Get(ctx context.Context, clientUUID string) (*api.Entry, error) {
	return c.execute(func() (*api.Entry, error) {
		return c.do(ctx, http.MethodGet, api.EntryPath+url.PathEscape(clientUUID), nil)
	})
}

// Ping checks the plain HTTP liveness route. It bypasses the breaker.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+api.HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// BreakerState reports the breaker state ("closed", "half-open", "open").
func (c *HTTPClient) BreakerState() string {
	return c.breaker.State().String()
}

func (c *HTTPClient) execute(fn func() (*api.Entry, error)) (*api.Entry, error) {
	entry, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return entry, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*api.Entry, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", common.ErrTransient, err)
	}

	var out api.SyncResponse
	decodeErr := api.Unmarshal(raw, &out)

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if decodeErr != nil || !out.Success || out.Entry == nil {
			return nil, fmt.Errorf("%w: unexpected response body", common.ErrTransient)
		}
		return out.Entry, nil
	}

	if decodeErr != nil {
		out.Error = nil
	}
	return nil, c.mapError(resp.StatusCode, out.Error, raw)
}

// mapError turns a non-success response into a sentinel or RejectedError.
func (c *HTTPClient) mapError(status int, e *api.Error, raw []byte) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return common.ErrorNotFound
	}

	if e != nil && e.Kind == api.ErrorPermanent {
		return &RejectedError{Status: status, Code: e.Code, Message: e.Message, Fields: e.Fields}
	}

	switch status {
	case http.StatusBadRequest, http.StatusConflict, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		re := &RejectedError{Status: status, Code: api.CodeValidation}
		if e != nil {
			re.Code, re.Message, re.Fields = e.Code, e.Message, e.Fields
		} else {
			re.Message = snippet(raw)
		}
		return re
	}

	msg := snippet(raw)
	if e != nil {
		msg = e.Message
	}
	return fmt.Errorf("%w: server returned %d: %s", common.ErrTransient, status, msg)
}

func snippet(raw []byte) string {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return strings.TrimSpace(string(raw))
}
