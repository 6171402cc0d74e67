// Package clockclient talks to the attendance HTTP API on behalf of the
// desktop agent.
package clockclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	StatusIn  = "IN"
	StatusOut = "OUT"

	SourceManual      = "MANUAL"
	SourceIdleTimeout = "IDLE_TIMEOUT"
	SourceBeacon      = "BEACON"

	defaultTimeout       = 10 * time.Second
	defaultBeaconTimeout = 3 * time.Second
)

type Session struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	CheckIn       string  `json:"check_in"`
	CheckOut      *string `json:"check_out,omitempty"`
	CloseSource   string  `json:"close_source,omitempty"`
	Open          bool    `json:"open"`
	DurationHours float64 `json:"duration_hours"`
}

type Status struct {
	UserID  string   `json:"user_id"`
	Role    string   `json:"role"`
	Status  string   `json:"status"`
	Session *Session `json:"session,omitempty"`
}

func (s Status) IsIn() bool {
	return s.Status == StatusIn
}

type ClockOutResult struct {
	AlreadyOut bool     `json:"already_out"`
	Session    *Session `json:"session,omitempty"`
}

// APIError is a non-2xx answer carrying the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("attendance api: %d %s: %s", e.Status, e.Code, e.Message)
}

func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

type envelope struct {
	Ok    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	baseURL       string
	token         string
	http          *http.Client
	beaconTimeout time.Duration
	logger        *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBeaconTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.beaconTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.Named("clockclient")
		}
	}
}

// New builds a client for baseURL, e.g. "https://hr.example.com/api/v1".
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		http:          &http.Client{Timeout: defaultTimeout},
		beaconTimeout: defaultBeaconTimeout,
		logger:        zap.L().Named("clockclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/attendances/status", nil, &out)
	return out, err
}

func (c *Client) ClockIn(ctx context.Context) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/attendances/clock-in", nil, &out)
	return out, err
}

func (c *Client) ClockOut(ctx context.Context, source string) (ClockOutResult, error) {
	var out ClockOutResult
	err := c.do(ctx, http.MethodPost, "/attendances/clock-out", map[string]string{"source": source}, &out)
	return out, err
}

// Beacon fires one check-out at the combined endpoint and does not wait for
// it. The returned channel closes when the attempt ends; its outcome is only
// logged and it is never retried.
func (c *Client) Beacon(source string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), c.beaconTimeout)
		defer cancel()

		body := map[string]string{"type": "out", "source": source}
		if err := c.do(ctx, http.MethodPost, "/attendances/clock", body, nil); err != nil {
			c.logger.Debug("beacon not delivered", zap.String("source", source), zap.Error(err))
			return
		}
		c.logger.Debug("beacon delivered", zap.String("source", source))
	}()
	return done
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	if resp.StatusCode >= 300 || !env.Ok {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}
