package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxBodyBytes = 16 << 20

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx answer of the remote API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// Client issues GET requests against the flight API with the retry policy
// and the cooperative pacing the API's rate limit needs.
type Client struct {
	baseURL string
	headers map[string]string
	http    Doer
	timeout time.Duration
	policy  RetryPolicy
	paceMin time.Duration
	paceMax time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	rand    func() float64
	log     *zap.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(d Doer) ClientOption { return func(c *Client) { c.http = d } }

func WithRetryPolicy(p RetryPolicy) ClientOption { return func(c *Client) { c.policy = p } }

// WithSleep replaces the context-aware sleep used for backoff and pacing.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

// WithPace sets the randomized pause after each successful call.
func WithPace(lo, hi time.Duration) ClientOption {
	return func(c *Client) { c.paceMin, c.paceMax = lo, hi }
}

// WithTimeout bounds a single attempt.
func WithTimeout(d time.Duration) ClientOption { return func(c *Client) { c.timeout = d } }

func WithLogger(l *zap.Logger) ClientOption { return func(c *Client) { c.log = l } }

func NewClient(baseURL string, headers map[string]string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		http:    http.DefaultClient,
		timeout: 60 * time.Second,
		policy:  DefaultRetryPolicy(),
		paceMin: 300 * time.Millisecond,
		paceMax: 800 * time.Millisecond,
		sleep:   sleepCtx,
		rand:    rand.Float64,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs GET baseURL+path?query and returns the top-level "data"
// field of the JSON answer. A missing "data" field or a body that is not
// JSON is a successful, empty answer. When returnToken is set it is sent as
// the returningToken query parameter.
//
// Errors wrap ErrPermanent or ErrRetriesExhausted, or are the context's
// error; data is nil whenever err is set.
func (c *Client) Fetch(ctx context.Context, path string, query url.Values, returnToken string) (json.RawMessage, error) {
	q := url.Values{}
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	if returnToken != "" {
		q.Set("returningToken", returnToken)
	}
	u := c.baseURL + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	for attempt := 1; ; attempt++ {
		c.log.Debug("requesting", zap.Int("attempt", attempt), zap.String("path", path))
		data, outcome, err := c.attempt(ctx, u)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		d := c.policy.Next(attempt, outcome)
		switch d.State {
		case StateSuccess:
			if len(data) == 0 {
				c.log.Info("no data in response", zap.String("path", path))
			}
			c.pace(ctx)
			return data, nil
		case StatePermanentFailure:
			if outcome == OutcomeClientError {
				c.log.Warn("permanent error, not retrying", zap.String("path", path), zap.Error(err))
				return nil, fmt.Errorf("%w: %s: %v", ErrPermanent, path, err)
			}
			c.log.Warn("all retries failed", zap.String("path", path), zap.Int("attempts", attempt), zap.Error(err))
			return nil, fmt.Errorf("%w after %d attempts: %s: %v", ErrRetriesExhausted, attempt, path, err)
		default:
			c.log.Warn("request failed, backing off",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Stringer("outcome", outcome),
				zap.Duration("wait", d.Wait),
				zap.Error(err))
			if err := c.sleep(ctx, d.Wait); err != nil {
				return nil, err
			}
		}
	}
}

func (c *Client) attempt(ctx context.Context, u string) (json.RawMessage, Outcome, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, OutcomeClientError, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err), err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransportError(err), fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		se := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		return nil, classifyStatus(se), se
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.log.Warn("response is not valid JSON", zap.Error(err))
		return nil, OutcomeOK, nil
	}
	return envelope.Data, OutcomeOK, nil
}

func classifyStatus(se *StatusError) Outcome {
	switch {
	case se.Code == http.StatusTooManyRequests, strings.Contains(se.Body, "Invalid API key"):
		return OutcomeRateLimited
	case se.Code >= 500:
		return OutcomeServerError
	default:
		return OutcomeClientError
	}
}

func classifyTransportError(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeNetworkError
}

func (c *Client) pace(ctx context.Context) {
	if c.paceMax <= 0 {
		return
	}
	d := c.paceMin + time.Duration(c.rand()*float64(c.paceMax-c.paceMin))
	_ = c.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
