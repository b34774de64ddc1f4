// Package gateway is the HTTP client for the external payment gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkout-service/internal/util"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures the gateway client
type Config struct {
	BaseURL        string
	KeyID          string
	KeySecret      string
	Timeout        time.Duration
	MaxRetries     int
	RequestsPerSec float64
}

// APIError is a non-2xx gateway response
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s %s", e.StatusCode, e.Code, e.Description)
}

// Transient reports whether a retry may succeed
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// RemoteIntent is a gateway-side order the client pays against
type RemoteIntent struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
	Status   string          `json:"status"`
	Raw      json.RawMessage `json:"-"`
}

// RemotePayment is the gateway's canonical payment record
type RemotePayment struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Method           string          `json:"method"`
	ErrorCode        string          `json:"error_code"`
	ErrorDescription string          `json:"error_description"`
	Raw              json.RawMessage `json:"-"`
}

// Settled reports whether the gateway considers the money collected
func (p *RemotePayment) Settled() bool {
	return p.Status == "captured" || p.Status == "authorized"
}

// RemoteRefund is a refund issued against a payment
type RemoteRefund struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"payment_id"`
	Amount    int64           `json:"amount"`
	Status    string          `json:"status"`
	Raw       json.RawMessage `json:"-"`
}

// Client talks to the gateway REST API with bounded timeouts and retries
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	backoff func() backoff.BackOff
}

// Option customises the client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithBackOff overrides the retry schedule
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) {
		c.backoff = fn
	}
}

// NewClient creates a gateway client
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 5),
		logger:  util.GetLogger().Named("gateway"),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyID is the public key clients use to open the checkout widget
func (c *Client) KeyID() string {
	return c.cfg.KeyID
}

// CreateRemoteIntent creates a gateway order for amount minor units
func (c *Client) CreateRemoteIntent(ctx context.Context, amount int64, currency, reference string) (*RemoteIntent, error) {
	body := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  reference,
	}
	var intent RemoteIntent
	raw, err := c.do(ctx, "create_intent", http.MethodPost, "/v1/orders", body, &intent, true)
	if err != nil {
		return nil, err
	}
	intent.Raw = raw
	return &intent, nil
}

// FetchRemotePayment loads the canonical payment record
func (c *Client) FetchRemotePayment(ctx context.Context, paymentRef string) (*RemotePayment, error) {
	var payment RemotePayment
	raw, err := c.do(ctx, "fetch_payment", http.MethodGet, "/v1/payments/"+url.PathEscape(paymentRef), nil, &payment, true)
	if err != nil {
		return nil, err
	}
	payment.Raw = raw
	return &payment, nil
}

// Refund returns amount minor units of a captured payment. It is sent once:
// a retry after a lost response could refund twice.
func (c *Client) Refund(ctx context.Context, paymentRef string, amount int64) (*RemoteRefund, error) {
	var refund RemoteRefund
	raw, err := c.do(ctx, "refund", http.MethodPost, "/v1/payments/"+url.PathEscape(paymentRef)+"/refund",
		map[string]interface{}{"amount": amount}, &refund, false)
	if err != nil {
		return nil, err
	}
	refund.Raw = raw
	return &refund, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}, retry bool) (json.RawMessage, error) {
	ctx, span := util.StartSpan(ctx, "Gateway."+operation)
	defer span.End()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
	}

	tries := uint(1)
	if retry {
		tries = uint(c.cfg.MaxRetries + 1)
	}

	start := time.Now()
	attempt := 0
	raw, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		data, err := c.send(ctx, method, path, payload)
		if err == nil {
			return data, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Transient() {
			return nil, backoff.Permanent(err)
		}
		c.logger.Warn("Gateway call failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return nil, err
	}, backoff.WithBackOff(c.backoff()), backoff.WithMaxTries(tries))

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	util.GatewayRequestLatency.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("gateway %s failed after %d attempt(s): %w", operation, attempt, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return raw, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		return nil, apiErr
	}
	return data, nil
}
