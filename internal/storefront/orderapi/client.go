// Package orderapi is the storefront's client for the order-api service.
package orderapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/pkg/httpmiddleware"
	"github.com/xenking/storefront/pkg/idempotency"
)

// FallbackMessage is shown when order-api gives no error message.
const FallbackMessage = "Failed to place order. Please try again."

// ErrOrderNotFound is returned when order-api has no order with the id.
var ErrOrderNotFound = errors.New("order not found")

// APIError is a non-2xx order-api response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("order-api responded %d", e.Status)
	}
	return fmt.Sprintf("order-api responded %d: %s", e.Status, e.Message)
}

// PublicMessage returns the message to show a shopper for err: the
// order-api error text when there is one, FallbackMessage otherwise.
func PublicMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return FallbackMessage
}

// Config holds order-api connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// MethodsTTL bounds how long the payment method listing is cached.
	MethodsTTL time.Duration
}

// Client calls order-api over HTTP.
type Client struct {
	base       string
	http       *http.Client
	methodsTTL time.Duration

	group     singleflight.Group
	mu        sync.RWMutex
	methods   map[payment.Key]MethodInfo
	fetchedAt time.Time
	now       func() time.Time
}

// NewClient creates a Client. tp may be nil.
func NewClient(cfg Config, tp trace.TracerProvider) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MethodsTTL <= 0 {
		cfg.MethodsTTL = time.Minute
	}
	var opts []otelhttp.Option
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
		methodsTTL: cfg.MethodsTTL,
		now:        time.Now,
	}
}

// PlaceOrder submits an order. The response carries URL for redirect
// methods and OrderID for cash on delivery; which one is expected is the
// caller's decision.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResponse, error) {
	headers := http.Header{}
	if req.IdempotencyKey != "" {
		headers.Set(idempotency.Header, req.IdempotencyKey)
	}
	data, err := c.do(ctx, http.MethodPost, "/api/orders", encodePlaceOrder(req), headers)
	if err != nil {
		return nil, err
	}
	resp, err := decodePlaceOrder(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return resp, nil
}

// Order fetches an order by id.
func (c *Client) Order(ctx context.Context, id string) (*Order, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	o, err := decodeOrder(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return o, nil
}

// PaymentMethods returns display metadata keyed by method. Results are
// cached for MethodsTTL and concurrent misses share one request, which
// outlives any single caller's cancellation.
func (c *Client) PaymentMethods(ctx context.Context) (map[payment.Key]MethodInfo, error) {
	c.mu.RLock()
	if c.methods != nil && c.now().Sub(c.fetchedAt) < c.methodsTTL {
		m := c.methods
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("payment-methods", func() (any, error) {
		data, err := c.do(fetchCtx, http.MethodGet, "/api/payment-methods", nil, nil)
		if err != nil {
			return nil, err
		}
		m, err := decodeMethods(data)
		if err != nil {
			return nil, errors.Wrap(err, "decode payment methods")
		}
		c.mu.Lock()
		c.methods, c.fetchedAt = m, c.now()
		c.mu.Unlock()
		return m, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[payment.Key]MethodInfo), nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers http.Header) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	if id := httpmiddleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(httpmiddleware.RequestIDHeader, id)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: decodeErrorMessage(data)}
	}
	return data, nil
}
