// Package paymentgw talks to the hosted checkout gateway.
package paymentgw

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Gateway = (*Client)(nil)

// Config holds gateway connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// StatusError is returned for non-2xx gateway responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.Code, e.Body)
}

// Client creates hosted checkout sessions over HTTP.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewClient returns a gateway Client. tp may be nil.
func NewClient(cfg Config, tp trace.TracerProvider) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	var opts []otelhttp.Option
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}
}

// CreateSession opens a hosted checkout session for an order.
func (c *Client) CreateSession(ctx context.Context, req order.SessionRequest) (*order.Session, error) {
	body := encodeSessionRequest(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	// The gateway deduplicates on this header, so a retried create cannot
	// open two sessions for one order.
	httpReq.Header.Set("Idempotency-Key", req.OrderID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	if sess.ID == "" || sess.URL == "" {
		return nil, errors.New("incomplete session in gateway response")
	}
	return sess, nil
}

func encodeSessionRequest(req order.SessionRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(req.OrderID)
	e.FieldStart("method")
	e.Str(string(req.Method))
	e.FieldStart("amount")
	e.Str(req.Amount.StringFixed(2))
	e.FieldStart("currency")
	e.Str(req.Currency)
	e.FieldStart("customerEmail")
	e.Str(req.Email)
	e.FieldStart("successUrl")
	e.Str(req.SuccessURL)
	e.FieldStart("cancelUrl")
	e.Str(req.CancelURL)
	e.ObjEnd()
	return e.Bytes()
}

func decodeSession(data []byte) (*order.Session, error) {
	var s order.Session
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			s.ID = v
			return err
		case "url":
			v, err := d.Str()
			s.URL = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}
