// Package backend talks to the storefront REST API for products, categories,
// and order creation. Without a base URL it serves an embedded demo catalog.
package backend

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Lakyn80/naramkova-moda/internal/domain"
)

const (
	defaultTimeout    = 10 * time.Second
	idempotencyHeader = "Idempotency-Key"
	tracerName        = "github.com/Lakyn80/naramkova-moda/internal/backend"
	maxErrorBody      = 4 << 10
	maxReceiptBody    = 1 << 20
)

// Client issues catalog and order calls against the backend API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
	tracer  trace.Tracer
	demo    *demoCatalog
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithAPIToken sends a bearer token on every request.
func WithAPIToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewClient constructs an API client. When baseURL is empty, the client serves the demo catalog.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.baseURL == "" {
		demo, err := loadDemoCatalog()
		if err != nil {
			return nil, err
		}
		c.demo = demo
		c.logger.Info("backend base URL not configured, serving demo catalog")
	}
	return c, nil
}

// Demo reports whether the client serves the embedded demo catalog.
func (c *Client) Demo() bool {
	return c.demo != nil
}

// ListProducts returns every product that carries an id.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if c.demo != nil {
		return c.demo.products(), nil
	}
	var payload []productPayload
	if err := c.getJSON(ctx, "backend.ListProducts", &payload, "products", ""); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(payload))
	for _, p := range payload {
		if product, ok := p.toProduct(); ok {
			products = append(products, product)
		}
	}
	return products, nil
}

// GetProduct fetches a single product.
func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, ErrNotFound
	}
	if c.demo != nil {
		return c.demo.product(id)
	}
	var payload productPayload
	if err := c.getJSON(ctx, "backend.GetProduct", &payload, "products", id); err != nil {
		return domain.Product{}, err
	}
	product, ok := payload.toProduct()
	if !ok {
		return domain.Product{}, ErrNotFound
	}
	return product, nil
}

// ListCategories returns the catalog categories.
func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if c.demo != nil {
		return c.demo.categoryList(), nil
	}
	var payload []categoryPayload
	if err := c.getJSON(ctx, "backend.ListCategories", &payload, "categories", ""); err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(payload))
	for _, p := range payload {
		if category, ok := p.toCategory(); ok {
			categories = append(categories, category)
		}
	}
	return categories, nil
}

// CreateOrder submits an order. A 400 or 409 answer yields *OrderRejectedError
// with the backend's message; any other failure wraps ErrBackendUnavailable.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (domain.OrderReceipt, error) {
	if c.demo != nil {
		return fakeOrderReceipt(req), nil
	}

	ctx, span := c.tracer.Start(ctx, "backend.CreateOrder", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("order.vs", req.VS), attribute.Int("order.items", len(req.Items)))

	endpoint, err := url.JoinPath(c.baseURL, "orders")
	if err != nil {
		return domain.OrderReceipt{}, recordError(span, unavailable("create order", err))
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.OrderReceipt{}, recordError(span, fmt.Errorf("backend: encode order: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.OrderReceipt{}, recordError(span, unavailable("create order", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		httpReq.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return domain.OrderReceipt{}, recordError(span, unavailable("create order", err))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload orderPayload
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr == nil {
			_ = json.Unmarshal(raw, &payload)
		}
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict {
			rejected := &OrderRejectedError{Status: resp.StatusCode, Message: payload.reason()}
			c.logger.Info("order rejected",
				zap.Int("status", resp.StatusCode),
				zap.String("vs", req.VS),
				zap.String("reason", rejected.Message),
			)
			span.SetStatus(codes.Error, "order rejected")
			return domain.OrderReceipt{}, rejected
		}
		return domain.OrderReceipt{}, recordError(span, unavailable(fmt.Sprintf("create order status %d", resp.StatusCode), readErr))
	}

	// Any 2xx means the order exists, receipt or not.
	var payload orderPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReceiptBody)).Decode(&payload); err != nil {
		c.logger.Warn("order created but receipt unreadable",
			zap.Int("status", resp.StatusCode),
			zap.String("vs", req.VS),
			zap.Error(err),
		)
		payload = orderPayload{}
	}

	receipt := domain.OrderReceipt{
		OrderID: string(payload.OrderID),
		VS:      string(payload.VS),
		Status:  strings.TrimSpace(payload.Status),
	}
	if receipt.VS == "" {
		receipt.VS = req.VS
	}
	return receipt, nil
}

func (c *Client) getJSON(ctx context.Context, op string, dst any, segments ...string) error {
	ctx, span := c.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	endpoint, err := url.JoinPath(c.baseURL, parts...)
	if err != nil {
		return recordError(span, unavailable(op, err))
	}
	if len(parts) == 1 {
		endpoint += "/"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return recordError(span, unavailable(op, err))
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return recordError(span, unavailable(op, err))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		return recordError(span, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return recordError(span, unavailable(fmt.Sprintf("%s status %d: %s", op, resp.StatusCode, drainError(resp.Body)), nil))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return recordError(span, unavailable(op, err))
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		c.logger.Warn("backend request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	c.logger.Debug("backend request", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}

func recordError(span trace.Span, err error) error {
	if !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
