package paymentgateway

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

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/form"

	gatewaytypes "github.com/frahmantamala/reservation-payments/internal/core/datamodel/paymentgateway"
)

const (
	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 1 << 20
)

type Config struct {
	BaseURL    string
	SecretKey  string
	APIVersion string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to a Stripe-compatible REST API. Every call is a single
// synchronous exchange; nothing is retried here.
type Client struct {
	baseURL    string
	secretKey  string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger

	newIdempotencyKey func() string
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	apiVersion := config.APIVersion
	if apiVersion == "" {
		apiVersion = stripe.APIVersion
	}

	return &Client{
		baseURL:           strings.TrimRight(config.BaseURL, "/"),
		secretKey:         config.SecretKey,
		apiVersion:        apiVersion,
		httpClient:        httpClient,
		logger:            logger,
		newIdempotencyKey: uuid.NewString,
	}
}

// Request performs one authenticated exchange. params, when non-nil, is a
// struct carrying `form` tags and is sent form-encoded. The decoded body is
// returned raw on success; failures are always *gatewaytypes.Error.
func (c *Client) Request(ctx context.Context, method, path string, params interface{}) (json.RawMessage, error) {
	var body io.Reader
	if params != nil {
		values := &form.Values{}
		form.AppendTo(values, params)
		body = strings.NewReader(values.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &gatewaytypes.Error{Kind: gatewaytypes.ErrorKindTransport, Message: "failed to build request", Cause: err}
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Stripe-Version", c.apiVersion)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if method == http.MethodPost {
		httpReq.Header.Set("Idempotency-Key", c.idempotencyKey(params))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("gateway request failed",
			"method", method,
			"path", path,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return nil, &gatewaytypes.Error{Kind: gatewaytypes.ErrorKindTransport, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &gatewaytypes.Error{Kind: gatewaytypes.ErrorKindTransport, Message: "failed to read response", Cause: err}
	}

	c.logger.Debug("gateway response",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, applicationError(resp.StatusCode, raw)
	}

	if !json.Valid(raw) {
		return nil, &gatewaytypes.Error{
			Kind:       gatewaytypes.ErrorKindTransport,
			StatusCode: resp.StatusCode,
			Message:    "gateway returned a non-JSON body",
		}
	}

	return raw, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*gatewaytypes.Result, error) {
	raw, err := c.Request(ctx, http.MethodPost, "/payment_intents", params)
	if err != nil {
		return nil, err
	}
	return decodeIntent(raw)
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*gatewaytypes.Result, error) {
	raw, err := c.Request(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeIntent(raw)
}

func (c *Client) CapturePaymentIntent(ctx context.Context, id string) (*gatewaytypes.Result, error) {
	raw, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/payment_intents/%s/capture", url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	return decodeIntent(raw)
}

func (c *Client) CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*gatewaytypes.Result, error) {
	raw, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/payment_intents/%s/cancel", url.PathEscape(id)), params)
	if err != nil {
		return nil, err
	}
	return decodeIntent(raw)
}

func (c *Client) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*gatewaytypes.Result, error) {
	raw, err := c.Request(ctx, http.MethodPost, "/refunds", params)
	if err != nil {
		return nil, err
	}

	var refund stripe.Refund
	if err := json.Unmarshal(raw, &refund); err != nil {
		return nil, &gatewaytypes.Error{Kind: gatewaytypes.ErrorKindTransport, Message: "malformed refund", Cause: err}
	}

	return &gatewaytypes.Result{
		Object:   "refund",
		ID:       refund.ID,
		Status:   string(refund.Status),
		Amount:   refund.Amount,
		Currency: string(refund.Currency),
		Raw:      raw,
	}, nil
}

func (c *Client) idempotencyKey(params interface{}) string {
	if container, ok := params.(stripe.ParamsContainer); ok {
		if p := container.GetParams(); p != nil && p.IdempotencyKey != nil && *p.IdempotencyKey != "" {
			return *p.IdempotencyKey
		}
	}
	return c.newIdempotencyKey()
}

func decodeIntent(raw json.RawMessage) (*gatewaytypes.Result, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, &gatewaytypes.Error{Kind: gatewaytypes.ErrorKindTransport, Message: "malformed payment intent", Cause: err}
	}

	return &gatewaytypes.Result{
		Object:       "payment_intent",
		ID:           intent.ID,
		Status:       string(intent.Status),
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Raw:          raw,
	}, nil
}

func applicationError(statusCode int, raw []byte) *gatewaytypes.Error {
	gwErr := &gatewaytypes.Error{
		Kind:       gatewaytypes.ErrorKindApplication,
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
	}

	var envelope gatewaytypes.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Error.Message != "" {
			gwErr.Message = envelope.Error.Message
		}
		gwErr.Code = envelope.Error.Code
	}

	return gwErr
}
