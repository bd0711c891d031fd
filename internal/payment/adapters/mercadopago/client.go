package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/windimenu/windi/internal/config"
	"github.com/windimenu/windi/internal/money"
	paymentdomain "github.com/windimenu/windi/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	Provider = "mercadopago"

	preferenceTimeout = 12 * time.Second
	paymentTimeout    = 15 * time.Second

	// defaultReturnPath is where the payer lands after checkout.
	defaultReturnPath = "/onboarding/checkout"
)

// Client talks to the Mercado Pago REST API.
type Client struct {
	accessToken string
	baseURL     string
	appURL      string
	webhookURL  string
	currency    string
	client      *http.Client
	log         *zap.Logger
	duration    metric.Float64Histogram

	preferenceTimeout time.Duration
	paymentTimeout    time.Duration
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	log = log.Named("payment.mercadopago")
	duration, err := otel.Meter("windi/payment.mercadopago").Float64Histogram(
		"windi.gateway.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Mercado Pago API round trips"),
	)
	if err != nil {
		log.Warn("gateway duration histogram unavailable", zap.Error(err))
	}
	return &Client{
		accessToken:       cfg.MercadoPago.AccessToken,
		baseURL:           cfg.MercadoPago.BaseURL,
		appURL:            cfg.BaseURL,
		webhookURL:        cfg.MercadoPago.WebhookURL,
		currency:          cfg.MercadoPago.Currency,
		client:            &http.Client{},
		log:               log,
		duration:          duration,
		preferenceTimeout: preferenceTimeout,
		paymentTimeout:    paymentTimeout,
	}
}

func NewGateway(c *Client) paymentdomain.Gateway {
	return c
}

func (c *Client) Provider() string { return Provider }

func (c *Client) Configured() bool {
	return strings.TrimSpace(c.accessToken) != ""
}

type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
	UnitPrice  float64 `json:"unit_price"`
}

type preferencePayer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type backURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

type preferencePayload struct {
	Items             []preferenceItem  `json:"items"`
	Payer             preferencePayer   `json:"payer"`
	Metadata          map[string]string `json:"metadata"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	BackURLs          backURLs          `json:"back_urls"`
	AutoReturn        string            `json:"auto_return"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CreatePreference registers a checkout preference and returns its redirect
// URL. Metadata ids are sent as strings so 64-bit ids survive the round trip.
func (c *Client) CreatePreference(ctx context.Context, req paymentdomain.PreferenceRequest) (*paymentdomain.Preference, error) {
	if !c.Configured() {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = c.currency
	}
	planCode := strings.ToUpper(strings.TrimSpace(req.PlanCode))
	if planCode == "" {
		planCode = "PLAN"
	}
	back := c.backURL(req.SubscriptionID.String())

	payload := preferencePayload{
		Items: []preferenceItem{{
			Title:      req.Title,
			Quantity:   1,
			CurrencyID: currency,
			UnitPrice:  money.Normalize(req.Amount).InexactFloat64(),
		}},
		Payer: preferencePayer{Email: req.PayerEmail, Name: req.PayerName},
		Metadata: map[string]string{
			"subscription_id": req.SubscriptionID.String(),
			"business_id":     req.BusinessID.String(),
			"plan_code":       planCode,
		},
		ExternalReference: req.ExternalReference,
		NotificationURL:   c.webhookURL,
		BackURLs: backURLs{
			Success: back("success"),
			Pending: back("pending"),
			Failure: back("failure"),
		},
		AutoReturn: "approved",
	}

	ctx, cancel := context.WithTimeout(ctx, c.preferenceTimeout)
	defer cancel()

	var out preferenceResponse
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", payload, &out); err != nil {
		return nil, err
	}

	checkoutURL := strings.TrimSpace(out.InitPoint)
	if checkoutURL == "" {
		checkoutURL = strings.TrimSpace(out.SandboxInitPoint)
	}
	if checkoutURL == "" {
		return nil, fmt.Errorf("%w: preference %q has no checkout url", paymentdomain.ErrGatewayFailed, out.ID)
	}

	return &paymentdomain.Preference{ID: out.ID, CheckoutURL: checkoutURL}, nil
}

type paymentResponse struct {
	ID                json.Number    `json:"id"`
	Status            string         `json:"status"`
	TransactionAmount float64        `json:"transaction_amount"`
	ExternalReference string         `json:"external_reference"`
	Metadata          map[string]any `json:"metadata"`
	Order             struct {
		ID json.Number `json:"id"`
	} `json:"order"`
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*paymentdomain.GatewayPayment, error) {
	if !c.Configured() {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, paymentdomain.ErrInvalidPaymentID
	}

	ctx, cancel := context.WithTimeout(ctx, c.paymentTimeout)
	defer cancel()

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &raw); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out paymentResponse
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode payment: %v", paymentdomain.ErrGatewayFailed, err)
	}

	id := out.ID.String()
	if id == "" {
		id = paymentID
	}
	return &paymentdomain.GatewayPayment{
		ID:                id,
		Status:            strings.ToLower(strings.TrimSpace(out.Status)),
		Amount:            money.FromFloat(out.TransactionAmount),
		ExternalReference: strings.TrimSpace(out.ExternalReference),
		SubscriptionID:    metadataID(out.Metadata["subscription_id"]),
		MerchantOrderID:   out.Order.ID.String(),
		Raw:               raw,
	}, nil
}

func metadataID(v any) snowflake.ID {
	if n, ok := v.(json.Number); ok {
		return paymentdomain.MetadataID(n.String())
	}
	return paymentdomain.MetadataID(v)
}

func (c *Client) backURL(subscriptionID string) func(status string) string {
	return func(status string) string {
		q := url.Values{}
		q.Set("status", status)
		q.Set("sub", subscriptionID)
		return c.appURL + defaultReturnPath + "?" + q.Encode()
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) (err error) {
	start := time.Now()
	defer func() { c.observe(ctx, method, start, err) }()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		req.Header.Set("X-Idempotency-Key", uuid.NewString())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s %s", paymentdomain.ErrGatewayTimeout, method, path)
		}
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 180))
		c.log.Warn("mercadopago request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayRejected, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %s %s", paymentdomain.ErrGatewayTimeout, method, path)
		}
		return fmt.Errorf("%w: decode response: %v", paymentdomain.ErrGatewayFailed, err)
	}
	return nil
}

func (c *Client) observe(ctx context.Context, method string, start time.Time, err error) {
	if c.duration == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, paymentdomain.ErrGatewayTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	c.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
