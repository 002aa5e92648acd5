// Package gateway calls the crypto payment gateway to open deposit invoices
// and submit payouts.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Golden-Age-Club/server/internal/config"
	"github.com/Golden-Age-Club/server/internal/signature"
	"github.com/shopspring/decimal"
)

const (
	codeSuccess     = 10000
	maxResponseBody = 1 << 20
)

var (
	ErrGatewayRejected = errors.New("gateway rejected request")
	errAppIDRequired   = errors.New("gateway app id is required")
	errSecretRequired  = errors.New("gateway app secret is required")
)

type InvoiceRequest struct {
	MerchantOrderID string
	Amount          decimal.Decimal
	Currency        string
	ProductName     string
	ReturnURL       string
}

type Invoice struct {
	OrderID        string
	PaymentURL     string
	PaymentAddress string
}

type PayoutRequest struct {
	MerchantOrderID string
	Address         string
	Amount          decimal.Decimal
	Currency        string
}

type Payout struct {
	OrderID string
	Status  string
}

// Gateway is the outbound half of the payment integration.
type Gateway interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error)
}

type Client struct {
	baseURL   string
	appID     string
	appSecret string
	notifyURL string
	http      *http.Client
	now       func() time.Time
}

var _ Gateway = (*Client)(nil)

// New returns the live client, or the local mock when cfg selects it.
func New(cfg config.GatewayConfig) (Gateway, error) {
	if cfg.Mock() {
		return Mock{}, nil
	}

	return NewClient(cfg, nil)
}

func NewClient(cfg config.GatewayConfig, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, errAppIDRequired
	}
	if strings.TrimSpace(cfg.AppSecret) == "" {
		return nil, errSecretRequired
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		notifyURL: cfg.NotifyURL,
		http:      httpClient,
		now:       time.Now,
	}, nil
}

func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	productName := req.ProductName
	if productName == "" {
		productName = "Casino Deposit"
	}

	payload := map[string]any{
		"app_id":            c.appID,
		"merchant_order_id": req.MerchantOrderID,
		"order_amount":      req.Amount.StringFixed(2),
		"order_currency":    req.Currency,
		"product_name":      productName,
		"product_price":     req.Amount.StringFixed(2),
	}
	if c.notifyURL != "" {
		payload["notify_url"] = c.notifyURL
	}
	if req.ReturnURL != "" {
		payload["return_url"] = req.ReturnURL
	}

	data, err := c.post(ctx, "/bill/create", payload)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	return &Invoice{
		OrderID:        firstString(data, "order_id", "bill_id"),
		PaymentURL:     firstString(data, "payment_url", "pay_url", "invoice_url"),
		PaymentAddress: firstString(data, "crypto_address", "address"),
	}, nil
}

func (c *Client) CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	payload := map[string]any{
		"app_id":            c.appID,
		"merchant_order_id": req.MerchantOrderID,
		"withdraw_address":  req.Address,
		"withdraw_amount":   req.Amount.StringFixed(2),
		"withdraw_currency": req.Currency,
	}
	if c.notifyURL != "" {
		payload["notify_url"] = c.notifyURL
	}

	data, err := c.post(ctx, "/withdraw/create", payload)
	if err != nil {
		return nil, fmt.Errorf("create payout: %w", err)
	}

	return &Payout{
		OrderID: firstString(data, "order_id", "withdraw_id"),
		Status:  firstString(data, "status"),
	}, nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Appid", c.appID)
	req.Header.Set("Timestamp", ts)
	req.Header.Set("Sign", signature.GatewaySign(payload, ts, c.appSecret))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	var env envelope
	err = json.Unmarshal(raw, &env)
	if err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if env.Code != codeSuccess {
		return nil, fmt.Errorf("%w: code %d: %s", ErrGatewayRejected, env.Code, env.Msg)
	}

	data := map[string]any{}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		err = json.Unmarshal(env.Data, &data)
		if err != nil {
			return nil, fmt.Errorf("decode response data: %w", err)
		}
	}

	return data, nil
}

func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	return ""
}
