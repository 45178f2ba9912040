// Package gateway talks to the hosted payment gateway (Flutterwave v3 API).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultBaseURL        = "https://api.flutterwave.com/v3"
	DefaultCurrency       = "NGN"
	DefaultPaymentOptions = "card,banktransfer,ussd,mobilemoneyghana"

	maxResponseBytes = 1 << 20
)

// Config holds gateway credentials and endpoints.
type Config struct {
	BaseURL    string
	PublicKey  string
	SecretKey  string
	SecretHash string
	Currency   string
	Timeout    time.Duration
}

// Client performs create and verify calls.
type Client struct {
	cfg        Config
	httpClient *http.Client
	validator  *validator.Validate
	logger     *slog.Logger
}

// NewClient constructs a new client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.SecretKey == "" {
		logger.Warn("payment gateway secret key is not configured")
	}
	if cfg.PublicKey == "" {
		logger.Warn("payment gateway public key is not configured")
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		validator:  validator.New(),
		logger:     logger,
	}
}

// Currency is the settlement currency sent with new transactions.
func (c *Client) Currency() string {
	return c.cfg.Currency
}

// SecretHash is the shared secret used to sign webhooks.
func (c *Client) SecretHash() string {
	return c.cfg.SecretHash
}

// CreatePayment opens a hosted checkout and returns the URL to send the payer to.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Checkout, error) {
	if c.cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if req.Currency == "" {
		req.Currency = c.cfg.Currency
	}
	if req.PaymentOptions == "" {
		req.PaymentOptions = DefaultPaymentOptions
	}
	if err := c.validator.Struct(req); err != nil {
		return nil, fmt.Errorf("gateway: invalid payment request: %w", err)
	}
	if !req.Amount.IsPositive() {
		return nil, errors.New("gateway: invalid payment request: amount must be positive")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode payment request: %w", err)
	}
	status, env, err := c.do(ctx, http.MethodPost, "/payments", body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("payment initialization response",
		slog.Int("status_code", status),
		slog.String("status", env.Status),
		slog.Int64("invoice_id", req.Meta.InvoiceID))

	if status >= 300 || env.Status != "success" {
		apiErr := &APIError{StatusCode: status, Message: env.errorMessage("Failed to initialize payment")}
		c.logger.Error("payment initialization failed",
			slog.Int("status_code", status),
			slog.String("response", string(env.Data)),
			slog.Int64("invoice_id", req.Meta.InvoiceID),
			slog.String("tx_ref", req.TxRef))
		return nil, apiErr
	}
	var data struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Link == "" {
		return nil, &APIError{StatusCode: status, Message: "Failed to initialize payment"}
	}
	return &Checkout{PaymentURL: data.Link, TransactionReference: req.TxRef}, nil
}

// VerifyTransaction fetches the authoritative state of a transaction.
// Declined charges are returned without error; callers check Successful.
func (c *Client) VerifyTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	if c.cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, errors.New("gateway: transaction id required")
	}
	status, env, err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(transactionID)+"/verify", nil)
	if err != nil {
		return nil, err
	}
	if status >= 300 || env.Status != "success" {
		c.logger.Error("payment verification failed",
			slog.String("transaction_id", transactionID),
			slog.Int("status_code", status),
			slog.String("message", env.Message))
		return nil, &APIError{StatusCode: status, Message: env.errorMessage("Payment verification failed")}
	}
	var tx Transaction
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return nil, fmt.Errorf("gateway: decode transaction: %w", err)
	}
	if tx.ID == "" {
		tx.ID = FlexID(transactionID)
	}
	return &tx, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, envelope{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return 0, envelope{}, fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return 0, envelope{}, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return 0, envelope{}, fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return 0, envelope{}, fmt.Errorf("gateway: read response: %w", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return resp.StatusCode, envelope{}, &APIError{StatusCode: resp.StatusCode, Message: "unexpected response from payment gateway"}
		}
	}
	return resp.StatusCode, env, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
