package razorpay

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

	"github.com/sethvargo/go-retry"

	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

var (
	errKeyIDRequired  = errors.New("razorpay key id is required")
	errSecretRequired = errors.New("razorpay key secret is required")
)

// Client is a thin wrapper over the Razorpay Orders REST API. Transient
// failures are retried with exponential backoff; client errors are not.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	maxRetries    int
}

// Order is the subset of the gateway order resource the service consumes.
type Order struct {
	ID         string `json:"id"`
	AmountPaid int64  `json:"amount_paid"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
}

// OrderParams describes an order creation request. Amount is in the
// currency's minor unit.
type OrderParams struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// NewClient initializes the Razorpay client with the configured credentials.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}

	if logg != nil {
		logg.Info(ctx, "razorpay client initialized")
	}

	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		maxRetries:    cfg.MaxRetries,
	}, nil
}

// KeyID returns the public key id checkout clients embed.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// WebhookSecret returns the webhook signing secret.
func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// CreateOrder registers an order with the gateway and returns its id.
func (c *Client) CreateOrder(ctx context.Context, params OrderParams) (*Order, error) {
	if c == nil {
		return nil, errors.New("razorpay client not initialized")
	}
	if params.Amount <= 0 {
		return nil, errors.New("order amount must be positive")
	}
	if params.Currency == "" {
		return nil, errors.New("order currency is required")
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(500*time.Millisecond))

	var order *Order
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		created, reqErr := c.postOrder(ctx, body)
		if reqErr != nil {
			if isTransient(reqErr) {
				return retry.RetryableError(reqErr)
			}
			return reqErr
		}
		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Client) postOrder(ctx context.Context, body []byte) (*Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("razorpay decode order: %w", err)
	}
	if order.ID == "" {
		return nil, errors.New("razorpay order response missing id")
	}
	return &order, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("razorpay returned %d: %s", e.code, e.body)
	}
	return fmt.Sprintf("razorpay returned %d", e.code)
}

// isTransient reports whether the error class is worth another attempt.
// Gateway 4xx responses mean the request itself is bad and must not loop.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// url.Error wraps connection resets and refused dials.
	return strings.Contains(err.Error(), "connection")
}
