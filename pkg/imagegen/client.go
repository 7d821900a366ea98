package imagegen

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

// PanelRequest describes a single panel render.
type PanelRequest struct {
	Prompt string `json:"prompt"`
	Seed   int64  `json:"seed"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Client talks to the image generation provider over HTTP. Transient
// failures are retried with exponential backoff; client errors are not.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	width      int
	height     int
	logg       *logger.Logger
}

// NewClient builds an image generation client from configuration.
func NewClient(cfg config.ImageGenConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("image generation base url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	width := cfg.PanelWidth
	if width <= 0 {
		width = 512
	}
	height := cfg.PanelHeight
	if height <= 0 {
		height = 512
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxRetries: cfg.MaxRetries,
		width:      width,
		height:     height,
		logg:       logg,
	}, nil
}

// PanelSize reports the configured render dimensions.
func (c *Client) PanelSize() (width, height int) {
	return c.width, c.height
}

// GeneratePanel renders one panel image and returns the PNG bytes.
func (c *Client) GeneratePanel(ctx context.Context, prompt string, seed int64) ([]byte, error) {
	if c == nil {
		return nil, errors.New("imagegen client not initialized")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	payload, err := json.Marshal(PanelRequest{
		Prompt: prompt,
		Seed:   seed,
		Width:  c.width,
		Height: c.height,
	})
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(500*time.Millisecond))

	var image []byte
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		data, reqErr := c.render(ctx, payload)
		if reqErr != nil {
			if isTransient(reqErr) {
				if c.logg != nil {
					c.logg.Warn(ctx, "panel render failed, retrying: "+reqErr.Error())
				}
				return retry.RetryableError(reqErr)
			}
			return reqErr
		}
		image = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("image provider returned %d: %s", e.code, e.body)
	}
	return fmt.Sprintf("image provider returned %d", e.code)
}

func (c *Client) render(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("image provider returned empty body")
	}
	return data, nil
}

// isTransient reports whether the error class is worth another attempt.
// Provider 4xx responses, rate limits included, mean the request must not
// loop; only server errors and connection failures retry.
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
