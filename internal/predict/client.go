package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mixh8/Truth-Bench/internal/model"
)

// Client calls the oracle's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an oracle client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type marketInput struct {
	Ticker   string `json:"ticker"`
	Title    string `json:"title"`
	YesPrice int    `json:"yes_price"`
}

type predictRequest struct {
	Model   string        `json:"model"`
	Markets []marketInput `json:"markets"`
}

type predictResponse struct {
	Predictions []model.Prediction `json:"predictions"`
}

// Predict posts the batch to /api/predict and returns validated predictions.
func (c *Client) Predict(ctx context.Context, modelID string, markets []model.Market) ([]model.Prediction, error) {
	if len(markets) == 0 {
		return nil, nil
	}

	reqBody := predictRequest{Model: modelID, Markets: make([]marketInput, 0, len(markets))}
	for _, m := range markets {
		reqBody.Markets = append(reqBody.Markets, marketInput{Ticker: m.Ticker, Title: m.Title, YesPrice: m.YesPrice})
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/predict", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("predict %s: status %d: %s", modelID, resp.StatusCode, model.Snippet(string(body), 200))
	}

	var out predictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	preds := Sanitize(out.Predictions, markets, c.logger)
	c.logger.Debug("predictions received", "model", modelID, "requested", len(markets), "returned", len(preds))
	return preds, nil
}
