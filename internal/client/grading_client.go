package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/slabscan/api/internal/config"
	"github.com/slabscan/api/internal/model"
)

// Backend status values
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
)

// StatusChecker is the status-check collaborator consumed by the poller.
type StatusChecker interface {
	CheckStatus(ctx context.Context, cardID string, category model.Category) (*StatusPayload, error)
}

// ReportFetcher retrieves the full grading report for a card.
type ReportFetcher interface {
	GetReport(ctx context.Context, cardID string, category model.Category) (string, error)
}

// StatusPayload is the grading backend's answer to a status check.
type StatusPayload struct {
	Status       string `json:"status"`
	HasResult    bool   `json:"has_result"`
	IsProcessing bool   `json:"is_processing"`
	Progress     *int   `json:"progress,omitempty"`
	Error        string `json:"error,omitempty"`
	ResultURL    string `json:"result_url,omitempty"`
	Report       string `json:"report,omitempty"`
}

// IsComplete is the sole success condition.
func (p *StatusPayload) IsComplete() bool {
	return p.Status == StatusComplete && p.HasResult
}

// reportResponse is the body returned by the report endpoint
type reportResponse struct {
	CardID string `json:"card_id"`
	Report string `json:"report"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("grading API error (status %d): %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the grading backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// GradingClient talks to the card grading backend over HTTP.
type GradingClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewGradingClient creates a new grading backend client
func NewGradingClient(cfg *config.GradingConfig) *GradingClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GradingClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// CheckStatus asks the backend how far grading of a card has progressed
func (c *GradingClient) CheckStatus(ctx context.Context, cardID string, category model.Category) (*StatusPayload, error) {
	var result StatusPayload
	if err := c.get(ctx, cardEndpoint(cardID, category, "status"), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetReport fetches the raw grading report text
func (c *GradingClient) GetReport(ctx context.Context, cardID string, category model.Category) (string, error) {
	var result reportResponse
	if err := c.get(ctx, cardEndpoint(cardID, category, "report"), &result); err != nil {
		return "", err
	}
	if result.Report == "" {
		return "", fmt.Errorf("empty report for card %s", cardID)
	}
	return result.Report, nil
}

func cardEndpoint(cardID string, category model.Category, action string) string {
	return fmt.Sprintf("/api/%s/%s/%s", category.PathSegment(), url.PathEscape(cardID), action)
}

// get sends a GET request and parses JSON response
func (c *GradingClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *GradingClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Grading API] → %s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Grading API] ✗ %s %s: request failed: %v", req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Grading API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.Path)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Grading API] ✗ unmarshal error for %s %s: %v", req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has a backend to talk to
func (c *GradingClient) IsConfigured() bool {
	return c.baseURL != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
