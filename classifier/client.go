package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"civicdispatch-be/models"
)

const (
	defaultServiceURL = "http://localhost:8000/predict"
	defaultTimeout    = 5000 * time.Millisecond

	fallbackConfidence = 0.35
)

// Result is the per-report classification decision. Produced once per
// submission and consumed once to stamp the issue; never persisted itself.
type Result struct {
	Priority     models.IssuePriority `json:"priority"`
	Confidence   float64              `json:"confidence"`
	Probs        map[string]float64   `json:"probs"`
	ManualReview bool                 `json:"manual_review"`
	Explain      map[string]any       `json:"explain,omitempty"`
}

// Client calls the external scoring service with a bounded timeout.
type Client struct {
	serviceURL string
	httpClient *http.Client
}

// NewClient reads ML_SERVICE_URL and ML_TIMEOUT_MS, falling back to defaults.
func NewClient() *Client {
	url := os.Getenv("ML_SERVICE_URL")
	if url == "" {
		url = defaultServiceURL
	}

	timeout := defaultTimeout
	if ms, err := strconv.Atoi(os.Getenv("ML_TIMEOUT_MS")); err == nil && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	return &Client{
		serviceURL: url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWith builds a client against an explicit endpoint, used by tests.
func NewClientWith(serviceURL string, timeout time.Duration) *Client {
	return &Client{
		serviceURL: serviceURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type scoreResponse struct {
	Priority string             `json:"priority"`
	Probs    map[string]float64 `json:"probs"`
	Explain  map[string]any     `json:"explain"`
}

// Classify sends category+description to the scoring service and returns the
// policy decision. It never returns an error: any failure (timeout, non-2xx,
// network, malformed body) degrades to the conservative fallback so an
// unclassifiable report lands above default priority instead of being dropped
// to normal.
func (c *Client) Classify(ctx context.Context, category, description string) Result {
	payload, err := json.Marshal(map[string]string{
		"category":    category,
		"description": description,
	})
	if err != nil {
		return fallbackResult(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(payload))
	if err != nil {
		return fallbackResult(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fallbackResult(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fallbackResult(fmt.Errorf("scoring service responded with status %d", resp.StatusCode))
	}

	var ml scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&ml); err != nil {
		return fallbackResult(err)
	}

	probs := map[string]float64{
		"urgent": ml.Probs["urgent"],
		"high":   ml.Probs["high"],
		"normal": ml.Probs["normal"],
	}

	result := Decide(category, probs)
	result.Explain = ml.Explain
	return result
}

// fallbackResult escalates to high with forced manual review, recording the
// failure cause in the explanation payload.
func fallbackResult(cause error) Result {
	return Result{
		Priority:     models.PriorityHigh,
		Confidence:   fallbackConfidence,
		Probs:        nil,
		ManualReview: true,
		Explain: map[string]any{
			"fallback": true,
			"error":    cause.Error(),
		},
	}
}
