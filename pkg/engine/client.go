// Package engine is the boundary to the external execution engine. The core
// never executes nodes itself: it submits published flow versions and
// consumes the task transition stream the engine produces.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowdeck/flowdeck/pkg/events"
	"github.com/flowdeck/flowdeck/pkg/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEventNotFound   = errors.New("event not found")
)

// SubmitRequest hands one flow version to the engine together with the
// session input payload.
type SubmitRequest struct {
	Flow  *models.Flow   `json:"flow"`
	Input map[string]any `json:"input,omitempty"`
}

// SubmitResult is the engine's acknowledgement of a submitted run.
type SubmitResult struct {
	SessionID  string    `json:"session_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Client talks to the execution engine.
type Client interface {
	// SubmitFlow sends a validated flow version to the engine and returns the
	// session the engine assigned to the run.
	SubmitFlow(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	// FetchSessionEvents returns the task transitions recorded so far for one
	// session, per-task ordered.
	FetchSessionEvents(ctx context.Context, sessionID string) ([]*events.TaskTransition, error)
	// GetEvent returns one transition by event id.
	GetEvent(ctx context.Context, eventID string) (*events.TaskTransition, error)
}

// HTTPClient implements Client against the engine's REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(logger *slog.Logger, baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("module", "engine"),
	}
}

func (c *HTTPClient) SubmitFlow(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode submit request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create submit request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("engine submit failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusCreated && response.StatusCode != http.StatusAccepted {
		return nil, c.statusError("submit", response)
	}

	var result SubmitResult
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}

	c.logger.Info("Submitted flow to engine",
		"flow_version_id", req.Flow.VersionID,
		"session_id", result.SessionID)

	return &result, nil
}

func (c *HTTPClient) FetchSessionEvents(ctx context.Context, sessionID string) ([]*events.TaskTransition, error) {
	url := fmt.Sprintf("%s/sessions/%s/events", c.baseURL, sessionID)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create events request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("engine events fetch failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}

	if response.StatusCode != http.StatusOK {
		return nil, c.statusError("events fetch", response)
	}

	var transitions []*events.TaskTransition
	if err := json.NewDecoder(response.Body).Decode(&transitions); err != nil {
		return nil, fmt.Errorf("failed to decode session events: %w", err)
	}

	return transitions, nil
}

func (c *HTTPClient) GetEvent(ctx context.Context, eventID string) (*events.TaskTransition, error) {
	url := fmt.Sprintf("%s/events/%s", c.baseURL, eventID)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create event request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("engine event fetch failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrEventNotFound)
	}

	if response.StatusCode != http.StatusOK {
		return nil, c.statusError("event fetch", response)
	}

	var transition events.TaskTransition
	if err := json.NewDecoder(response.Body).Decode(&transition); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	return &transition, nil
}

func (c *HTTPClient) statusError(op string, response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 512))

	return fmt.Errorf("engine %s returned %d: %s", op, response.StatusCode, string(body))
}
