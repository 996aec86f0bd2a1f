package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"caseflow.app/automation/internal/model"
)

const defaultRequestTimeout = 30 * time.Second

// Client is a JSON-over-HTTP Gateway implementation talking to the workflow
// execution engine service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

type startRequest struct {
	ExecutionPlan json.RawMessage `json:"execution_plan"`
	Payload       map[string]any  `json:"payload"`
	TriggerType   string          `json:"trigger_type"`
}

type startResponse struct {
	RunID string `json:"run_id"`
}

func (c *Client) Start(ctx context.Context, params StartParams) (string, error) {
	body, err := json.Marshal(startRequest{
		ExecutionPlan: params.Plan,
		Payload:       params.Payload,
		TriggerType:   params.TriggerType,
	})
	if err != nil {
		return "", fmt.Errorf("encoding start request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/workflows/%s/runs", c.baseURL, params.WorkflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building start request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("starting workflow run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("starting workflow run: engine returned %d: %s", resp.StatusCode, readError(resp.Body))
	}

	var decoded startResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding start response: %w", err)
	}
	if decoded.RunID == "" {
		return "", fmt.Errorf("engine returned empty run id")
	}

	slog.DebugContext(ctx, "workflow run started",
		"workflow_id", params.WorkflowID,
		"run_id", decoded.RunID)

	return decoded.RunID, nil
}

func (c *Client) CurrentDefinition(ctx context.Context, workflowID uuid.UUID) (model.ExecutionPlan, error) {
	url := fmt.Sprintf("%s/v1/workflows/%s/definition", c.baseURL, workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building definition request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolving workflow definition: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoDefinition
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("resolving workflow definition: engine returned %d: %s", resp.StatusCode, readError(resp.Body))
	}

	plan, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading definition response: %w", err)
	}
	if len(plan) == 0 {
		return nil, ErrNoDefinition
	}

	return model.ExecutionPlan(plan), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func readError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil || len(body) == 0 {
		return "<no body>"
	}
	return string(body)
}
