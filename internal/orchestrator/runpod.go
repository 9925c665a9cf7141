package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RunPodClient submits jobs to a RunPod serverless endpoint.
type RunPodClient struct {
	baseURL    string
	endpointID string
	apiKey     string
	httpClient *http.Client
}

// NewRunPodClient returns a client for the given endpoint. baseURL defaults
// to the public RunPod API when empty.
func NewRunPodClient(baseURL, endpointID, apiKey string, timeout time.Duration) *RunPodClient {
	if baseURL == "" {
		baseURL = "https://api.runpod.ai"
	}
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &RunPodClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpointID: endpointID,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type runpodRunRequest struct {
	Input *JobPayload `json:"input"`
}

type runpodRunResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SubmitJob implements JobSubmitter. It posts the payload to the endpoint's
// /run route and returns the asynchronous job id.
func (c *RunPodClient) SubmitJob(ctx context.Context, payload *JobPayload) (string, error) {
	body, err := json.Marshal(runpodRunRequest{Input: payload})
	if err != nil {
		return "", fmt.Errorf("encode job payload: %w", err)
	}

	url := fmt.Sprintf("%s/v2/%s/run", c.baseURL, c.endpointID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create run request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("provider rejected job: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var run runpodRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	if run.ID == "" {
		return "", fmt.Errorf("provider response missing job id")
	}
	return run.ID, nil
}
