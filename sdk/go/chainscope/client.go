package chainscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Chat requests may run several tool iterations, so it is longer than a
// typical REST timeout.
const DefaultHTTPTimeout = 2 * time.Minute

// Job statuses reported by the server.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Client wraps the HTTP interactions with the ChainScope agent API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	apiKey string
}

// ChatRequest is the payload of a chat turn.
type ChatRequest struct {
	Message   string `json:"message"`
	ChainID   string `json:"chainId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// ToolCall describes one tool invocation made while answering.
type ToolCall struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// ChatResponse is the outcome of a chat turn.
type ChatResponse struct {
	Success    bool       `json:"success"`
	Response   string     `json:"response"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	Iterations int        `json:"iterations"`
	Category   string     `json:"category,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	ChainID    string     `json:"chainId"`
	SessionID  string     `json:"sessionId"`
	ErrorCode  string     `json:"errorCode,omitempty"`
}

// Tool is a public tool exposed by the agent.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Health reports server readiness.
type Health struct {
	Status     string    `json:"status"`
	AgentReady bool      `json:"agentReady"`
	Sessions   int       `json:"sessions"`
	Timestamp  time.Time `json:"timestamp"`
}

// JobRequest submits a chat turn for asynchronous execution. ID makes the
// submission idempotent when set.
type JobRequest struct {
	ID        string `json:"id,omitempty"`
	Message   string `json:"message"`
	ChainID   string `json:"chainId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// JobResult mirrors the analysis result stored on a finished job.
type JobResult struct {
	Success bool `json:"success"`
	Data    *struct {
		Response   string     `json:"response"`
		ToolCalls  []ToolCall `json:"toolCalls"`
		Iterations int        `json:"iterations"`
		Category   string     `json:"category,omitempty"`
	} `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Job is the server side view of an asynchronous chat turn.
type Job struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	Message     string     `json:"message"`
	ChainID     string     `json:"chainId,omitempty"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	LastError   string     `json:"lastError,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
	CreatedAt   int64      `json:"createdAt"`
	UpdatedAt   int64      `json:"updatedAt"`
}

// Done reports whether the job reached a terminal status.
func (j Job) Done() bool { return j.Status == JobSucceeded || j.Status == JobFailed }

// JobStats summarises jobs by status.
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ListJobsOptions filters ListJobs.
type ListJobsOptions struct {
	SessionID string
	Statuses  []string
	Limit     int
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("chainscope api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chainscope api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client. When httpClient is nil, a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAPIKey sets the key sent as a bearer token on every request.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// APIKey returns the configured key.
func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Health queries /health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

// Chat runs one conversation turn. A failed turn returns the decoded response
// together with an *APIError.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.Message == "" {
		return ChatResponse{}, errors.New("chainscope: message is required")
	}
	var out ChatResponse
	err := c.do(ctx, http.MethodPost, "/chat", nil, req, &out)
	return out, err
}

// Clear drops the conversation history of a session.
func (c *Client) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("chainscope: session id is required")
	}
	body := map[string]string{"sessionId": sessionID}
	return c.do(ctx, http.MethodPost, "/clear", nil, body, nil)
}

// Tools lists the public tools.
func (c *Client) Tools(ctx context.Context) ([]Tool, error) {
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, "/tools", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// SubmitJob queues a chat turn for background execution.
func (c *Client) SubmitJob(ctx context.Context, req JobRequest) (Job, error) {
	if req.Message == "" {
		return Job{}, errors.New("chainscope: message is required")
	}
	var out Job
	if err := c.do(ctx, http.MethodPost, "/jobs", nil, req, &out); err != nil {
		return Job{}, err
	}
	return out, nil
}

// GetJob fetches a job by identifier.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var out Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Job{}, err
	}
	return out, nil
}

// ListJobs returns recent jobs and the overall statistics.
func (c *Client) ListJobs(ctx context.Context, opts ListJobsOptions) ([]Job, JobStats, error) {
	query := url.Values{}
	if opts.SessionID != "" {
		query.Set("sessionId", opts.SessionID)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	for _, status := range opts.Statuses {
		if query.Has("status") {
			query.Set("status", query.Get("status")+","+status)
		} else {
			query.Set("status", status)
		}
	}
	var out struct {
		Jobs  []Job    `json:"jobs"`
		Stats JobStats `json:"stats"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs", query, nil, &out); err != nil {
		return nil, JobStats{}, err
	}
	return out.Jobs, out.Stats, nil
}

// WaitForJob polls until the job finishes or ctx is done.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		j, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if j.Done() {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return j, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	u := c.baseURL.ResolveReference(&url.URL{Path: path.Join(c.baseURL.Path, endpoint)})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if key := c.APIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out != nil && len(data) > 0 {
			_ = json.Unmarshal(data, out)
		}
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError reads either the error envelope or a failed chat response.
func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var payload struct {
		Error     string `json:"error"`
		Response  string `json:"response"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Code = payload.ErrorCode
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Response
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
