package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"minutes/internal/pipeline"
	"minutes/internal/report"
	"minutes/internal/services"
	"minutes/internal/tasks"
)

// Error is a non-2xx answer from the daemon. 400 and 404 answers match
// services.ErrValidation and services.ErrNotFound.
type Error struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("api: http %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusServiceUnavailable:
		return services.ErrConfiguration
	}
	return nil
}

// Client talks to a running minutesd.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// NewClient targets addr, either a host:port bind address or a full URL.
func NewClient(addr string, opts ...ClientOption) *Client {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health pings the daemon.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, "", &resp)
	return resp, err
}

// Submit asks the daemon to analyze a recording it can read from disk.
func (c *Client) Submit(ctx context.Context, audioPath string, opts pipeline.Options) (SubmitResponse, error) {
	var resp SubmitResponse
	body, err := json.Marshal(SubmitRequest{Path: audioPath, Options: opts})
	if err != nil {
		return resp, fmt.Errorf("api: encode submit: %w", err)
	}
	err = c.do(ctx, http.MethodPost, "/api/tasks", bytes.NewReader(body), "application/json", &resp)
	return resp, err
}

// Upload streams a local recording to the daemon and submits it.
func (c *Client) Upload(ctx context.Context, audioPath string, opts pipeline.Options) (SubmitResponse, error) {
	var resp SubmitResponse
	file, err := os.Open(audioPath)
	if err != nil {
		return resp, services.Wrap(services.ErrValidation, "", "upload", "open recording", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, file, filepath.Base(audioPath), opts))
	}()
	err = c.do(ctx, http.MethodPost, "/api/uploads", pr, form.FormDataContentType(), &resp)
	_ = pr.Close()
	return resp, err
}

func writeUploadForm(form *multipart.Writer, src io.Reader, name string, opts pipeline.Options) error {
	fields := map[string]string{
		"enable_emotion": strconv.FormatBool(opts.EnableEmotion),
		"enable_context": strconv.FormatBool(opts.EnableContext),
	}
	if opts.NumSpeakers > 0 {
		fields["num_speakers"] = strconv.Itoa(opts.NumSpeakers)
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return form.Close()
}

// Task fetches one task.
func (c *Client) Task(ctx context.Context, id string) (tasks.Task, error) {
	var task tasks.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+id, nil, "", &task)
	return task, err
}

// Tasks lists every known task.
func (c *Client) Tasks(ctx context.Context) ([]tasks.Task, error) {
	var resp TaskListResponse
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// Result fetches the stored report of a completed task.
func (c *Client) Result(ctx context.Context, id string) (*report.MeetingReport, error) {
	var rep report.MeetingReport
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+id+"/result", nil, "", &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Cleanup drops finished tasks older than maxAge. Zero uses the daemon's
// configured retention.
func (c *Client) Cleanup(ctx context.Context, maxAge time.Duration) (tasks.CleanupResult, error) {
	var resp tasks.CleanupResult
	body, err := json.Marshal(CleanupRequest{MaxAgeHours: maxAge.Hours()})
	if err != nil {
		return resp, fmt.Errorf("api: encode cleanup: %w", err)
	}
	err = c.do(ctx, http.MethodPost, "/api/tasks/cleanup", bytes.NewReader(body), "application/json", &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "", "api request", "daemon address not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: new request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w (is minutesd running?)", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("api: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var decoded ErrorResponse
		if json.Unmarshal(payload, &decoded) == nil {
			apiErr.Message = decoded.Error
			apiErr.Kind = decoded.Kind
		} else {
			apiErr.Message = strings.TrimSpace(string(payload))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}

// IsNotReady reports whether err is the daemon saying a task has not
// finished yet.
func IsNotReady(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict && apiErr.Kind == "not_ready"
}
