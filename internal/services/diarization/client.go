package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"minutes/internal/config"
	"minutes/internal/fusion"
	"minutes/internal/logging"
	"minutes/internal/services"
)

// HTTPDoer describes the HTTP client used by the diarization client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config captures the diarization service location.
type Config struct {
	URL            string
	TimeoutSeconds int
}

// Client talks to the diarization service.
type Client struct {
	baseURL string
	client  HTTPDoer
	logger  *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs a diarization client.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "diarization"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the diarization config section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	return NewClient(Config{URL: cfg.Diarization.URL, TimeoutSeconds: cfg.Diarization.TimeoutSeconds}, logger, opts...)
}

type diarizeResponse struct {
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"segments"`
	Error string `json:"error"`
}

// Diarize uploads wavPath and returns the speaker turns in service order.
// numSpeakers <= 0 lets the service estimate the speaker count.
func (c *Client) Diarize(ctx context.Context, wavPath string, numSpeakers int) ([]fusion.Interval, error) {
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "diarize", "request", "diarization url not configured", nil)
	}
	body, contentType, err := encodeUpload(wavPath, numSpeakers)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "diarize", "encode upload", "", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diarize", body)
	if err != nil {
		return nil, fmt.Errorf("build diarization request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "request", "", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read diarization response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(payload)), nil)
	}

	var decoded diarizeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "decode response", snippet(payload), err)
	}
	if decoded.Error != "" {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "request", decoded.Error, nil)
	}

	intervals := make([]fusion.Interval, 0, len(decoded.Segments))
	speakers := make(map[string]struct{})
	for _, seg := range decoded.Segments {
		speaker := strings.TrimSpace(seg.Speaker)
		if speaker == "" {
			speaker = fusion.UnknownSpeaker
		}
		speakers[speaker] = struct{}{}
		intervals = append(intervals, fusion.Interval{Start: seg.Start, End: seg.End, Speaker: speaker})
	}
	c.logger.Info("diarization complete",
		logging.String(logging.FieldEventType, "diarization_complete"),
		logging.Int("segments", len(intervals)),
		logging.Int("speakers", len(speakers)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return intervals, nil
}

// HealthCheck verifies the service answers on /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.baseURL == "" {
		return errors.New("diarization health: url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("diarization health: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("diarization health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("diarization health returned %d", resp.StatusCode)
	}
	return nil
}

func encodeUpload(path string, numSpeakers int) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if numSpeakers > 0 {
		if err := writer.WriteField("num_speakers", strconv.Itoa(numSpeakers)); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func snippet(payload []byte) string {
	clean := strings.Join(strings.Fields(string(payload)), " ")
	if len(clean) > 200 {
		clean = clean[:200] + "..."
	}
	return clean
}
