package emotion

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
	"strings"
	"sync"
	"time"

	"minutes/internal/config"
	"minutes/internal/fusion"
	"minutes/internal/logging"
	"minutes/internal/services"
)

// RangeExtractor writes the [start,end] seconds of inPath to outPath.
type RangeExtractor interface {
	ExtractRange(ctx context.Context, inPath string, start, end float64, outPath string) error
}

// HTTPDoer describes the HTTP client used by the tagger.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config captures the emotion service location.
type Config struct {
	URL            string
	TimeoutSeconds int
	// ScratchRoot is the parent of the tagger's scratch directory. Empty
	// uses the system temp directory.
	ScratchRoot string
}

// Tagger implements fusion.Tagger against the emotion service.
type Tagger struct {
	baseURL     string
	scratchRoot string
	extractor   RangeExtractor
	client      HTTPDoer
	logger      *slog.Logger

	mu      sync.Mutex
	scratch string
	seq     int
	closed  bool
}

var _ fusion.Tagger = (*Tagger)(nil)

// Option customizes the tagger.
type Option func(*Tagger)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(t *Tagger) {
		if client != nil {
			t.client = client
		}
	}
}

// NewTagger constructs a tagger that clips audio with extractor.
func NewTagger(cfg Config, extractor RangeExtractor, logger *slog.Logger, opts ...Option) *Tagger {
	t := &Tagger{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		scratchRoot: cfg.ScratchRoot,
		extractor:   extractor,
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:      logging.NewComponentLogger(logger, "emotion"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewFromConfig builds a tagger from the emotion config section.
func NewFromConfig(cfg *config.Config, extractor RangeExtractor, logger *slog.Logger, opts ...Option) *Tagger {
	return NewTagger(Config{
		URL:            cfg.Emotion.URL,
		TimeoutSeconds: cfg.Emotion.TimeoutSeconds,
		ScratchRoot:    cfg.WorkDir(),
	}, extractor, logger, opts...)
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

// Classify tags the [start,end] range of audioPath.
func (t *Tagger) Classify(ctx context.Context, audioPath string, start, end float64) (fusion.Emotion, error) {
	var result fusion.Emotion
	if t.baseURL == "" {
		return result, services.Wrap(services.ErrConfiguration, "emotion", "classify", "emotion url not configured", nil)
	}
	if t.extractor == nil {
		return result, services.Wrap(services.ErrConfiguration, "emotion", "classify", "no audio extractor", nil)
	}
	clip, err := t.nextClipPath()
	if err != nil {
		return result, err
	}
	defer os.Remove(clip)

	if err := t.extractor.ExtractRange(ctx, audioPath, start, end, clip); err != nil {
		return result, fmt.Errorf("extract clip: %w", err)
	}

	body, contentType, err := encodeClip(clip)
	if err != nil {
		return result, fmt.Errorf("encode clip: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/classify", body)
	if err != nil {
		return result, fmt.Errorf("build emotion request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "emotion", "classify", "", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("read emotion response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return result, services.Wrap(services.ErrExternalTool, "emotion", "classify",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	var decoded classifyResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "emotion", "decode response", "", err)
	}
	if decoded.Error != "" {
		return result, services.Wrap(services.ErrExternalTool, "emotion", "classify", decoded.Error, nil)
	}
	label := strings.ToLower(strings.TrimSpace(decoded.Label))
	if label == "" {
		return result, services.Wrap(services.ErrExternalTool, "emotion", "classify", "empty label", nil)
	}
	confidence, ok := fusion.NormalizeConfidence(decoded.Confidence)
	if !ok {
		return result, services.Wrap(services.ErrExternalTool, "emotion", "classify",
			fmt.Sprintf("invalid confidence %v", decoded.Confidence), nil)
	}
	return fusion.Emotion{Label: label, Confidence: confidence}, nil
}

// HealthCheck verifies the service answers on /health.
func (t *Tagger) HealthCheck(ctx context.Context) error {
	if t.baseURL == "" {
		return errors.New("emotion health: url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("emotion health: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("emotion health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("emotion health returned %d", resp.StatusCode)
	}
	return nil
}

// Close removes the scratch directory. Classify fails after Close.
func (t *Tagger) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.scratch == "" {
		return nil
	}
	dir := t.scratch
	t.scratch = ""
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove emotion scratch dir: %w", err)
	}
	return nil
}

func (t *Tagger) nextClipPath() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", errors.New("emotion tagger closed")
	}
	if t.scratch == "" {
		if t.scratchRoot != "" {
			if err := os.MkdirAll(t.scratchRoot, 0o755); err != nil {
				return "", fmt.Errorf("create scratch root: %w", err)
			}
		}
		dir, err := os.MkdirTemp(t.scratchRoot, "emotion-*")
		if err != nil {
			return "", fmt.Errorf("create scratch dir: %w", err)
		}
		t.scratch = dir
	}
	t.seq++
	return filepath.Join(t.scratch, fmt.Sprintf("clip_%05d.wav", t.seq)), nil
}

// ScratchDir reports the current scratch directory, if one was created.
func (t *Tagger) ScratchDir() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scratch
}

func encodeClip(path string) (io.Reader, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
