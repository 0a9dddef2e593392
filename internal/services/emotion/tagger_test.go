package emotion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"minutes/internal/logging"
	"minutes/internal/services"
)

type clipWriter struct {
	ranges [][2]float64
	err    error
}

func (c *clipWriter) ExtractRange(_ context.Context, _ string, start, end float64, out string) error {
	if c.err != nil {
		return c.err
	}
	c.ranges = append(c.ranges, [2]float64{start, end})
	return os.WriteFile(out, []byte("RIFFclip"), 0o644)
}

func TestClassifyUploadsClipAndCleansScratch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected clip upload: %v", err)
		} else {
			file.Close()
		}
		_, _ = w.Write([]byte(`{"label":"Happy","confidence":0.82}`))
	}))
	defer server.Close()

	extractor := &clipWriter{}
	tagger := NewTagger(Config{URL: server.URL, ScratchRoot: t.TempDir()}, extractor, logging.NewNop())
	emotion, err := tagger.Classify(context.Background(), "meeting.wav", 1.5, 3)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if emotion.Label != "happy" || emotion.Confidence != 0.82 {
		t.Fatalf("unexpected emotion %+v", emotion)
	}
	if len(extractor.ranges) != 1 || extractor.ranges[0] != [2]float64{1.5, 3} {
		t.Fatalf("unexpected extracted ranges %v", extractor.ranges)
	}

	scratch := tagger.ScratchDir()
	if scratch == "" {
		t.Fatal("expected scratch dir to exist")
	}
	entries, _ := os.ReadDir(scratch)
	if len(entries) != 0 {
		t.Fatalf("expected clip to be removed after classify, found %d files", len(entries))
	}
	if err := tagger.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Fatalf("expected scratch dir removed, stat err=%v", err)
	}
	if _, err := tagger.Classify(context.Background(), "meeting.wav", 0, 1); err == nil {
		t.Fatal("expected classify after close to fail")
	}
}

func TestClassifyServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	tagger := NewTagger(Config{URL: server.URL, ScratchRoot: t.TempDir()}, &clipWriter{}, logging.NewNop())
	defer tagger.Close()
	if _, err := tagger.Classify(context.Background(), "meeting.wav", 0, 1); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestClassifyExtractFailure(t *testing.T) {
	tagger := NewTagger(Config{URL: "http://127.0.0.1:1", ScratchRoot: t.TempDir()}, &clipWriter{err: errors.New("ffmpeg failed")}, logging.NewNop())
	defer tagger.Close()
	if _, err := tagger.Classify(context.Background(), "meeting.wav", 0, 1); err == nil {
		t.Fatal("expected extract failure to surface")
	}
}

func TestClassifyRequiresURL(t *testing.T) {
	tagger := NewTagger(Config{}, &clipWriter{}, logging.NewNop())
	if _, err := tagger.Classify(context.Background(), "meeting.wav", 0, 1); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClassifyBoundsConfidence(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    float64
		wantErr bool
	}{
		{name: "percent scale clamped", body: `{"label":"happy","confidence":85}`, want: 1},
		{name: "negative rejected", body: `{"label":"sad","confidence":-0.3}`, wantErr: true},
		{name: "in range kept", body: `{"label":"calm","confidence":0.4}`, want: 0.4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			tagger := NewTagger(Config{URL: server.URL, ScratchRoot: t.TempDir()}, &clipWriter{}, logging.NewNop())
			defer tagger.Close()
			emotion, err := tagger.Classify(context.Background(), "meeting.wav", 0, 1)
			if tc.wantErr {
				if !errors.Is(err, services.ErrExternalTool) {
					t.Fatalf("expected external tool error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify returned error: %v", err)
			}
			if emotion.Confidence != tc.want {
				t.Fatalf("confidence = %v, want %v", emotion.Confidence, tc.want)
			}
		})
	}
}
