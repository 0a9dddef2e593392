package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"minutes/internal/config"
)

// Store is the SQLite-backed meeting history.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Metadata identifies a stored meeting.
type Metadata struct {
	MeetingID    string   `json:"meeting_id"`
	Timestamp    string   `json:"timestamp"`
	Participants []string `json:"participants"`
}

// Document is a stored meeting summary returned by Query.
type Document struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// candidateFactor widens the FTS candidate pool before reranking.
	candidateFactor = 4
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open connects to the history database configured in cfg, creating it on first use.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("history: config is required")
	}
	return OpenPath(cfg.Analysis.HistoryPath)
}

// OpenPath connects to the history database at path.
func OpenPath(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path reports the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add stores one meeting summary.
func (s *Store) Add(ctx context.Context, text string, meta Metadata) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(text) == "" {
		return errors.New("history add: empty text")
	}
	created := s.now().UTC().Format(time.RFC3339Nano)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO meetings (meeting_id, recorded_at, participants, body, created_at) VALUES (?, ?, ?, ?, ?)`,
			strings.TrimSpace(meta.MeetingID),
			strings.TrimSpace(meta.Timestamp),
			joinParticipants(meta.Participants),
			text,
			created,
		)
		return err
	})
}

// Count reports how many meetings are stored.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM meetings").Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count meetings: %w", err)
	}
	return count, nil
}

// Recent returns up to limit meetings, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Document, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.queryRows(ctx,
		`SELECT id, meeting_id, recorded_at, participants, body FROM meetings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent meetings: %w", err)
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.document(0))
	}
	return docs, nil
}

type meetingRow struct {
	id           int64
	meetingID    string
	recordedAt   string
	participants string
	body         string
}

func (r meetingRow) document(score float64) Document {
	return Document{
		Text: r.body,
		Metadata: Metadata{
			MeetingID:    r.meetingID,
			Timestamp:    r.recordedAt,
			Participants: splitParticipants(r.participants),
		},
		Score: score,
	}
}

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]meetingRow, error) {
	var out []meetingRow
	err := retryOnBusy(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var row meetingRow
			if err := rows.Scan(&row.id, &row.meetingID, &row.recordedAt, &row.participants, &row.body); err != nil {
				return err
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	return out, err
}

func joinParticipants(values []string) string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			cleaned = append(cleaned, value)
		}
	}
	return strings.Join(cleaned, ",")
}

func splitParticipants(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
