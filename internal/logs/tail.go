package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Last returns up to n complete lines from the end of path and the offset
// just past them. A missing file yields no lines and offset zero.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if info, err := file.Stat(); err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	} else if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}

	var ring []string
	if n > 0 {
		ring = make([]string, n)
	}
	count, next := 0, 0
	offset, err := scanLines(file, 0, func(line string) {
		if n <= 0 {
			return
		}
		ring[next] = line
		next = (next + 1) % n
		count = min(count+1, n)
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == n {
		start = next
	}
	for i := range count {
		lines = append(lines, ring[(start+i)%max(n, 1)])
	}
	return lines, offset, nil
}

// Follow emits every complete line appended to path after offset until ctx
// ends or the file is removed. A file truncated below offset is read from
// the start again.
func Follow(ctx context.Context, path string, offset int64, emit func(string)) error {
	target := path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		target = resolved
	}
	target = filepath.Clean(target)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	if offset, err = readFrom(target, offset, emit); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if offset, err = readFrom(target, offset, emit); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch log: %w", err)
		}
	}
}

func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return offset, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	return scanLines(file, offset, emit)
}

// scanLines emits complete lines from offset and returns the offset after
// the last newline. A trailing partial line is left for the next read.
func scanLines(file *os.File, offset int64, emit func(string)) (int64, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		emit(strings.TrimRight(line, "\r\n"))
	}
}
