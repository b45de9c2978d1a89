// Package logtail reads and follows a daemon's log file. It backs the
// nmd/ssd "logs" subcommands for deployments where logging.output points
// at a file rather than stdout/stderr.
package logtail

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Show writes the last n lines of the log file at path to w. Lines
// stamped before since are skipped; a zero since disables the filter,
// and n <= 0 shows every line.
func Show(w io.Writer, path string, n int, since time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("logtail: open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !since.IsZero() {
			if ts := stampOf(line); !ts.IsZero() && ts.Before(since) {
				continue
			}
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("logtail: read %s: %w", path, err)
	}

	start := 0
	if n > 0 && len(lines) > n {
		start = len(lines) - n
	}
	for _, line := range lines[start:] {
		fmt.Fprintln(w, line)
	}
	return nil
}

// Follow prints the last n lines, then streams lines appended to the
// file until ctx is cancelled, waking on filesystem write events.
func Follow(ctx context.Context, w io.Writer, path string, n int, since time.Time) error {
	if err := Show(w, path, n, since); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("logtail: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("logtail: watch %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("logtail: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("logtail: seek %s: %w", path, err)
	}
	reader := bufio.NewReader(f)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					break
				}
				fmt.Fprint(w, line)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("logtail: watch: %w", err)
		}
	}
}

// stampOf extracts the timestamp from a log line in either format the
// logger emits: "[2006-01-02 15:04:05] ..." for text, or a JSON object
// with a "time" field. Unrecognized lines return the zero time and are
// never filtered out.
func stampOf(line string) time.Time {
	if strings.HasPrefix(line, "[") && len(line) >= 21 {
		if ts, err := time.ParseInLocation("2006-01-02 15:04:05", line[1:20], time.Local); err == nil {
			return ts
		}
	}
	if strings.HasPrefix(line, "{") {
		var rec struct {
			Time time.Time `json:"time"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err == nil {
			return rec.Time
		}
	}
	return time.Time{}
}
