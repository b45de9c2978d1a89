package logtail

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nm.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestShowLastN(t *testing.T) {
	path := writeLog(t, "one", "two", "three", "four")

	var buf bytes.Buffer
	require.NoError(t, Show(&buf, path, 2, time.Time{}))
	assert.Equal(t, "three\nfour\n", buf.String())
}

func TestShowAllWhenFewerLinesThanN(t *testing.T) {
	path := writeLog(t, "one", "two")

	var buf bytes.Buffer
	require.NoError(t, Show(&buf, path, 100, time.Time{}))
	assert.Equal(t, "one\ntwo\n", buf.String())
}

func TestShowZeroNShowsEverything(t *testing.T) {
	path := writeLog(t, "one", "two", "three")

	var buf bytes.Buffer
	require.NoError(t, Show(&buf, path, 0, time.Time{}))
	assert.Equal(t, "one\ntwo\nthree\n", buf.String())
}

func TestShowSinceFiltersStampedLines(t *testing.T) {
	path := writeLog(t,
		"[2026-01-01 10:00:00] [INFO] early",
		"[2026-01-01 12:00:00] [INFO] late",
		"unstamped line",
	)

	since := time.Date(2026, 1, 1, 11, 0, 0, 0, time.Local)
	var buf bytes.Buffer
	require.NoError(t, Show(&buf, path, 0, since))

	out := buf.String()
	assert.NotContains(t, out, "early")
	assert.Contains(t, out, "late")
	assert.Contains(t, out, "unstamped line", "lines without a parseable stamp are never filtered")
}

func TestShowMissingFileErrors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Show(&buf, filepath.Join(t.TempDir(), "nope.log"), 10, time.Time{}))
}

func TestStampOf(t *testing.T) {
	text := stampOf("[2026-01-01 10:30:00] [INFO] hello")
	assert.Equal(t, time.Date(2026, 1, 1, 10, 30, 0, 0, time.Local), text)

	jsonLine := stampOf(`{"time":"2026-01-01T10:30:00Z","level":"INFO","msg":"hello"}`)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC), jsonLine.UTC())

	assert.True(t, stampOf("no stamp here").IsZero())
	assert.True(t, stampOf("").IsZero())
}
