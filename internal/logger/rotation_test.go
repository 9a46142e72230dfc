package logger

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock advances one second per reading.
func steppingClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func openTestWriter(t *testing.T, path string, rot Rotation) *RotatingWriter {
	t.Helper()
	w, err := openRotating(path, rot, steppingClock(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	return w
}

func TestOpenRotating(t *testing.T) {
	t.Run("should create the directory and append to an existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("{\"n\":0}\n"), 0644))

		w, err := OpenRotating(path, Rotation{MaxBytes: MegaBytes(1)})
		require.NoError(t, err)
		_, err = w.Write([]byte("{\"n\":1}\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "{\"n\":0}\n{\"n\":1}\n", string(data))
	})

	t.Run("should refuse writes after close", func(t *testing.T) {
		w, err := OpenRotating(filepath.Join(t.TempDir(), "quill.log"), Rotation{})
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("late\n"))
		assert.ErrorIs(t, err, os.ErrClosed)
	})
}

func TestRotatingWriter_Roll(t *testing.T) {
	t.Run("should roll whole lines and keep the extension", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "audit.jsonl")
		w := openTestWriter(t, path, Rotation{MaxBytes: 20})

		for _, line := range []string{"{\"event\":\"one\"}\n", "{\"event\":\"two\"}\n", "{\"event\":\"three\"}\n"} {
			_, err := w.Write([]byte(line))
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())

		backups, err := w.Backups()
		require.NoError(t, err)
		require.Len(t, backups, 2)
		assert.Equal(t, filepath.Join(dir, "audit-20261015T090001.000.jsonl"), backups[0])
		assert.Equal(t, filepath.Join(dir, "audit-20261015T090002.000.jsonl"), backups[1])

		first, err := os.ReadFile(backups[0])
		require.NoError(t, err)
		assert.Equal(t, "{\"event\":\"one\"}\n", string(first))

		active, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "{\"event\":\"three\"}\n", string(active))
	})

	t.Run("should not roll an empty file for an oversized record", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "quill.log")
		w := openTestWriter(t, path, Rotation{MaxBytes: 4})

		_, err := w.Write([]byte("longer than four bytes\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		backups, err := w.Backups()
		require.NoError(t, err)
		assert.Empty(t, backups)
	})

	t.Run("should never roll without a size limit", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "quill.log")
		w := openTestWriter(t, path, Rotation{})

		for i := 0; i < 50; i++ {
			_, err := w.Write([]byte("line\n"))
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())

		backups, err := w.Backups()
		require.NoError(t, err)
		assert.Empty(t, backups)
	})

	t.Run("should pick a fresh name when two rolls share a timestamp", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "quill.log")
		frozen := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
		w, err := openRotating(path, Rotation{MaxBytes: 6}, func() time.Time { return frozen })
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := w.Write([]byte("entry\n"))
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())

		backups, err := w.Backups()
		require.NoError(t, err)
		require.Len(t, backups, 2)
		assert.Equal(t, filepath.Join(dir, "quill-20261015T090000.000.log"), backups[0])
		assert.Equal(t, filepath.Join(dir, "quill-20261015T090000.001.log"), backups[1])
	})
}

func TestRotatingWriter_Retention(t *testing.T) {
	t.Run("should keep only the newest backups", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.jsonl")
		w := openTestWriter(t, path, Rotation{MaxBytes: 6, MaxBackups: 2})

		for i := 0; i < 6; i++ {
			_, err := w.Write([]byte("entry\n"))
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())

		backups, err := w.Backups()
		require.NoError(t, err)
		require.Len(t, backups, 2)
		assert.True(t, strings.HasSuffix(backups[0], "T090004.000.jsonl"), backups[0])
		assert.True(t, strings.HasSuffix(backups[1], "T090005.000.jsonl"), backups[1])
	})

	t.Run("should drop backups past the age limit on open", func(t *testing.T) {
		dir := t.TempDir()
		stale := filepath.Join(dir, "audit-20200101T120000.000.jsonl.gz")
		recent := filepath.Join(dir, "audit-"+time.Now().UTC().Format(backupLayout)+".jsonl")
		unrelated := filepath.Join(dir, "audit-notes.jsonl")
		for _, name := range []string{stale, recent, unrelated} {
			require.NoError(t, os.WriteFile(name, []byte("{}\n"), 0644))
		}

		w, err := OpenRotating(filepath.Join(dir, "audit.jsonl"), Rotation{MaxAgeDays: 7})
		require.NoError(t, err)
		require.NoError(t, w.Close())

		assert.NoFileExists(t, stale)
		assert.FileExists(t, recent)
		assert.FileExists(t, unrelated)
	})
}

func TestRotatingWriter_Compress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w := openTestWriter(t, path, Rotation{MaxBytes: 20, Compress: true})

	_, err := w.Write([]byte("{\"event\":\"one\"}\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("{\"event\":\"two\"}\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	backups, err := w.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.True(t, strings.HasSuffix(backups[0], ".jsonl.gz"), backups[0])
	assert.NoFileExists(t, strings.TrimSuffix(backups[0], ".gz"))

	f, err := os.Open(backups[0])
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "{\"event\":\"one\"}\n", string(data))
}
