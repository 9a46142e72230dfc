package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupLayout is the timestamp embedded in rolled file names.
const backupLayout = "20060102T150405.000"

// Rotation controls when a log file is rolled and which rolled files are kept.
type Rotation struct {
	MaxBytes   int64 // roll before a write would pass this size; <= 0 never rolls
	MaxAgeDays int   // drop rolled files older than this; <= 0 keeps them
	MaxBackups int   // keep at most this many rolled files; <= 0 keeps all
	Compress   bool  // gzip rolled files
}

// MegaBytes converts a size in MB, as configured, to bytes.
func MegaBytes(mb int) int64 {
	return int64(mb) << 20
}

// RotatingWriter appends to a file and rolls it by size. A rolled file keeps
// the original extension, so audit.jsonl becomes
// audit-20261015T090000.000.jsonl and stays line-delimited JSON.
type RotatingWriter struct {
	mu   sync.Mutex
	path string
	rot  Rotation
	now  func() time.Time
	file *os.File
	size int64

	// housekeeping serializes compression and pruning of rolled files.
	housekeeping sync.Mutex
	pending      sync.WaitGroup
}

// OpenRotating opens path for appending, creating its directory.
func OpenRotating(path string, rot Rotation) (*RotatingWriter, error) {
	return openRotating(path, rot, time.Now)
}

func openRotating(path string, rot Rotation, now func() time.Time) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, rot: rot, now: now}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		w.prune()
	}()
	return w, nil
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// Write appends p, rolling first when p would push the file past MaxBytes.
// A record larger than MaxBytes still lands whole in a fresh file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.rot.MaxBytes > 0 && w.size > 0 && w.size+int64(len(p)) > w.rot.MaxBytes {
		if err := w.roll(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the active file and waits for background compression.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.pending.Wait()
	return err
}

// Backups lists rolled files, oldest first.
func (w *RotatingWriter) Backups() ([]string, error) {
	backups, err := w.backups()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(backups))
	for i, b := range backups {
		paths[i] = b.path
	}
	return paths, nil
}

// roll renames the active file aside and reopens path. Caller holds mu.
func (w *RotatingWriter) roll() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	rolled := w.backupName(w.now())
	if err := os.Rename(w.path, rolled); err != nil {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}

	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		if w.rot.Compress {
			compressFile(rolled)
		}
		w.prune()
	}()
	return nil
}

// backupName returns an unused rolled-file name for t.
func (w *RotatingWriter) backupName(t time.Time) string {
	dir, stem, ext := w.parts()
	for {
		name := filepath.Join(dir, stem+"-"+t.UTC().Format(backupLayout)+ext)
		if !exists(name) && !exists(name+".gz") {
			return name
		}
		t = t.Add(time.Millisecond)
	}
}

func (w *RotatingWriter) parts() (dir, stem, ext string) {
	dir = filepath.Dir(w.path)
	base := filepath.Base(w.path)
	ext = filepath.Ext(base)
	return dir, strings.TrimSuffix(base, ext), ext
}

type backup struct {
	path string
	at   time.Time
}

func (w *RotatingWriter) backups() ([]backup, error) {
	dir, stem, ext := w.parts()
	matches, err := filepath.Glob(filepath.Join(dir, stem+"-*"))
	if err != nil {
		return nil, err
	}

	var out []backup
	for _, m := range matches {
		stamp := strings.TrimSuffix(filepath.Base(m), ".gz")
		stamp = strings.TrimSuffix(strings.TrimPrefix(stamp, stem+"-"), ext)
		at, err := time.Parse(backupLayout, stamp)
		if err != nil {
			continue
		}
		out = append(out, backup{path: m, at: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out, nil
}

// prune removes rolled files past MaxBackups or MaxAgeDays.
func (w *RotatingWriter) prune() {
	w.housekeeping.Lock()
	defer w.housekeeping.Unlock()

	if w.rot.MaxBackups <= 0 && w.rot.MaxAgeDays <= 0 {
		return
	}
	backups, err := w.backups()
	if err != nil {
		return
	}

	cutoff := time.Time{}
	if w.rot.MaxAgeDays > 0 {
		cutoff = w.now().AddDate(0, 0, -w.rot.MaxAgeDays)
	}
	excess := 0
	if w.rot.MaxBackups > 0 && len(backups) > w.rot.MaxBackups {
		excess = len(backups) - w.rot.MaxBackups
	}
	for i, b := range backups {
		if i < excess || b.at.Before(cutoff) {
			os.Remove(b.path)
		}
	}
}

// compressFile replaces name with name.gz. Failures leave the plain file.
func compressFile(name string) {
	src, err := os.Open(name)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(name + ".gz")
	if err != nil {
		return
	}
	gzw := gzip.NewWriter(dst)
	_, err = io.Copy(gzw, src)
	if cerr := gzw.Close(); err == nil {
		err = cerr
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name + ".gz")
		return
	}
	os.Remove(name)
}

func exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
