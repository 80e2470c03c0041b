package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingWriter appends to a single log file and rolls it over once
// it grows past the size limit. Rolled files are suffixed with a
// timestamp, optionally gzipped, and removed after the retention
// window. Safe for concurrent use.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	limit    int64
	keepDays int
	gzipOld  bool
	f        *os.File
	size     int64
}

// NewRotatingWriter opens (or creates) the log file at path, rolling
// it over whenever it would exceed maxSizeMB. Rolled files older than
// maxAge days are pruned; compress gzips them.
func NewRotatingWriter(path string, maxSizeMB, maxAge int, compress bool) (*RotatingWriter, error) {
	return newRotatingWriter(path, int64(maxSizeMB)*1024*1024, maxAge, compress)
}

func newRotatingWriter(path string, limit int64, keepDays int, gzipOld bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, size, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	return &RotatingWriter{
		path:     path,
		limit:    limit,
		keepDays: keepDays,
		gzipOld:  gzipOld,
		f:        f,
		size:     size,
	}, nil
}

func openAppend(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat log file: %w", err)
	}
	return f, info.Size(), nil
}

// Write appends one log line, rolling the file first when the line
// would push it past the limit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.limit {
		if err := w.roll(); err != nil {
			return 0, err
		}
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// roll renames the current file aside and starts a fresh one. Caller
// holds the lock.
func (w *RotatingWriter) roll() error {
	if err := w.f.Close(); err != nil {
		return err
	}

	rolled := fmt.Sprintf("%s.%s", w.path, time.Now().Format("20060102-150405.000"))
	if err := os.Rename(w.path, rolled); err != nil {
		return err
	}

	if w.gzipOld {
		go gzipFile(rolled)
	}
	w.prune()

	f, size, err := openAppend(w.path)
	if err != nil {
		return err
	}
	w.f = f
	w.size = size
	return nil
}

// prune removes rolled files older than the retention window.
func (w *RotatingWriter) prune() {
	if w.keepDays <= 0 {
		return
	}

	rolled, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -w.keepDays)
	for _, path := range rolled {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(path)
		if !strings.HasSuffix(path, ".gz") {
			os.Remove(path + ".gz")
		}
	}
}

// gzipFile replaces a rolled log file with its gzipped form. Runs off
// the write path; a failure leaves the uncompressed file in place.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer dst.Close()

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
