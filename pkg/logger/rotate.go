package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 7
	defaultMaxAgeDays = 30
)

// rotationPolicy bounds the audit log on disk.
type rotationPolicy struct {
	maxSize    int64
	maxBackups int
	maxAge     time.Duration
}

func newRotationPolicy(maxSizeMB, maxBackups, maxAgeDays int) rotationPolicy {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	if maxAgeDays <= 0 {
		maxAgeDays = defaultMaxAgeDays
	}
	return rotationPolicy{
		maxSize:    int64(maxSizeMB) << 20,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
	}
}

// rotatingWriter appends to path and shifts it to path.1, path.2, ... once
// the next write would exceed the size limit. path.1 is the newest backup.
type rotatingWriter struct {
	fs     afero.Fs
	path   string
	policy rotationPolicy
	now    func() time.Time

	mu   sync.Mutex
	file afero.File
	size int64
}

func newRotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*rotatingWriter, error) {
	return newRotatingWriterFs(afero.NewOsFs(), path, newRotationPolicy(maxSizeMB, maxBackups, maxAgeDays))
}

func newRotatingWriterFs(fs afero.Fs, path string, policy rotationPolicy) (*rotatingWriter, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &rotatingWriter{fs: fs, path: path, policy: policy, now: time.Now}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.size > 0 && w.size+int64(len(p)) > w.policy.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFile()
}

func (w *rotatingWriter) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file, w.size = nil, 0
	return err
}

func (w *rotatingWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := w.fs.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file, w.size = file, info.Size()
	return nil
}

func (w *rotatingWriter) backup(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// rotate shifts the backups up by one, drops the oldest and removes backups
// past the age limit.
func (w *rotatingWriter) rotate() error {
	if err := w.closeFile(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	_ = w.fs.Remove(w.backup(w.policy.maxBackups))
	for n := w.policy.maxBackups - 1; n >= 1; n-- {
		if exists, _ := afero.Exists(w.fs, w.backup(n)); exists {
			if err := w.fs.Rename(w.backup(n), w.backup(n+1)); err != nil {
				return fmt.Errorf("shift audit backup: %w", err)
			}
		}
	}
	if err := w.fs.Rename(w.path, w.backup(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate audit log: %w", err)
	}

	cutoff := w.now().Add(-w.policy.maxAge)
	for n := 1; n <= w.policy.maxBackups; n++ {
		if info, err := w.fs.Stat(w.backup(n)); err == nil && info.ModTime().Before(cutoff) {
			_ = w.fs.Remove(w.backup(n))
		}
	}
	return nil
}
