// Package status persists the external-facing status snapshot. The file on
// disk is always replaced atomically so a reader never sees a partial write.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// mirrorTimeout bounds each best-effort mirror publish.
const mirrorTimeout = 2 * time.Second

// Publisher mirrors snapshots to a secondary sink such as Redis.
type Publisher interface {
	PublishStatus(ctx context.Context, snap domain.StatusSnapshot) error
	Name() string
}

// FileWriter writes snapshots to a single JSON file via temp-file + rename.
type FileWriter struct {
	path string
}

// NewFileWriter creates a FileWriter for path.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Write serialises snap to "<path>.tmp" and renames it over path.
func (w *FileWriter) Write(_ context.Context, snap domain.StatusSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("status: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("status: create dir: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("status: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("status: rename %s: %w", tmp, err)
	}
	return nil
}

// ReadFile loads a snapshot previously written by FileWriter.
func ReadFile(path string) (domain.StatusSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("status: read %s: %w", path, err)
	}
	var snap domain.StatusSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("status: decode %s: %w", path, err)
	}
	return snap, nil
}

// Writer is the engine-facing store: the file write is authoritative and its
// error is returned; mirrors are best effort and only logged.
type Writer struct {
	file    *FileWriter
	mirrors []Publisher
	logger  *slog.Logger
}

// NewWriter combines the status file with zero or more mirrors.
func NewWriter(file *FileWriter, logger *slog.Logger, mirrors ...Publisher) *Writer {
	return &Writer{
		file:    file,
		mirrors: mirrors,
		logger:  logger.With(slog.String("component", "status")),
	}
}

// Write persists snap to the file and then to every mirror.
func (w *Writer) Write(ctx context.Context, snap domain.StatusSnapshot) error {
	if err := w.file.Write(ctx, snap); err != nil {
		return err
	}
	for _, m := range w.mirrors {
		mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
		err := m.PublishStatus(mctx, snap)
		cancel()
		if err != nil {
			w.logger.Warn("status mirror failed",
				slog.String("mirror", m.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
