package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/miradorstack/cardinality-observer/internal/models"
	"github.com/miradorstack/cardinality-observer/internal/utils"
)

// BackupSuffix is appended to the control file path for the previous signal.
const BackupSuffix = ".backup"

const fileMode = 0o644

// FileStore writes control signals to a YAML file with a sibling backup.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore returns a store for the given control file path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the control file location.
func (s *FileStore) Path() string { return s.path }

// BackupPath returns the location of the previous signal.
func (s *FileStore) BackupPath() string { return s.path + BackupSuffix }

// Write backs up the current file (best effort) and atomically replaces it.
func (s *FileStore) Write(_ context.Context, signal models.ControlSignal) error {
	data, err := Encode(signal)
	if err != nil {
		return utils.NewAppError(utils.KindPersist, "store.write", "encode signal", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return utils.NewAppError(utils.KindPersist, "store.write", "create control directory", err)
	}

	if err := s.backup(); err != nil {
		s.logger.Warn("control signal backup failed", slog.String("path", s.BackupPath()), slog.Any("error", err))
	}

	if err := writeAtomic(s.path, data); err != nil {
		return utils.NewAppError(utils.KindPersist, "store.write", "replace control file", err)
	}
	return nil
}

// Read loads the current control file.
func (s *FileStore) Read() (models.ControlSignal, error) {
	return ReadFile(s.path)
}

// ReadFile decodes a control signal file.
func ReadFile(path string) (models.ControlSignal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ControlSignal{}, fmt.Errorf("read control file: %w", err)
	}
	return Decode(data)
}

func (s *FileStore) backup() error {
	current, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return writeAtomic(s.BackupPath(), current)
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path, so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
