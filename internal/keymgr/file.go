package keymgr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileDirPerm  = 0o700
	fileDataPerm = 0o600
)

// FileBackend stores one secret per file under an owner-only directory. It is
// meant for local development.
type FileBackend struct {
	dir string
	log *slog.Logger
}

func NewFileBackend(dir string, log *slog.Logger) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("file backend: empty directory")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, fileDirPerm); err != nil {
		return nil, fmt.Errorf("file backend: create dir: %w", err)
	}
	if err := os.Chmod(dir, fileDirPerm); err != nil {
		return nil, fmt.Errorf("file backend: chmod dir: %w", err)
	}
	return &FileBackend{dir: dir, log: log}, nil
}

func (b *FileBackend) Name() string { return "file" }

func (b *FileBackend) Get(_ context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v := []byte(strings.TrimRight(string(data), "\r\n"))
	if len(v) > 0 {
		b.log.Warn("secret served from file backend; not for production use", "secret", name)
	}
	return v, nil
}

func (b *FileBackend) Set(_ context.Context, name string, value []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	path := filepath.Join(b.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, fileDataPerm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
