package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidPath is returned for references that escape the storage root.
var ErrInvalidPath = errors.New("invalid storage path")

// ErrNotExist is returned when a reference does not resolve to a stored object.
var ErrNotExist = errors.New("object does not exist")

// Object describes a stored file.
type Object struct {
	Ref     string
	Size    int64
	ModTime time.Time
}

// LocalStorage keeps harvest photos on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes data under ref and returns the normalised reference.
func (s *LocalStorage) Save(ref string, data []byte) (string, error) {
	path, clean, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return clean, nil
}

// Stat reports metadata for ref.
func (s *LocalStorage) Stat(ref string) (Object, error) {
	path, clean, err := s.resolve(ref)
	if err != nil {
		return Object{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Object{}, ErrNotExist
		}
		return Object{}, fmt.Errorf("stat object: %w", err)
	}
	if info.IsDir() {
		return Object{}, ErrNotExist
	}
	return Object{Ref: clean, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Open returns a read handle for ref. Callers close it.
func (s *LocalStorage) Open(ref string) (io.ReadCloser, error) {
	path, _, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return file, nil
}

func (s *LocalStorage) resolve(ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || filepath.IsAbs(ref) {
		return "", "", ErrInvalidPath
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", "", ErrInvalidPath
	}
	return filepath.Join(s.baseDir, clean), filepath.ToSlash(clean), nil
}
