package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for path segments that would escape the data dir
var ErrInvalidPath = errors.New("invalid storage path")

// FileStore keeps merged recordings under <baseDir>/<course>/<lesson>/<hash>.wav
type FileStore struct {
	baseDir string
}

// NewFileStore creates the base directory if needed
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory cannot be empty")
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", baseDir, err)
	}

	return &FileStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// Save writes data under its content hash and returns the path relative to
// the base directory. Writing an existing hash is a no-op.
func (s *FileStore) Save(courseID, lessonID, hash string, data []byte) (string, error) {
	rel, err := relativePath(courseID, lessonID, hash)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.baseDir, rel)
	if _, err := os.Stat(full); err == nil {
		return rel, nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", rel, err)
	}

	// write to a temp file first so readers never see a partial WAV
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file for %s: %w", rel, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s: %w", rel, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing %s: %w", rel, err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("renaming %s: %w", rel, err)
	}

	return rel, nil
}

// Read returns the file stored at a path previously returned by Save
func (s *FileStore) Read(rel string) ([]byte, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, clean))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}

	return data, nil
}

func relativePath(courseID, lessonID, hash string) (string, error) {
	for _, segment := range []string{courseID, lessonID, hash} {
		if !validSegment(segment) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, segment)
		}
	}

	return filepath.Join(courseID, lessonID, hash+".wav"), nil
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
