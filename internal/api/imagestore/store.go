package imagestore

import (
	"fmt"
	"os"
	"path/filepath"
)

// IOError reports a failed write of a sample image.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to store image %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Store writes sample images under a single upload root.
type Store struct {
	root string
}

// New creates a Store rooted at root.
func New(root string) *Store {
	return &Store{root: root}
}

// PathFor returns the path the image of jobID is stored at.
func (s *Store) PathFor(jobID string) string {
	return filepath.Join(s.root, jobID+".jpg")
}

// Save writes data to <root>/<jobID>.jpg, creating missing directories and
// replacing any existing file, and returns the path.
func (s *Store) Save(jobID string, data []byte) (string, error) {
	path := s.PathFor(jobID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &IOError{Path: path, Err: err}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &IOError{Path: path, Err: err}
	}

	return path, nil
}
