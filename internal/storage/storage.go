// Package storage persists uploaded image files on local disk and
// resolves their public URLs under the static mount.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StaticMount is the public URL prefix the HTTP layer serves uploads from.
const StaticMount = "/static"

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes the payload under a collision-free name derived from the
// upload time and a random id, keeping the original extension.
func (s *Store) Save(data []byte, originalName string) (filename string, path string, err error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if ext == "" {
		ext = ".jpg"
	}

	filename = fmt.Sprintf("%d_%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)
	path = filepath.Join(s.dir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write upload: %w", err)
	}
	return filename, path, nil
}

// Read loads a previously stored image by its absolute path.
func (s *Store) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// PublicURL returns the URL the dashboard uses to fetch a stored file.
func PublicURL(path string) string {
	return StaticMount + "/" + filepath.Base(path)
}
