// Package static is the pre-generated screenshot tier: PNG files kept under the
// public directory at "{prefix}/{year}/{username}/{project}.png".
package static

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"projectpreview/internal/domain"
)

// Store looks up and writes pre-generated screenshots on the local filesystem.
type Store struct {
	root   string
	prefix string
}

// New creates a store rooted at publicDir/prefix. The directory is created if missing.
func New(publicDir, prefix string) (*Store, error) {
	if strings.TrimSpace(publicDir) == "" {
		return nil, errors.New("public dir is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("screenshots prefix is required")
	}
	root := filepath.Join(publicDir, filepath.FromSlash(prefix))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshots dir: %w", err)
	}
	return &Store{root: root, prefix: "/" + prefix}, nil
}

func (s *Store) file(req domain.CaptureRequest) string {
	return filepath.Join(s.root, filepath.FromSlash(req.Path())+".png")
}

// Location is the public URL path of the screenshot for req.
func (s *Store) Location(req domain.CaptureRequest) string {
	return s.prefix + "/" + req.Path() + ".png"
}

// Lookup returns the public location of an existing screenshot for req.
func (s *Store) Lookup(req domain.CaptureRequest) (string, bool) {
	info, err := os.Stat(s.file(req))
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", false
	}
	return s.Location(req), true
}

// Save writes png for req atomically and returns its public location.
func (s *Store) Save(ctx context.Context, req domain.CaptureRequest, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(png) == 0 {
		return "", errors.New("screenshot is empty")
	}

	path := s.file(req)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, png, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("commit screenshot: %w", err)
	}
	return s.Location(req), nil
}
