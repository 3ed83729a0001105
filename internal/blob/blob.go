// Package blob stores uploaded files on local disk and resolves stored
// references back to readable paths.
package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Resolver interface {
	Path(ref string) (string, error)
}

type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Path maps a reference to a file under the store root. References that
// escape the root are rejected.
func (s *LocalStore) Path(ref string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(ref, "/"))
	full := filepath.Join(s.root, clean)
	if full != s.root && !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("reference %q escapes the blob root", ref)
	}
	if _, err := os.Stat(full); err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", ref, err)
	}
	return full, nil
}

// Save writes r under a fresh reference that keeps the original base name.
func (s *LocalStore) Save(name string, r io.Reader) (string, error) {
	ref := uuid.NewString() + "-" + filepath.Base(name)
	full := filepath.Join(s.root, ref)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	return ref, nil
}

// Remove deletes a stored blob. Missing blobs are not an error.
func (s *LocalStore) Remove(ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}
