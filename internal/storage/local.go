package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes media under a directory on the local filesystem. It is
// the development backend; URLs point at the application's /media/ route.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates the base directory if needed. baseURL is the public
// address of the application, e.g. http://localhost:8080.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir %s: %w", dir, err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Dir returns the base directory; the application serves it at /media/.
func (l *LocalStore) Dir() string { return l.dir }

func (l *LocalStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	full, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating media path: %w", ErrUnavailable)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", key, ErrUnavailable)
	}
	return l.baseURL + "/media/" + key, nil
}

func (l *LocalStore) Delete(_ context.Context, key string) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, ErrUnavailable)
	}
	return nil
}

func (l *LocalStore) EnsurePrefix(_ context.Context, homeID int64) error {
	if err := os.MkdirAll(filepath.Join(l.dir, fmt.Sprint(homeID)), 0o755); err != nil {
		return fmt.Errorf("creating prefix for home %d: %w", homeID, ErrUnavailable)
	}
	return nil
}

func (l *LocalStore) RemovePrefix(_ context.Context, homeID int64) error {
	if err := os.RemoveAll(filepath.Join(l.dir, fmt.Sprint(homeID))); err != nil {
		return fmt.Errorf("removing prefix for home %d: %w", homeID, ErrUnavailable)
	}
	return nil
}

func (l *LocalStore) PrefixEmpty(_ context.Context, homeID int64) (bool, error) {
	entries, err := os.ReadDir(filepath.Join(l.dir, fmt.Sprint(homeID)))
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading prefix for home %d: %w", homeID, ErrUnavailable)
	}
	return len(entries) == 0, nil
}

// resolve joins key onto the base dir, refusing keys that would escape it.
func (l *LocalStore) resolve(key string) (string, error) {
	full := filepath.Join(l.dir, filepath.FromSlash(key))
	rel, err := filepath.Rel(l.dir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return full, nil
}
