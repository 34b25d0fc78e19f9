package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/Ledgerlens/internal/core"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
)

// LocalStore keeps assets as files under a root directory. References are
// the file paths, so Image_Path values can be opened directly by callers on
// the same host.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: asset root is empty", internalerr.ErrInvalidConfig)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// SaveAsset writes data to <root>/<namespace>/<name> through a temp file and
// rename, so readers never see a partial asset.
func (s *LocalStore) SaveAsset(ctx context.Context, namespace, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := assetKey(namespace, name)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".asset-*")
	if err != nil {
		return "", fmt.Errorf("create temp asset: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store asset: %w", err)
	}
	return dst, nil
}

func (s *LocalStore) OpenAsset(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	p, err := s.resolve(ref)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: asset %s", internalerr.ErrNotFound, ref)
	}
	if err != nil {
		return nil, "", err
	}
	return f, ContentTypeFor(p), nil
}

func (s *LocalStore) DeleteAsset(ctx context.Context, ref string) error {
	p, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

// resolve maps a reference back to a path and refuses anything outside root.
func (s *LocalStore) resolve(ref string) (string, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	p, err := filepath.Abs(ref)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: asset %s is outside the asset root", internalerr.ErrInvalidInput, ref)
	}
	return p, nil
}

var _ core.AssetStore = (*LocalStore)(nil)
