package blobstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FilesystemStore implements BlobStore by writing files to the local disk.
// Each bucket maps to a subdirectory of the base directory. It is intended
// for development and testing; production deployments swap in an object
// storage backend behind the same interface.
type FilesystemStore struct {
	baseDir string
}

// NewFilesystemStore creates a new store rooted at the provided base directory.
func NewFilesystemStore(baseDir string) (*FilesystemStore, error) {
	if baseDir == "" {
		baseDir = "data/blobs"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FilesystemStore{baseDir: baseDir}, nil
}

func (s *FilesystemStore) localPath(uri string) (string, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	cleaned := filepath.Clean(filepath.Join(parsed.Bucket, filepath.FromSlash(parsed.Path)))
	if strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid blob URI %q: path escapes bucket", uri)
	}
	return filepath.Join(s.baseDir, cleaned), nil
}

func (s *FilesystemStore) Get(ctx context.Context, uri string) ([]byte, error) {
	path, err := s.localPath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FilesystemStore) Put(ctx context.Context, uri string, data []byte) (string, error) {
	path, err := s.localPath(uri)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("ensure blob dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return uri, nil
}

func (s *FilesystemStore) List(ctx context.Context, prefix string) ([]string, error) {
	parsed, err := ParseURI(prefix)
	if err != nil {
		return nil, err
	}
	bucketDir := filepath.Join(s.baseDir, parsed.Bucket)
	if _, err := os.Stat(bucketDir); os.IsNotExist(err) {
		return nil, nil
	}

	var uris []string
	walkErr := filepath.WalkDir(bucketDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(bucketDir, path)
		if err != nil {
			return err
		}
		uri := URI{Scheme: parsed.Scheme, Bucket: parsed.Bucket, Path: filepath.ToSlash(rel)}.String()
		if strings.HasPrefix(uri, prefix) {
			uris = append(uris, uri)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("list blobs: %w", walkErr)
	}
	sort.Strings(uris)
	return uris, nil
}

var _ BlobStore = (*FilesystemStore)(nil)
