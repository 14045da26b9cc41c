package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a blob does not exist at the requested URI.
var ErrNotFound = errors.New("blob not found")

// BlobStore is the abstract artifact store contract. Blobs are addressed by
// opaque URIs of the form scheme://bucket/path. The pipeline depends only on
// this interface, never on a concrete backend.
type BlobStore interface {
	// Get returns the raw bytes stored at uri, or ErrNotFound.
	Get(ctx context.Context, uri string) ([]byte, error)
	// Put writes data at uri and returns the URI it was given.
	Put(ctx context.Context, uri string, data []byte) (string, error)
	// List returns the URIs of all blobs whose URI starts with prefix,
	// in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// URI is a parsed blob address.
type URI struct {
	Scheme string
	Bucket string
	Path   string
}

func (u URI) String() string {
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Bucket, u.Path)
}

// ParseURI splits a scheme://bucket/path address into its parts.
func ParseURI(uri string) (URI, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return URI{}, fmt.Errorf("invalid blob URI %q: missing scheme", uri)
	}
	bucket, path, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return URI{}, fmt.Errorf("invalid blob URI %q: missing bucket", uri)
	}
	return URI{Scheme: scheme, Bucket: bucket, Path: path}, nil
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// IsImageURI reports whether the URI points at a supported image format.
func IsImageURI(uri string) bool {
	lower := strings.ToLower(uri)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// MIMEType guesses the media type from the URI extension, defaulting to PNG.
func MIMEType(uri string) string {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".mp4"):
		return "video/mp4"
	default:
		return "image/png"
	}
}
