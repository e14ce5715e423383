// Package gcs stores and retrieves statement documents in Google Cloud
// Storage, addressed by gs:// URIs.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Service is the blob-storage contract the pipeline depends on; tests
// substitute an in-memory implementation.
type Service interface {
	// Fetch downloads the object bytes for the given gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)

	// Upload writes r to bucket/object and returns the resulting gs:// URI.
	Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) (string, error)
}

// Client implements Service over a shared storage client. It assumes
// Application Default Credentials are configured.
type Client struct {
	client *storage.Client
}

// NewClient creates a Client; Close releases the underlying connection.
func NewClient(ctx context.Context) (*Client, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: creating storage client: %w", err)
	}
	return &Client{client: c}, nil
}

// Close closes the underlying storage client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Fetch downloads the object bytes for a gs://bucket/path URI.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := SplitURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("gcs: reading bytes: %w", err)
	}
	return data, nil
}

// Upload writes r to bucket/object with the given content type.
func (c *Client) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs: copying to writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs: finalizing upload: %w", err)
	}
	return URI(bucket, object), nil
}

// URI builds a gs:// URI from bucket and object.
func URI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}

// SplitURI splits a gs://bucket/path URI into bucket and object path.
func SplitURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("gcs: invalid URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("gcs: invalid URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Filename extracts the object's base filename from a gs:// URI,
// e.g. "gs://bucket/folder/file.pdf" yields "file.pdf".
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
