// Package archive keeps an audit copy of every stored analysis in Google
// Cloud Storage. Only guarded responses and anonymized ids are written.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/finance-insights/internal/domain"
)

const (
	defaultPrefix = "analyses"
	uploadTimeout = 2 * time.Minute
)

// GCSArchiver writes analyses as JSON objects to a bucket.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSArchiver creates an archiver with its own storage client. It assumes
// Application Default Credentials are configured.
func NewGCSArchiver(ctx context.Context, bucket string) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSArchiver: create storage client: %w", err)
	}
	return NewGCSArchiverWithClient(client, bucket), nil
}

// NewGCSArchiverWithClient wraps an existing client.
func NewGCSArchiverWithClient(client *storage.Client, bucket string) *GCSArchiver {
	return &GCSArchiver{client: client, bucket: bucket, prefix: defaultPrefix}
}

// Close closes the storage client.
func (a *GCSArchiver) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// ArchiveAnalysis implements advisor.Archiver and returns the gs:// URI of
// the written object.
func (a *GCSArchiver) ArchiveAnalysis(ctx context.Context, an *domain.Analysis) (string, error) {
	data, err := Document(an)
	if err != nil {
		return "", fmt.Errorf("ArchiveAnalysis: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	object := ObjectName(a.prefix, an)
	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{
		"analysis_id": an.ID,
		"kind":        an.Kind,
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("ArchiveAnalysis: write object: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ArchiveAnalysis: finalize upload: %w", err)
	}

	return URI(a.bucket, object), nil
}

// Fetch downloads an archived object by its gs:// URI.
func (a *GCSArchiver) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	r, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: open object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Fetch: read object: %w", err)
	}
	return data, nil
}

// Document is the archived JSON for an analysis.
func Document(an *domain.Analysis) ([]byte, error) {
	data, err := json.MarshalIndent(an, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return data, nil
}

// ObjectName places an analysis under prefix/user/yyyy/mm/id.json.
func ObjectName(prefix string, an *domain.Analysis) string {
	created := an.CreatedAt.UTC()
	return path.Join(prefix, an.UserRef, created.Format("2006"), created.Format("01"), an.ID+".json")
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits a gs://bucket/object URI.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
