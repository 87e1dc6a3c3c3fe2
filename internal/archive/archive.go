// Package archive writes the original batch payload to object storage for
// audit. The write sits off the validation/load critical path: callers fire
// it and move on, and a failed upload never blocks or fails the pipeline.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const uploadTimeout = 2 * time.Minute

// Uploader stores raw batch payloads in a bucket.
type Uploader struct {
	bucket string
	opts   []option.ClientOption
}

// New builds an uploader for the given bucket. A non-empty endpoint points
// the client at an S3/MinIO-compatible gateway instead of the default Google
// endpoint.
func New(bucket, endpoint string) *Uploader {
	u := &Uploader{bucket: bucket}
	if endpoint != "" {
		u.opts = append(u.opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	return u
}

// Store uploads one payload under the given object name.
func (u *Uploader) Store(ctx context.Context, objectName string, payload []byte) error {
	client, err := storage.NewClient(ctx, u.opts...)
	if err != nil {
		return fmt.Errorf("archive: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "text/csv"

	if _, err := io.Copy(w, bytes.NewReader(payload)); err != nil {
		_ = w.Close()
		return fmt.Errorf("archive: copy payload to %s/%s: %w", u.bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive: finalize upload %s/%s: %w", u.bucket, objectName, err)
	}
	return nil
}

// ObjectName derives a unique archive object name for a batch file, keeping
// the original name for traceability.
func ObjectName(batchName string, at time.Time) string {
	return fmt.Sprintf("raw/%s/%s", at.UTC().Format("20060102_150405"), batchName)
}
