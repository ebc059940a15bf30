package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps reports as objects in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore connects with Application Default Credentials, or with the
// given service account JSON when it is not empty.
func NewGCSStore(ctx context.Context, bucket, prefix, credentialsJSON string) (*GCSStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *GCSStore) object(name string) *storage.ObjectHandle {
	key := name
	if s.prefix != "" {
		key = s.prefix + "/" + name
	}
	return s.client.Bucket(s.bucket).Object(key)
}

// Save uploads through a resumable writer. On failure the writer's context is
// cancelled before Close, which aborts the upload so no object is created.
func (s *GCSStore) Save(ctx context.Context, name string, write func(w io.Writer) error) error {
	if err := validName(name); err != nil {
		return err
	}
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.object(name).NewWriter(wctx)
	w.ContentType = XLSXContentType

	if err := write(w); err != nil {
		cancel()
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (s *GCSStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	r, err := s.object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	return r, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
