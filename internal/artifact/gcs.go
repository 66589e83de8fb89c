package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"ForecastPull/internal/domain/models"
	"ForecastPull/internal/domain/repository"
)

// GCSStore keeps artifacts as objects under bucket/prefix. An object write only becomes
// visible once the writer is closed, which gives the same all-or-nothing save as FSStore.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore connects with the given service account key, or application default
// credentials when credentialsFile is empty.
func NewGCSStore(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("gcs credentials %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) object(asset, family string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, objectName(asset, family)))
}

func (s *GCSStore) Save(ctx context.Context, asset, family string, a *models.Artifact) error {
	b, err := encode(a)
	if err != nil {
		return err
	}
	w := s.object(asset, family).NewWriter(ctx)
	w.ContentType = "application/msgpack"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := w.Write(b); err != nil {
		w.Close()
		return fmt.Errorf("write gcs artifact: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer: %w", err)
	}
	return nil
}

func (s *GCSStore) Load(ctx context.Context, asset, family string) (*models.Artifact, error) {
	r, err := s.object(asset, family).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, models.ErrNoArtifact
	}
	if err != nil {
		return nil, fmt.Errorf("open gcs artifact: %w", err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gcs artifact: %w", err)
	}
	return decode(b)
}

func (s *GCSStore) LastModified(ctx context.Context, asset, family string) (time.Time, bool, error) {
	attrs, err := s.object(asset, family).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("gcs artifact attrs: %w", err)
	}
	return attrs.Updated.UTC(), true, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

var _ repository.ArtifactStore = (*GCSStore)(nil)
