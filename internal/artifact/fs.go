package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"ForecastPull/internal/domain/models"
	"ForecastPull/internal/domain/repository"
)

// FSStore keeps one file per (asset, family) under dir. Writes go to a temp file in the same
// directory followed by a rename, so readers never see a partial artifact.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(asset, family string) string {
	return filepath.Join(s.dir, objectName(asset, family))
}

func (s *FSStore) Save(ctx context.Context, asset, family string, a *models.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encode(a)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, objectName(asset, family)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(asset, family)); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

func (s *FSStore) Load(ctx context.Context, asset, family string) (*models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(asset, family))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, models.ErrNoArtifact
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return decode(b)
}

func (s *FSStore) LastModified(_ context.Context, asset, family string) (time.Time, bool, error) {
	fi, err := os.Stat(s.path(asset, family))
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stat artifact: %w", err)
	}
	return fi.ModTime().UTC(), true, nil
}

var _ repository.ArtifactStore = (*FSStore)(nil)
