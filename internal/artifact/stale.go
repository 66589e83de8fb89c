package artifact

import (
	"context"
	"time"

	domrepo "ForecastPull/internal/domain/repository"
)

// IsStale reports whether the artifact of (asset, family) is missing or was last written
// at least interval before now.
func IsStale(ctx context.Context, s domrepo.ArtifactStore, asset, family string, interval time.Duration, now time.Time) (bool, error) {
	mod, ok, err := s.LastModified(ctx, asset, family)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Sub(mod) >= interval, nil
}
