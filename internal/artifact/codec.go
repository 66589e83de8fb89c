// Package artifact persists fitted model state keyed by (asset, family).
package artifact

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"ForecastPull/internal/domain/models"
)

// objectName is the storage name of the artifact of one (asset, family).
func objectName(asset, family string) string {
	return fmt.Sprintf("%s__%s.msgpack", asset, family)
}

func encode(a *models.Artifact) ([]byte, error) {
	b, err := msgpack.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return b, nil
}

func decode(b []byte) (*models.Artifact, error) {
	var a models.Artifact
	if err := msgpack.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}
