// Package fingerprint derives the deterministic identity of a model variant from its configuration.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"ForecastPull/internal/domain/models"
)

// Of returns the variant identity of spec.
//
// The name keeps the readable family/window prefix; when hyperparameters are present a short
// digest of their canonical form is appended so two variants differing only in a
// hyperparameter never share a name.
func Of(spec models.ModelSpec) models.ModelVariant {
	name := fmt.Sprintf("%s_TD%d_MU%d_FD%d_FF%d_FH%d",
		spec.Family,
		spec.TrainingWindow,
		spec.RetrainInterval,
		spec.ForecastWindow,
		spec.ForecastCadence,
		spec.ForecastHorizon,
	)
	inner := Inner(spec.Hyperparameters)
	if inner != "" {
		name += "_" + digest(inner)
	}
	return models.ModelVariant{
		Family:         spec.Family,
		Name:           name,
		ExternalParams: External(spec),
		InnerParams:    inner,
	}
}

// External renders the window, cadence and horizon sizes.
func External(spec models.ModelSpec) string {
	return fmt.Sprintf("[TD=%d]_[MU=%d]_[FD=%d]_[FF=%d]_[FH=%d]",
		spec.TrainingWindow,
		spec.RetrainInterval,
		spec.ForecastWindow,
		spec.ForecastCadence,
		spec.ForecastHorizon,
	)
}

// Inner renders hyperparameters as [k=v] pairs in key order.
func Inner(hp map[string]any) string {
	if len(hp) == 0 {
		return ""
	}
	keys := make([]string, 0, len(hp))
	for k := range hp {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = "[" + k + "=" + models.FormatParam(hp[k]) + "]"
	}
	return strings.Join(parts, "_")
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}
