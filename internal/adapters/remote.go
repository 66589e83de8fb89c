package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ForecastPull/internal/domain/models"
	xhttp "ForecastPull/pkg/http"
)

// Remote delegates fit and forecast of one family to an out-of-process model service
// exposing POST /fit and POST /forecast.
type Remote struct {
	family  string
	baseURL string
	client  *xhttp.Client
}

// NewRemote builds a remote adapter for family. retries counts total attempts per call.
func NewRemote(family, baseURL string, timeout time.Duration, retries int) *Remote {
	return &Remote{
		family:  family,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithRetry(retries, 100*time.Millisecond)),
	}
}

type remotePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type remoteArtifact struct {
	Coefficients map[string]float64 `json:"coefficients"`
	Payload      []byte             `json:"payload,omitempty"`
}

type fitRequest struct {
	Family          string         `json:"family"`
	Training        []remotePoint  `json:"training"`
	Hyperparameters map[string]any `json:"hyperparameters,omitempty"`
}

type forecastRequest struct {
	Family   string         `json:"family"`
	Artifact remoteArtifact `json:"artifact"`
	Input    []remotePoint  `json:"input"`
	Horizon  int            `json:"horizon"`
}

type forecastResponse struct {
	Values []float64 `json:"values"`
}

func toRemote(s models.Series) []remotePoint {
	out := make([]remotePoint, len(s))
	for i, p := range s {
		out[i] = remotePoint{Timestamp: p.Timestamp, Value: p.Value}
	}
	return out
}

func (r *Remote) Fit(ctx context.Context, training models.Series, hp map[string]any) (*models.Artifact, error) {
	if _, err := checkSeries(training, 1); err != nil {
		return nil, err
	}
	var resp remoteArtifact
	req := fitRequest{Family: r.family, Training: toRemote(training), Hyperparameters: hp}
	if err := r.client.PostJSON(ctx, r.baseURL+"/fit", req, &resp); err != nil {
		return nil, fmt.Errorf("remote fit %s: %w", r.family, err)
	}
	art := newArtifact(training, resp.Coefficients)
	art.Payload = resp.Payload
	return art, nil
}

func (r *Remote) Forecast(ctx context.Context, a *models.Artifact, input models.Series, horizon int) ([]float64, error) {
	var resp forecastResponse
	req := forecastRequest{
		Family:   r.family,
		Artifact: remoteArtifact{Coefficients: a.Coefficients, Payload: a.Payload},
		Input:    toRemote(input),
		Horizon:  horizon,
	}
	if err := r.client.PostJSON(ctx, r.baseURL+"/forecast", req, &resp); err != nil {
		return nil, fmt.Errorf("remote forecast %s: %w", r.family, err)
	}
	if len(resp.Values) != horizon {
		return nil, fmt.Errorf("remote forecast %s: got %d values, want %d", r.family, len(resp.Values), horizon)
	}
	return resp.Values, nil
}
