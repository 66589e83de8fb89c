package cryptocompare

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ForecastPull/internal/domain/models"
	drepo "ForecastPull/internal/domain/repository"
	"ForecastPull/internal/service/ratelimit"
	xhttp "ForecastPull/pkg/http"
	"ForecastPull/pkg/logger"
)

const (
	histoHourPath = "/data/v2/histohour"
	maxPageLimit  = 2000
)

// Config holds the CryptoCompare client settings.
type Config struct {
	BaseURL           string
	APIKey            string
	Quote             string
	Timeout           time.Duration
	PageLimit         int
	RequestsPerSecond float64
	Retries           int
}

// Client implements MarketData over the histohour endpoint.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	l       *logger.Logger
}

// New creates a CryptoCompare market data source.
func New(cfg Config, l *logger.Logger) drepo.MarketData {
	if cfg.PageLimit <= 0 || cfg.PageLimit > maxPageLimit {
		cfg.PageLimit = maxPageLimit
	}
	if cfg.Quote == "" {
		cfg.Quote = "USD"
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	opts := []xhttp.ClientOption{
		xhttp.WithTimeout(cfg.Timeout),
		xhttp.WithRetry(cfg.Retries, 500*time.Millisecond),
	}
	if cfg.APIKey != "" {
		opts = append(opts, xhttp.WithHeader("authorization", "Apikey "+cfg.APIKey))
	}
	return &Client{
		cfg:     cfg,
		http:    xhttp.NewClient(opts...),
		limiter: ratelimit.New(),
		l:       l.Component("cryptocompare"),
	}
}

type histoPoint struct {
	Time  int64   `json:"time"`
	Close float64 `json:"close"`
}

type histoResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		TimeFrom int64        `json:"TimeFrom"`
		TimeTo   int64        `json:"TimeTo"`
		Data     []histoPoint `json:"Data"`
	} `json:"Data"`
}

// Fetch returns the hourly closes of asset for [start, end], oldest first. Pages are requested
// backwards from end. Hours the exchange reports with a zero close (before listing) are dropped.
func (c *Client) Fetch(ctx context.Context, asset string, start, end time.Time) (models.Series, error) {
	start, end = start.UTC().Truncate(time.Hour), end.UTC().Truncate(time.Hour)
	if end.Before(start) {
		return nil, nil
	}

	byTime := make(map[int64]float64)
	toTs := end.Unix()
	for toTs >= start.Unix() {
		remaining := int((toTs - start.Unix()) / 3600)
		limit := c.cfg.PageLimit
		if remaining < limit {
			limit = max(remaining, 1)
		}

		page, err := c.page(ctx, asset, toTs, limit)
		if err != nil {
			return nil, fmt.Errorf("%w: %s histohour toTs=%d: %v", models.ErrFetchFailure, asset, toTs, err)
		}
		if len(page) == 0 {
			break
		}

		earliest := toTs
		for _, p := range page {
			if p.Time < earliest {
				earliest = p.Time
			}
			if p.Time < start.Unix() || p.Time > end.Unix() || p.Close <= 0 {
				continue
			}
			byTime[p.Time] = p.Close
		}
		if earliest >= toTs {
			break
		}
		toTs = earliest - 3600
	}

	out := make(models.Series, 0, len(byTime))
	for ts, v := range byTime {
		out = append(out, models.Point{Timestamp: time.Unix(ts, 0).UTC(), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	c.l.Debug("fetched hourly closes",
		logger.String("asset", asset),
		logger.Time("start", start),
		logger.Time("end", end),
		logger.Int("points", len(out)),
	)
	return out, nil
}

func (c *Client) page(ctx context.Context, asset string, toTs int64, limit int) ([]histoPoint, error) {
	if err := c.limiter.Wait(ctx, "histohour", 1, c.cfg.RequestsPerSecond); err != nil {
		return nil, err
	}

	query := map[string][]string{
		"fsym":  {strings.ToUpper(asset)},
		"tsym":  {c.cfg.Quote},
		"limit": {strconv.Itoa(limit)},
		"toTs":  {strconv.FormatInt(toTs, 10)},
	}
	var resp histoResponse
	if err := c.http.GetJSON(ctx, c.cfg.BaseURL+histoHourPath, query, &resp); err != nil {
		return nil, err
	}
	if resp.Response != "" && !strings.EqualFold(resp.Response, "Success") {
		return nil, fmt.Errorf("api error: %s", resp.Message)
	}
	return resp.Data.Data, nil
}
