package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"healthtrend/internal/metric"
	"healthtrend/internal/series"
)

const (
	samplesPath = "/samples"

	defaultMaxResponseBytes = 8 << 20
)

// HTTPOptions parameterise the JSON sample endpoint.
type HTTPOptions struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	UserAgent     string
	RatePerSecond float64
	Burst         int

	// MaxResponseBytes caps the response body; zero selects 8 MiB.
	MaxResponseBytes int64
}

// HTTPSource pulls daily samples from a JSON endpoint:
//
//	GET {base}/samples?kind=weight&from=2024-01-01&to=2024-05-20
//	{"kind":"weight","unit":"kg","samples":[{"day":"2024-05-19","value":73.4}]}
//
// Values reported in a non-base unit are converted on receipt.
type HTTPSource struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewHTTPSource constructs an HTTP sample source.
func NewHTTPSource(opts HTTPOptions, logger zerolog.Logger) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = defaultMaxResponseBytes
	}

	return &HTTPSource{
		opts:    opts,
		logger:  logger.With().Str("component", "http_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchSamples retrieves one kind's samples for [from, to].
func (h *HTTPSource) FetchSamples(ctx context.Context, kind metric.Kind, from, to series.Day) ([]series.Sample, error) {
	if h.baseURL == "" {
		return nil, fmt.Errorf("fetch samples: base url not configured")
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	query := url.Values{}
	query.Set("kind", string(kind))
	query.Set("from", from.String())
	query.Set("to", to.String())
	endpoint := h.baseURL + samplesPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create samples request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "healthtrend/1.0")
	}
	if h.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.opts.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send samples request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, h.opts.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read samples response: %w", err)
	}
	if int64(len(payload)) > h.opts.MaxResponseBytes {
		return nil, fmt.Errorf("samples response exceeds %d bytes", h.opts.MaxResponseBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var body samplesResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode samples response: %w", err)
	}
	if body.Kind != "" && body.Kind != string(kind) {
		return nil, fmt.Errorf("samples response kind %q does not match %q", body.Kind, kind)
	}

	unit := metric.MustLookup(kind).Base
	if body.Unit != "" {
		unit, err = metric.ParseUnit(body.Unit)
		if err != nil {
			return nil, fmt.Errorf("samples response: %w", err)
		}
	}

	samples := make([]series.Sample, 0, len(body.Samples))
	for _, item := range body.Samples {
		day, err := series.ParseDay(item.Day)
		if err != nil {
			return nil, fmt.Errorf("samples response: %w", err)
		}
		base, err := metric.ToBase(item.Value, kind, unit)
		if err != nil {
			return nil, fmt.Errorf("samples response: %w", err)
		}
		samples = append(samples, series.Sample{Day: day, Value: base})
	}

	h.logger.Debug().
		Str("kind", string(kind)).
		Int("samples", len(samples)).
		Str("unit", string(unit)).
		Msg("samples fetched")
	return filterRange(samples, from, to), nil
}

type samplesResponse struct {
	Kind    string `json:"kind"`
	Unit    string `json:"unit"`
	Samples []struct {
		Day   string  `json:"day"`
		Value float64 `json:"value"`
	} `json:"samples"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("sample feed error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("sample feed error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("sample feed error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("sample feed error (%d)", status)
}

var _ Source = (*HTTPSource)(nil)
