package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/pkg/httpx"
	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geocoder resolves a place name. A name it cannot resolve yields (nil, nil).
type Geocoder interface {
	Locate(ctx context.Context, name string) (*LatLng, error)
}

type Config struct {
	BaseURL    string
	UserAgent  string
	Language   string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:    strings.TrimRight(envutil.String("GEOCODER_BASE_URL", ""), "/"),
		UserAgent:  envutil.String("GEOCODER_USER_AGENT", "qalam-backend/1.0"),
		Language:   envutil.String("DEFAULT_LANGUAGE_CODE", "ar"),
		Timeout:    envutil.Seconds("GEOCODER_TIMEOUT_SECONDS", 15*time.Second),
		MaxRetries: envutil.Int("GEOCODER_MAX_RETRIES", 3),
	}
}

// Nominatim speaks the OSM Nominatim search API (`/search?format=json`), which most
// self-hosted and commercial geocoders also expose.
type Nominatim struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// New returns nil when no base URL is configured; callers treat a nil Geocoder as "no
// geocoding available".
func New(log *logger.Logger, cfg Config) Geocoder {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Nominatim{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("service", "Geocoder"),
	}
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string       { return fmt.Sprintf("geocoder http %d: %s", e.StatusCode, e.Body) }
func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

type searchHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *Nominatim) Locate(ctx context.Context, name string) (*LatLng, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "json")
	q.Set("limit", "1")
	if g.cfg.Language != "" {
		q.Set("accept-language", g.cfg.Language)
	}
	endpoint := g.cfg.BaseURL + "/search?" + q.Encode()

	backoff := time.Second
	for attempt := 0; ; attempt++ {
		resp, raw, err := g.get(ctx, endpoint)
		if err == nil {
			return parseHits(raw)
		}
		if !httpx.IsRetryableError(err) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, err
		}
		if attempt >= g.cfg.MaxRetries {
			return nil, apperrors.Wrap(apperrors.ErrTransientNetwork, err)
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		g.log.Warn("geocoder request retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

func (g *Nominatim) get(ctx context.Context, endpoint string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(raw)
		if len(body) > 500 {
			body = body[:500]
		}
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: body}
	}
	return resp, raw, nil
}

func parseHits(raw []byte) (*LatLng, error) {
	var hits []searchHit
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil, fmt.Errorf("decode geocoder response: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(hits[0].Lat), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(hits[0].Lon), 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, nil
	}
	return &LatLng{Lat: lat, Lng: lng}, nil
}
