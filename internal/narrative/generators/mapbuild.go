package generators

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/geocoder"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

type Geometry struct {
	Type string `json:"type"`
	// Coordinates are [lng, lat] per GeoJSON.
	Coordinates [2]float64 `json:"coordinates"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// InteractiveMap is a GeoJSON FeatureCollection plus the viewport the front-end opens on.
type InteractiveMap struct {
	Type       string    `json:"type"`
	Features   []Feature `json:"features"`
	Center     Point     `json:"center"`
	Bounds     *Bounds   `json:"bounds,omitempty"`
	Unlocated  []string  `json:"unlocated"`
	PreviewRef string    `json:"previewRef,omitempty"`
}

// Located is a place whose coordinates were resolved during this build.
type Located struct {
	EntityID uuid.UUID
	Point    Point
}

type MapBuilder struct {
	geo         geocoder.Geocoder
	Concurrency int64
	Fallback    Point
	log         *logger.Logger
}

func NewMapBuilder(log *logger.Logger, geo geocoder.Geocoder) *MapBuilder {
	if log == nil {
		log = logger.NewNop()
	}
	fallback := Point{Lat: envutil.Float("MAP_FALLBACK_LAT", 0), Lng: envutil.Float("MAP_FALLBACK_LNG", 0)}
	if !types.ValidLatLng(fallback.Lat, fallback.Lng) {
		fallback = Point{}
	}
	return &MapBuilder{
		geo:         geo,
		Concurrency: int64(envutil.Int("GEOCODER_CONCURRENCY", 4)),
		Fallback:    fallback,
		log:         log.With("component", "MapBuilder"),
	}
}

/*
Build places every Place entity on the map.
  - stored coordinates are used when valid
  - otherwise the geocoder is asked, at most Concurrency lookups in flight
  - a lookup that fails or returns an out-of-range point leaves the place unlocated

The center is the midpoint of the bounding box of located points, or Fallback when none
were located. Only context cancellation fails the build.
*/
func (b *MapBuilder) Build(ctx context.Context, places []*types.KnowledgeEntity) (*InteractiveMap, []Located, error) {
	n := len(places)
	points := make([]*Point, n)
	fresh := make([]bool, n)

	limit := b.Concurrency
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)
	var wg sync.WaitGroup
	for i, p := range places {
		if p == nil {
			continue
		}
		if p.ValidCoordinates() {
			points[i] = &Point{Lat: *p.Latitude, Lng: *p.Longitude}
			continue
		}
		if b.geo == nil || strings.TrimSpace(p.Name) == "" {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			defer sem.Release(1)
			ll, err := b.geo.Locate(ctx, name)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					b.log.Warn("geocoding failed", "place", name, "error", err)
				}
				return
			}
			if ll == nil || !types.ValidLatLng(ll.Lat, ll.Lng) {
				return
			}
			points[i] = &Point{Lat: ll.Lat, Lng: ll.Lng}
			fresh[i] = true
		}(i, p.Name)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m := &InteractiveMap{
		Type:      "FeatureCollection",
		Features:  make([]Feature, 0, n),
		Unlocated: []string{},
	}
	var located []Located
	var bounds *Bounds
	for i, p := range places {
		if p == nil {
			continue
		}
		pt := points[i]
		if pt == nil {
			m.Unlocated = append(m.Unlocated, p.Name)
			continue
		}
		if fresh[i] {
			located = append(located, Located{EntityID: p.ID, Point: *pt})
		}
		m.Features = append(m.Features, Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "Point", Coordinates: [2]float64{pt.Lng, pt.Lat}},
			Properties: map[string]any{
				"id":           p.ID.String(),
				"name":         p.Name,
				"description":  p.Description,
				"significance": p.Significance,
			},
		})
		if bounds == nil {
			bounds = &Bounds{South: pt.Lat, North: pt.Lat, West: pt.Lng, East: pt.Lng}
			continue
		}
		bounds.South = math.Min(bounds.South, pt.Lat)
		bounds.North = math.Max(bounds.North, pt.Lat)
		bounds.West = math.Min(bounds.West, pt.Lng)
		bounds.East = math.Max(bounds.East, pt.Lng)
	}
	m.Bounds = bounds
	if bounds != nil {
		m.Center = Point{Lat: (bounds.South + bounds.North) / 2, Lng: (bounds.West + bounds.East) / 2}
	} else {
		m.Center = b.Fallback
	}
	b.log.Info("map built", "places", n, "located", len(m.Features), "geocoded", len(located))
	return m, located, nil
}
