package geo

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/ownerfi/dealflow/internal/cache"
)

// milesPerDegreeLat is the approximate north-south span of one degree of
// latitude, used to size the coarse bounding box around the match circle.
const milesPerDegreeLat = 69.0

// BuyerFilter is a precomputed match set for a buyer's city and radius. It is
// built once and cached so steady-state matching is a set lookup or one
// distance check, not a scan of the whole index.
type BuyerFilter struct {
	City        string
	State       string
	RadiusMiles float64
	Cities      []string
	Bounds      *geom.Bounds
	ComputedAt  time.Time

	originLat float64
	originLng float64
	hasOrigin bool
	citySet   map[string]struct{}
}

// Matcher builds and caches buyer filters against the city index.
type Matcher struct {
	index   *Index
	filters *cache.TTL[string, *BuyerFilter]
}

// NewMatcher wraps the index with a filter cache. ttl bounds filter staleness
// against index updates shipped in new binaries.
func NewMatcher(ix *Index, ttl time.Duration) *Matcher {
	return &Matcher{
		index:   ix,
		filters: cache.NewTTL[string, *BuyerFilter](ttl),
	}
}

// Filter returns the precomputed filter for a city, state and radius,
// building it on first use. An unknown city yields a filter containing only
// the city itself, with no origin coordinate.
func (m *Matcher) Filter(city, state string, radiusMiles float64) *BuyerFilter {
	key := fmt.Sprintf("%s|%s|%g", strings.ToLower(city), strings.ToLower(state), radiusMiles)
	if f, ok := m.filters.Get(key); ok {
		return f
	}
	f := m.build(city, state, radiusMiles)
	m.filters.Set(key, f)
	return f
}

func (m *Matcher) build(city, state string, radiusMiles float64) *BuyerFilter {
	f := &BuyerFilter{
		City:        city,
		State:       state,
		RadiusMiles: radiusMiles,
		ComputedAt:  time.Now(),
		citySet:     make(map[string]struct{}),
	}

	if origin, ok := m.index.Find(city, state); ok {
		f.originLat = origin.Lat
		f.originLng = origin.Lng
		f.hasOrigin = true
		f.Bounds = circleBounds(origin.Lat, origin.Lng, radiusMiles)
	}

	nearby := m.index.CitiesWithinRadius(city, state, radiusMiles)
	if len(nearby) == 0 {
		f.Cities = []string{city}
		f.citySet[strings.ToLower(city)] = struct{}{}
		return f
	}

	for _, c := range nearby {
		f.Cities = append(f.Cities, c.Name)
		f.citySet[strings.ToLower(c.Name)] = struct{}{}
	}
	return f
}

// circleBounds is the box enclosing the full match circle: latitude span from
// the fixed miles-per-degree figure, longitude span widened by the latitude's
// convergence factor. The box contains every point within the radius.
func circleBounds(lat, lng, radiusMiles float64) *geom.Bounds {
	dLat := radiusMiles / milesPerDegreeLat
	dLng := radiusMiles / (milesPerDegreeLat * math.Cos(lat*math.Pi/180))

	b := geom.NewBounds(geom.XY)
	b.Extend(geom.NewPointFlat(geom.XY, []float64{lng - dLng, lat - dLat}))
	b.Extend(geom.NewPointFlat(geom.XY, []float64{lng + dLng, lat + dLat}))
	return b
}

// MatchesCity reports whether a listing's city is in the filter's match set.
func (f *BuyerFilter) MatchesCity(city string) bool {
	_, ok := f.citySet[strings.ToLower(city)]
	return ok
}

// MatchesPoint reports whether a coordinate lies within the filter's radius
// of its origin city, by great-circle distance. The bounding box only screens
// out far-away points before the distance math; it never admits a point the
// distance check would reject. False when the origin city has no coordinate.
func (f *BuyerFilter) MatchesPoint(lat, lng float64) bool {
	if !f.hasOrigin {
		return false
	}
	if f.Bounds != nil && !f.Bounds.OverlapsPoint(geom.XY, geom.Coord{lng, lat}) {
		return false
	}
	return Haversine(f.originLat, f.originLng, lat, lng) <= f.RadiusMiles
}
