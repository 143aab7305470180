package geo

import (
	"math"
	"sort"
	"strings"

	"github.com/ownerfi/dealflow/internal/model"
)

// earthRadiusMiles is the mean Earth radius used by the Haversine formula.
const earthRadiusMiles = 3959

// expansion steps tried when a radius query around a listing's city comes
// back empty.
var expansionRadii = []float64{60, 120}

// CityDistance is a city paired with its great-circle distance from a query
// origin, in miles.
type CityDistance struct {
	model.CityCoordinate
	Distance float64
}

// Haversine returns the great-circle distance in miles between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// CitiesWithinRadius returns every indexed city within radiusMiles of the
// origin city, sorted nearest first. The search crosses state lines; a metro
// area straddling a border matches cities on both sides. When the origin city
// is not in the index the result degrades to the origin state's cities with
// an unknown distance, so callers still get a usable same-state set.
func (ix *Index) CitiesWithinRadius(originCity, originState string, radiusMiles float64) []CityDistance {
	origin, ok := ix.Find(originCity, originState)
	if !ok {
		var out []CityDistance
		for _, c := range ix.InState(originState) {
			out = append(out, CityDistance{CityCoordinate: c, Distance: -1})
		}
		return out
	}
	return ix.CitiesWithinRadiusOfPoint(origin.Lat, origin.Lng, radiusMiles)
}

// CitiesWithinRadiusOfPoint is the coordinate form, used when a listing
// carries coordinates but its city name is not indexed. The boundary is
// inclusive.
func (ix *Index) CitiesWithinRadiusOfPoint(lat, lng, radiusMiles float64) []CityDistance {
	var out []CityDistance
	for _, c := range ix.cities {
		d := Haversine(lat, lng, c.Lat, c.Lng)
		if d <= radiusMiles {
			out = append(out, CityDistance{CityCoordinate: c, Distance: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// NearbyCityNames returns up to maxCities names near a listing's city for
// persistence, excluding the city itself. An empty result widens the radius
// through the expansion steps before giving up.
func (ix *Index) NearbyCityNames(city, state string, radiusMiles float64, maxCities int) []string {
	nearby := ix.CitiesWithinRadius(city, state, radiusMiles)
	for _, r := range expansionRadii {
		if len(nearby) > 1 || r <= radiusMiles {
			break
		}
		nearby = ix.CitiesWithinRadius(city, state, r)
	}

	names := make([]string, 0, len(nearby))
	for _, c := range nearby {
		if strings.EqualFold(c.Name, city) {
			continue
		}
		names = append(names, c.Name)
		if len(names) == maxCities {
			break
		}
	}
	return names
}
