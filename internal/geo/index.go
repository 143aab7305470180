// Package geo answers radius queries against a static city coordinate index.
// The index ships embedded in the binary so lookups never leave the process.
package geo

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ownerfi/dealflow/internal/model"
)

//go:embed cities.json
var citiesJSON []byte

type cityRecord struct {
	Name       string  `json:"name"`
	State      string  `json:"state"`
	StateCode  string  `json:"stateCode"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Population int     `json:"population,omitempty"`
}

// Index holds the city table with a per-state view for fuzzy name lookups.
type Index struct {
	cities  []model.CityCoordinate
	byState map[string][]model.CityCoordinate
	states  map[string]string // lowercase full state name -> two-letter code
}

// NewIndex decodes the embedded city table. States are keyed by their
// two-letter code; full state names in queries are translated on lookup.
func NewIndex() (*Index, error) {
	var records []cityRecord
	if err := json.Unmarshal(citiesJSON, &records); err != nil {
		return nil, eris.Wrap(err, "geo: decode embedded city table")
	}

	ix := &Index{
		byState: make(map[string][]model.CityCoordinate),
		states:  make(map[string]string),
	}
	for _, r := range records {
		c := model.CityCoordinate{
			Name:  r.Name,
			State: strings.ToUpper(r.StateCode),
			Lat:   r.Lat,
			Lng:   r.Lng,
		}
		ix.cities = append(ix.cities, c)
		ix.byState[c.State] = append(ix.byState[c.State], c)
		ix.states[strings.ToLower(r.State)] = c.State
	}
	return ix, nil
}

// normalizeState accepts either a two-letter code or a full state name.
func (ix *Index) normalizeState(state string) string {
	s := strings.TrimSpace(state)
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	if code, ok := ix.states[strings.ToLower(s)]; ok {
		return code
	}
	return strings.ToUpper(s)
}

// Find resolves a city by name within a state, tolerating the usual
// variations: Saint/St., Fort/Ft., Mount/Mt., directional abbreviations, and
// added or dropped suffixes like Beach or Heights.
func (ix *Index) Find(city, state string) (model.CityCoordinate, bool) {
	candidates := ix.byState[ix.normalizeState(state)]
	if len(candidates) == 0 {
		return model.CityCoordinate{}, false
	}

	for _, c := range candidates {
		if strings.EqualFold(c.Name, city) {
			return c, true
		}
	}

	want := normalizeCityName(city)
	for _, c := range candidates {
		if normalizeCityName(c.Name) == want {
			return c, true
		}
	}

	for _, suffix := range citySuffixes {
		withSuffix := want + " " + suffix
		for _, c := range candidates {
			if normalizeCityName(c.Name) == withSuffix {
				return c, true
			}
		}
	}
	for _, suffix := range citySuffixes {
		if trimmed, ok := strings.CutSuffix(want, " "+suffix); ok {
			for _, c := range candidates {
				if normalizeCityName(c.Name) == trimmed {
					return c, true
				}
			}
		}
	}

	for _, c := range candidates {
		name := normalizeCityName(c.Name)
		if strings.HasPrefix(name, want) || strings.HasPrefix(want, name) {
			return c, true
		}
	}

	return model.CityCoordinate{}, false
}

// All returns every city in the index.
func (ix *Index) All() []model.CityCoordinate {
	return ix.cities
}

// InState returns every city in the given state.
func (ix *Index) InState(state string) []model.CityCoordinate {
	return ix.byState[ix.normalizeState(state)]
}

var citySuffixes = []string{
	"beach", "city", "park", "heights", "springs", "falls",
	"lake", "lakes", "hills", "village", "township",
}

var cityPrefixes = []struct{ from, to string }{
	{"saint ", "st. "},
	{"st ", "st. "},
	{"fort ", "ft. "},
	{"ft ", "ft. "},
	{"pt ", "port "},
	{"mount ", "mt. "},
	{"mt ", "mt. "},
	{"n ", "north "},
	{"s ", "south "},
	{"e ", "east "},
	{"w ", "west "},
}

func normalizeCityName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for _, p := range cityPrefixes {
		if strings.HasPrefix(s, p.from) {
			s = p.to + s[len(p.from):]
			break
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
