// Package geo holds the static country and city reference table used for
// campaign targeting.
package geo

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	// World is the country code meaning "no country filter".
	World = "world"
	// AllCities is the city sentinel meaning "every city of the country".
	AllCities = "All"
)

// Country is a targetable country with its ordered city list
type Country struct {
	Code   string   `json:"code" yaml:"code"`
	Name   string   `json:"name" yaml:"name"`
	Cities []string `json:"cities" yaml:"cities"`
}

var countries = []Country{
	{
		Code:   World,
		Name:   "World",
		Cities: nil,
	},
	{
		Code:   "us",
		Name:   "United States",
		Cities: []string{AllCities, "New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia", "San Antonio", "San Diego", "Dallas", "San Jose"},
	},
	{
		Code:   "gb",
		Name:   "United Kingdom",
		Cities: []string{AllCities, "London", "Manchester", "Birmingham", "Leeds", "Glasgow", "Sheffield", "Bradford", "Liverpool", "Edinburgh", "Bristol"},
	},
	{
		Code:   "se",
		Name:   "Sweden",
		Cities: []string{AllCities, "Stockholm", "Gothenburg", "Malmö", "Uppsala", "Västerås", "Örebro", "Linköping", "Helsingborg", "Jönköping", "Norrköping"},
	},
	{
		Code:   "de",
		Name:   "Germany",
		Cities: []string{AllCities, "Berlin", "Hamburg", "Munich", "Cologne", "Frankfurt", "Stuttgart", "Düsseldorf", "Dortmund", "Essen", "Leipzig"},
	},
	{
		Code:   "fr",
		Name:   "France",
		Cities: []string{AllCities, "Paris", "Marseille", "Lyon", "Toulouse", "Nice", "Nantes", "Strasbourg", "Montpellier", "Bordeaux", "Lille"},
	},
	{
		Code:   "ca",
		Name:   "Canada",
		Cities: []string{AllCities, "Toronto", "Montreal", "Vancouver", "Calgary", "Edmonton", "Ottawa", "Winnipeg", "Quebec City", "Hamilton", "Kitchener"},
	},
	{
		Code:   "au",
		Name:   "Australia",
		Cities: []string{AllCities, "Sydney", "Melbourne", "Brisbane", "Perth", "Adelaide", "Gold Coast", "Newcastle", "Canberra", "Sunshine Coast", "Wollongong"},
	},
}

// Countries returns a copy of the table in display order
func Countries() []Country {
	out := make([]Country, len(countries))
	for i, c := range countries {
		out[i] = c.clone()
	}
	return out
}

// Lookup returns the country with the given code
func Lookup(code string) (Country, bool) {
	for _, c := range countries {
		if c.Code == code {
			return c.clone(), true
		}
	}
	return Country{}, false
}

// CitiesFor returns the ordered city list for a country.
// Unknown codes and World yield an empty list.
func CitiesFor(code string) []string {
	c, ok := Lookup(code)
	if !ok || len(c.Cities) == 0 {
		return []string{}
	}
	return c.Cities
}

// NameFor returns the display name of a country, or the code itself if unknown
func NameFor(code string) string {
	if c, ok := Lookup(code); ok {
		return c.Name
	}
	return code
}

// DefaultCity is the city selected after switching to the given country
func DefaultCity(code string) string {
	if cities := CitiesFor(code); len(cities) > 0 {
		return cities[0]
	}
	return AllCities
}

// CanonicalCity resolves user input to the table spelling of a city of the
// given country. Matching is case-insensitive and ignores Unicode
// composition differences ("MALMÖ" and a decomposed "malmö" both match).
func CanonicalCity(code, city string) (string, bool) {
	want := foldKey(city)
	if want == "" {
		return "", false
	}
	for _, c := range CitiesFor(code) {
		if foldKey(c) == want {
			return c, true
		}
	}
	return "", false
}

func foldKey(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func (c Country) clone() Country {
	if c.Cities != nil {
		cities := make([]string, len(c.Cities))
		copy(cities, c.Cities)
		c.Cities = cities
	}
	return c
}
