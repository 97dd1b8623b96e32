// Package catalog holds the reference data behind the subscription dialog:
// the searchable city list, the KudaGo location slugs and the category
// sets for news and events.
package catalog

import (
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LocationSlugs maps lowercase city spellings to KudaGo location slugs.
var LocationSlugs = map[string]string{
	"москва":           "msk",
	"мск":              "msk",
	"moscow":           "msk",
	"санкт-петербург":  "spb",
	"спб":              "spb",
	"питер":            "spb",
	"saint petersburg": "spb",
	"новосибирск":      "nsk",
	"нск":              "nsk",
	"екатеринбург":     "ekb",
	"екб":              "ekb",
	"казань":           "kzn",
	"нижний новгород":  "nnv",
}

// NewsCategories maps NewsAPI category slugs to display labels.
var NewsCategories = map[string]string{
	"business":   "💼 Бизнес",
	"technology": "💻 Технологии",
	"science":    "🔬 Наука",
	"sports":     "⚽ Спорт",
	"health":     "🏥 Здоровье",
}

// EventCategories maps KudaGo category slugs to display labels.
var EventCategories = map[string]string{
	"concert":    "🎵 Концерты",
	"exhibition": "🖼️ Выставки",
	"festival":   "🎪 Фестивали",
	"theater":    "🎭 Театр",
	"cinema":     "🎬 Кино",
}

// defaultCities seeds the searchable list when no cities file is
// configured.
var defaultCities = []string{
	"Москва",
	"Санкт-Петербург",
	"Новосибирск",
	"Екатеринбург",
	"Казань",
	"Нижний Новгород",
	"Челябинск",
	"Самара",
	"Омск",
	"Ростов-на-Дону",
	"Уфа",
	"Красноярск",
	"Воронеж",
	"Пермь",
	"Волгоград",
}

// Catalog is the loaded city list.
type Catalog struct {
	cities []string
}

type citiesFile struct {
	Cities []string `yaml:"cities"`
}

// Load reads the city list from a YAML file, falling back to the
// built-in list when the path is empty or unreadable.
func Load(path string) *Catalog {
	if path == "" {
		return &Catalog{cities: defaultCities}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{"path": path, "error": err}).Warn("Failed to read cities file, using built-in list")
		return &Catalog{cities: defaultCities}
	}
	var parsed citiesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		logrus.WithFields(logrus.Fields{"path": path, "error": err}).Warn("Failed to parse cities file, using built-in list")
		return &Catalog{cities: defaultCities}
	}
	if len(parsed.Cities) == 0 {
		return &Catalog{cities: defaultCities}
	}
	logrus.WithFields(logrus.Fields{"path": path, "count": len(parsed.Cities)}).Info("Loaded city catalog")
	return &Catalog{cities: parsed.Cities}
}

// MinSearchLen is the minimum query length for a city search.
const MinSearchLen = 3

// maxSearchResults caps the number of matches offered as buttons.
const maxSearchResults = 10

// Search returns up to maxSearchResults cities containing the query,
// case-insensitive. Queries shorter than MinSearchLen match nothing.
func (c *Catalog) Search(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if len([]rune(query)) < MinSearchLen {
		return nil
	}
	var found []string
	for _, city := range c.cities {
		if strings.Contains(strings.ToLower(city), query) {
			found = append(found, city)
			if len(found) == maxSearchResults {
				break
			}
		}
	}
	return found
}

// SlugFor resolves a city name to its KudaGo location slug.
func SlugFor(city string) (string, bool) {
	slug, ok := LocationSlugs[strings.ToLower(strings.TrimSpace(city))]
	return slug, ok
}

// CityForSlug resolves a slug back to a display name, preferring the
// longest (fully spelled) alias.
func CityForSlug(slug string) string {
	best := slug
	bestLen := 0
	for name, s := range LocationSlugs {
		if s == slug && len(name) > bestLen {
			best = capitalize(name)
			bestLen = len(name)
		}
	}
	return best
}

// SupportedEventCities lists the cities with a KudaGo slug, one spelling
// per slug, sorted for stable display.
func SupportedEventCities() []string {
	seen := map[string]string{}
	for name, slug := range LocationSlugs {
		if cur, ok := seen[slug]; !ok || len(name) > len(cur) {
			seen[slug] = name
		}
	}
	var cities []string
	for _, name := range seen {
		cities = append(cities, capitalize(name))
	}
	sort.Strings(cities)
	return cities
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}
