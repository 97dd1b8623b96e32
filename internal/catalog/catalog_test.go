package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSearch(t *testing.T) {
	c := Load("")

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "exact", query: "Казань", want: []string{"Казань"}},
		{name: "case insensitive", query: "мОскВа", want: []string{"Москва"}},
		{name: "substring", query: "новгород", want: []string{"Нижний Новгород"}},
		{name: "too short", query: "мо", want: nil},
		{name: "no match", query: "Атлантида", want: nil},
		{name: "trimmed", query: "  Омск  ", want: []string{"Омск"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Search(tt.query)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Search(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cities.yaml")
	content := "cities:\n  - Тула\n  - Рязань\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c := Load(path)
	if got := c.Search("Тула"); len(got) != 1 || got[0] != "Тула" {
		t.Errorf("Search after Load = %v, want [Тула]", got)
	}
	if got := c.Search("Москва"); got != nil {
		t.Errorf("built-in list leaked into file-backed catalog: %v", got)
	}
}

func TestLoadFallsBackOnBadFile(t *testing.T) {
	c := Load("/nonexistent/cities.yaml")
	if got := c.Search("Москва"); len(got) == 0 {
		t.Error("expected built-in list after failed load")
	}
}

func TestSlugFor(t *testing.T) {
	tests := []struct {
		city   string
		want   string
		wantOK bool
	}{
		{city: "Москва", want: "msk", wantOK: true},
		{city: "мск", want: "msk", wantOK: true},
		{city: "Санкт-Петербург", want: "spb", wantOK: true},
		{city: "ПИТЕР", want: "spb", wantOK: true},
		{city: "  Казань ", want: "kzn", wantOK: true},
		{city: "Воронеж", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := SlugFor(tt.city)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("SlugFor(%q) = (%q, %v), want (%q, %v)", tt.city, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCityForSlug(t *testing.T) {
	// Must prefer the fully spelled alias over the short form.
	if got := CityForSlug("spb"); got != "Санкт-петербург" {
		t.Errorf("CityForSlug(spb) = %q, want Санкт-петербург", got)
	}
	if got := CityForSlug("kzn"); got != "Казань" {
		t.Errorf("CityForSlug(kzn) = %q, want Казань", got)
	}
	if got := CityForSlug("unknown"); got != "unknown" {
		t.Errorf("CityForSlug(unknown) = %q, want the slug back", got)
	}
}

func TestSupportedEventCities(t *testing.T) {
	cities := SupportedEventCities()
	if len(cities) != 6 {
		t.Fatalf("got %d cities, want 6: %v", len(cities), cities)
	}
	for i := 1; i < len(cities); i++ {
		if cities[i-1] > cities[i] {
			t.Errorf("cities not sorted: %v", cities)
			break
		}
	}
}
