// Package format renders bot replies and digests as Telegram HTML.
// Everything user- or upstream-controlled goes through html.EscapeString.
package format

import (
	"fmt"
	"html"
	"strings"

	"infopalbot/internal/clients"
)

// compass covers eight wind directions, 45 degrees apart.
var compass = []string{"Северный", "С-В", "Восточный", "Ю-В", "Южный", "Ю-З", "Западный", "С-З"}

// maxEventDescription limits event descriptions inside digests.
const maxEventDescription = 70

// Weather renders a current-weather report.
func Weather(city string, report *clients.WeatherReport) string {
	name := report.Name
	if name == "" {
		name = city
	}
	description := report.Weather[0].Description
	if description != "" {
		runes := []rune(description)
		description = strings.ToUpper(string(runes[0])) + string(runes[1:])
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>Погода в городе %s:</b>\n", html.EscapeString(name)))
	b.WriteString(fmt.Sprintf("🌡️ Температура: %.1f°C (ощущается как %.1f°C)\n", report.Main.Temp, report.Main.FeelsLike))
	b.WriteString(fmt.Sprintf("💧 Влажность: %d%%\n", report.Main.Humidity))
	b.WriteString(fmt.Sprintf("💨 Ветер: %.1f м/с%s\n", report.Wind.Speed, windDirection(report.Wind.Deg)))
	b.WriteString(fmt.Sprintf("☀️ Описание: %s", html.EscapeString(description)))
	return b.String()
}

// WeatherDigest renders the scheduled variant of the weather report.
func WeatherDigest(city string, report *clients.WeatherReport) string {
	description := report.Weather[0].Description
	if description != "" {
		runes := []rune(description)
		description = strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔔 <b>Прогноз погоды для г. %s:</b>\n", html.EscapeString(city)))
	b.WriteString(fmt.Sprintf("🌡️ Температура: %.1f°C (ощущается как %.1f°C)\n", report.Main.Temp, report.Main.FeelsLike))
	b.WriteString(fmt.Sprintf("☀️ Описание: %s", html.EscapeString(description)))
	return b.String()
}

func windDirection(deg *int) string {
	if deg == nil {
		return ""
	}
	// Normalize so negative degrees stay within the compass table.
	d := ((*deg % 360) + 360) % 360
	return ", " + compass[d/45]
}

// News renders a numbered headline list with source links.
func News(header string, articles []clients.Article) string {
	lines := []string{fmt.Sprintf("<b>📰 %s</b>", html.EscapeString(header))}
	for i, article := range articles {
		title := article.Title
		if title == "" {
			title = "Без заголовка"
		}
		source := article.Source.Name
		if source == "" {
			source = "Неизвестный источник"
		}
		url := article.URL
		if url == "" {
			url = "#"
		}
		lines = append(lines, fmt.Sprintf("%d. <a href='%s'>%s</a> (%s)",
			i+1, url, html.EscapeString(title), html.EscapeString(source)))
	}
	return strings.Join(lines, "\n")
}

// Events renders an event digest for a city. Descriptions are truncated
// to keep digests short.
func Events(city string, events []clients.Event) string {
	lines := []string{fmt.Sprintf("<b>🎉 Ближайшие события в г. %s:</b>", html.EscapeString(city))}
	for i, event := range events {
		title := event.Title
		if title == "" {
			title = "Без заголовка"
		}
		url := event.SiteURL
		if url == "" {
			url = "#"
		}
		line := fmt.Sprintf("%d. <a href='%s'>%s</a>", i+1, url, html.EscapeString(title))
		if desc := Truncate(strings.TrimSpace(event.Description), maxEventDescription); desc != "" {
			line += fmt.Sprintf("\n   <i>%s</i>", html.EscapeString(desc))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n\n")
}

// Truncate cuts s to max runes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
