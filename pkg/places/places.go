// Package places finds amenities near a property and renders them as a
// markdown answer.
package places

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// Query asks for places of one type around Origin.
type Query struct {
	Origin       LatLng
	PlaceType    string
	RadiusMeters int
	MaxResults   int
}

// Place is one search result. Rating and OpenNow are nil when the provider
// did not report them.
type Place struct {
	Name       string
	Address    string
	Location   LatLng
	DistanceKm float64
	Rating     *float64
	OpenNow    *bool
}

// Searcher finds places near an origin, nearest first.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Place, error)
}

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FormatDistance renders kilometers with two decimals, or whole meters below 1km.
func FormatDistance(km float64) string {
	if km >= 1 {
		return fmt.Sprintf("%.2f km", km)
	}
	return fmt.Sprintf("%d m", int(math.Round(km*1000)))
}

// FormatNearby renders results as the markdown answer shown to guests.
func FormatNearby(results []Place, placeType, propertyName string) string {
	if len(results) == 0 {
		return fmt.Sprintf("No %ss found within the search radius.", displayType(placeType, false))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Nearest %ss from %s\n\n", displayType(placeType, true), propertyName)
	for i, p := range results {
		fmt.Fprintf(&b, "**%d. %s**\n", i+1, p.Name)
		fmt.Fprintf(&b, "- Distance: %s\n", FormatDistance(p.DistanceKm))
		fmt.Fprintf(&b, "- Address: %s\n", p.Address)
		if p.Rating != nil && *p.Rating > 0 {
			fmt.Fprintf(&b, "- Rating: %.1f/5.0\n", *p.Rating)
		}
		if p.OpenNow != nil {
			status := "Closed now"
			if *p.OpenNow {
				status = "Open now"
			}
			fmt.Fprintf(&b, "- Status: %s\n", status)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// displayType turns "shopping_mall" into "shopping mall" or "Shopping Mall".
func displayType(placeType string, title bool) string {
	words := strings.Fields(strings.ReplaceAll(placeType, "_", " "))
	if !title {
		return strings.Join(words, " ")
	}
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
