package web

import (
	"cmp"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"

	"meteorite-explorer/internal/meteorite"
)

// Palette colors the mass distribution slices, cycled in order.
var Palette = []string{"#8884d8", "#82ca9d", "#ffc658", "#ff6f61"}

// TrendPoint is one point of the landings per year line chart.
type TrendPoint struct {
	Year  int   `json:"year"`
	Count int64 `json:"count"`
}

// MassSlice is one slice of the mass distribution pie chart.
type MassSlice struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
	Color    string `json:"color"`
}

// ClassBar is one bar of the classification chart.
type ClassBar struct {
	Classification string `json:"classification"`
	Count          int64  `json:"count"`
}

// TrendPoints orders the per year counts by year.
func TrendPoints(trends map[int]int64) []TrendPoint {
	points := make([]TrendPoint, 0, len(trends))
	for year, count := range trends {
		points = append(points, TrendPoint{Year: year, Count: count})
	}
	slices.SortFunc(points, func(a, b TrendPoint) int { return cmp.Compare(a.Year, b.Year) })
	return points
}

// MassSlices lists the present categories lightest first. Unknown
// categories follow in name order.
func MassSlices(distribution map[string]int64) []MassSlice {
	var keys []string
	for _, category := range meteorite.MassCategories {
		if _, ok := distribution[category]; ok {
			keys = append(keys, category)
		}
	}
	var extra []string
	for category := range distribution {
		if !slices.Contains(meteorite.MassCategories, category) {
			extra = append(extra, category)
		}
	}
	slices.Sort(extra)
	keys = append(keys, extra...)

	out := make([]MassSlice, 0, len(keys))
	for i, category := range keys {
		out = append(out, MassSlice{Category: category, Count: distribution[category], Color: Palette[i%len(Palette)]})
	}
	return out
}

// ClassBars orders classifications by count, most common first, then by
// name.
func ClassBars(classes map[string]int64) []ClassBar {
	bars := make([]ClassBar, 0, len(classes))
	for name, count := range classes {
		bars = append(bars, ClassBar{Classification: name, Count: count})
	}
	slices.SortFunc(bars, func(a, b ClassBar) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Classification, b.Classification)
	})
	return bars
}

const (
	suggestionDistance = 2
	suggestionLimit    = 5
)

// SuggestClasses returns known classifications within a small edit distance
// of query, closest and most common first.
func SuggestClasses(query string, classes map[string]int64) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	type candidate struct {
		name     string
		distance int
		count    int64
	}
	var candidates []candidate
	for name, count := range classes {
		d := levenshtein.ComputeDistance(query, strings.ToLower(name))
		if d == 0 || d > suggestionDistance {
			continue
		}
		candidates = append(candidates, candidate{name: name, distance: d, count: count})
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	out := make([]string, 0, min(len(candidates), suggestionLimit))
	for _, c := range candidates[:min(len(candidates), suggestionLimit)] {
		out = append(out, c.name)
	}
	return out
}
