package meteorite

import (
	"math"
	"testing"
)

func TestParseSort(t *testing.T) {
	cases := []struct {
		raw  string
		want SortOrder
	}{
		{"name", SortOrder{Property: PropertyName}},
		{"mass,desc", SortOrder{Property: PropertyMass, Desc: true}},
		{"Year,ASC", SortOrder{Property: PropertyYear}},
		{" reclat , desc ", SortOrder{Property: PropertyRecLat, Desc: true}},
	}
	for _, tc := range cases {
		got, err := ParseSort(tc.raw)
		if err != nil {
			t.Fatalf("ParseSort(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseSort(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}

	for _, raw := range []string{"", "weight", "name,sideways", "name,asc,desc"} {
		if _, err := ParseSort(raw); !IsInvalidQuery(err) {
			t.Fatalf("ParseSort(%q): expected invalid query, got %v", raw, err)
		}
	}
}

func TestPageRequestNormalize(t *testing.T) {
	limits := PageLimits{DefaultSize: 20, MaxSize: 100}

	got, err := PageRequest{Page: -3}.Normalize(limits)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Page != 0 || got.Size != 20 {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if len(got.Sort) != 1 || got.Sort[0] != (SortOrder{Property: PropertyID}) {
		t.Fatalf("default sort: %+v", got.Sort)
	}

	clamped, _ := PageRequest{Page: 2, Size: 5000}.Normalize(limits)
	if clamped.Size != 100 || clamped.Offset() != 200 {
		t.Fatalf("size not clamped: %+v", clamped)
	}

	if _, err := (PageRequest{Sort: []SortOrder{{Property: "color"}}}).Normalize(limits); !IsInvalidQuery(err) {
		t.Fatalf("expected invalid sort, got %v", err)
	}
}

func TestPageRequestNormalizeHugePage(t *testing.T) {
	got, err := PageRequest{Page: math.MaxInt, Size: 20}.Normalize(DefaultPageLimits)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if off := got.Offset(); off < 0 || off > math.MaxInt-got.Size {
		t.Fatalf("offset out of range: %d", off)
	}
	if off := (PageRequest{Page: math.MaxInt, Size: 20}).Offset(); off != math.MaxInt {
		t.Fatalf("unnormalized offset must saturate, got %d", off)
	}
}

func TestNewPage(t *testing.T) {
	empty := NewPage(nil, PageRequest{Page: 0, Size: 10}, 0)
	if empty.Content == nil || !empty.Empty || empty.TotalPages != 0 || !empty.First || !empty.Last {
		t.Fatalf("unexpected empty page: %+v", empty)
	}

	middle := NewPage(make([]Meteorite, 10), PageRequest{Page: 1, Size: 10}, 35)
	if middle.TotalPages != 4 || middle.First || middle.Last || middle.NumberOfElements != 10 {
		t.Fatalf("unexpected middle page: %+v", middle)
	}
}

func TestFilterIsZero(t *testing.T) {
	if !(Filter{Name: "  "}).IsZero() {
		t.Fatalf("blank name must not constrain")
	}
	if (Filter{Year: year(1900)}).IsZero() {
		t.Fatalf("year filter reported as zero")
	}
}

func TestHasLocation(t *testing.T) {
	cases := []struct {
		name string
		m    Meteorite
		want bool
	}{
		{"both set", Meteorite{RecLat: f64(50.7), RecLong: f64(6.1)}, true},
		{"missing longitude", Meteorite{RecLat: f64(50.7)}, false},
		{"zero latitude", Meteorite{RecLat: f64(0), RecLong: f64(6.1)}, false},
		{"none", Meteorite{}, false},
	}
	for _, tc := range cases {
		if got := tc.m.HasLocation(); got != tc.want {
			t.Fatalf("%s: HasLocation() = %v", tc.name, got)
		}
	}
}
