package meteorite

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func f64(v float64) *float64 { return &v }

func year(v int) *int { return &v }

func sampleRecords() []Meteorite {
	return []Meteorite{
		{ID: 1, Name: "Aachen", RecClass: "L5", Fall: "Fell", Mass: f64(21), Year: year(1880), RecLat: f64(50.775), RecLong: f64(6.08333)},
		{ID: 2, Name: "Aarhus", RecClass: "H6", Fall: "Fell", Mass: f64(720), Year: year(1951), RecLat: f64(56.18333), RecLong: f64(10.23333)},
		{ID: 6, Name: "Abee", RecClass: "EH4", Fall: "Fell", Mass: f64(107000), Year: year(1952), RecLat: f64(54.21667), RecLong: f64(-113)},
		{ID: 10, Name: "Acapulco", RecClass: "Acapulcoite", Fall: "Fell", Mass: f64(1914), Year: year(1976), RecLat: f64(16.88333), RecLong: f64(-99.9)},
		{ID: 370, Name: "Achiras", RecClass: "L6", Fall: "Fell", Mass: f64(780), Year: year(1902), RecLat: f64(-33.16667), RecLong: f64(-64.95)},
		{ID: 379, Name: "Adhi Kot", RecClass: "EH4", Fall: "Fell", Mass: f64(4239), Year: year(1919), RecLat: f64(32.1), RecLong: f64(71.8)},
		{ID: 390, Name: "Agen", RecClass: "H5", Fall: "Fell", Mass: f64(30000), Year: year(1814)},
		{ID: 5000, Name: "Allan Hills 77005", RecClass: "Martian (shergottite)", Fall: "Found", Mass: f64(482.5), Year: year(1977), RecLat: f64(0), RecLong: f64(0)},
		{ID: 5001, Name: "Unknown mass", RecClass: "L5", Fall: "Found"},
	}
}

func newSeededStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	if err := store.SaveAll(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func ids(page Page) []int64 {
	out := make([]int64, 0, len(page.Content))
	for _, m := range page.Content {
		out = append(out, m.ID)
	}
	return out
}

func mustNormalize(t *testing.T, req PageRequest) PageRequest {
	t.Helper()
	req, err := req.Normalize(DefaultPageLimits)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return req
}

func TestMemoryStoreGet(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	got, err := store.Get(ctx, 6)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Abee" || *got.Mass != 107000 {
		t.Fatalf("unexpected record: %+v", got)
	}

	*got.Mass = 1
	again, _ := store.Get(ctx, 6)
	if *again.Mass != 107000 {
		t.Fatalf("store leaked internal pointer")
	}

	if _, err := store.Get(ctx, 404); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreSearchFilters(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()
	page := mustNormalize(t, PageRequest{})

	cases := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"all", Filter{}, []int64{1, 2, 6, 10, 370, 379, 390, 5000, 5001}},
		{"name contains, any case", Filter{Name: "AC"}, []int64{1, 10, 370}},
		{"class equals ignoring case", Filter{RecClass: "eh4"}, []int64{6, 379}},
		{"class is not a substring match", Filter{RecClass: "L"}, []int64{}},
		{"fall", Filter{Fall: "found"}, []int64{5000, 5001}},
		{"year", Filter{Year: year(1952)}, []int64{6}},
		{"min mass excludes unknown", Filter{MinMass: f64(4239)}, []int64{6, 379, 390}},
		{"max mass inclusive", Filter{MaxMass: f64(720)}, []int64{1, 2, 5000}},
		{"combined", Filter{Fall: "Fell", MinMass: f64(500), MaxMass: f64(2000)}, []int64{2, 10, 370}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.Search(ctx, tc.filter, page)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if diff := cmp.Diff(tc.want, ids(got)); diff != "" {
				t.Fatalf("ids mismatch (-want +got):\n%s", diff)
			}
			if got.TotalElements != int64(len(tc.want)) {
				t.Fatalf("total: got %d want %d", got.TotalElements, len(tc.want))
			}
		})
	}
}

func TestMemoryStorePagination(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	first, err := store.Search(ctx, Filter{}, mustNormalize(t, PageRequest{Page: 0, Size: 4}))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := Page{
		TotalPages: 3, TotalElements: 9, Size: 4, Number: 0,
		NumberOfElements: 4, First: true, Last: false, Empty: false,
	}
	if diff := cmp.Diff(want, first, cmpopts.IgnoreFields(Page{}, "Content")); diff != "" {
		t.Fatalf("page mismatch (-want +got):\n%s", diff)
	}

	last, _ := store.Search(ctx, Filter{}, mustNormalize(t, PageRequest{Page: 2, Size: 4}))
	if diff := cmp.Diff([]int64{5001}, ids(last)); diff != "" {
		t.Fatalf("last page ids (-want +got):\n%s", diff)
	}
	if !last.Last || last.First {
		t.Fatalf("unexpected flags on last page: %+v", last)
	}

	beyond, _ := store.Search(ctx, Filter{}, mustNormalize(t, PageRequest{Page: 7, Size: 4}))
	if !beyond.Empty || beyond.TotalElements != 9 || beyond.TotalPages != 3 {
		t.Fatalf("unexpected page past the end: %+v", beyond)
	}

	huge, err := store.Search(ctx, Filter{}, mustNormalize(t, PageRequest{Page: math.MaxInt, Size: 20}))
	if err != nil {
		t.Fatalf("search huge page: %v", err)
	}
	if !huge.Empty || huge.TotalElements != 9 {
		t.Fatalf("unexpected huge page: %+v", huge)
	}

	raw, err := store.Search(ctx, Filter{}, PageRequest{Page: math.MaxInt, Size: 20})
	if err != nil || !raw.Empty {
		t.Fatalf("unnormalized huge page: %+v %v", raw, err)
	}
}

func TestMemoryStoreSort(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	byMassDesc, _ := store.Search(ctx, Filter{}, mustNormalize(t, PageRequest{Size: 3, Sort: []SortOrder{{Property: PropertyMass, Desc: true}}}))
	if diff := cmp.Diff([]int64{6, 390, 379}, ids(byMassDesc)); diff != "" {
		t.Fatalf("mass desc (-want +got):\n%s", diff)
	}

	byYearAsc, _ := store.Search(ctx, Filter{}, mustNormalize(t, PageRequest{Size: 2, Sort: []SortOrder{{Property: PropertyYear}}}))
	if diff := cmp.Diff([]int64{5001, 390}, ids(byYearAsc)); diff != "" {
		t.Fatalf("unknown year must sort first ascending (-want +got):\n%s", diff)
	}

	byClassThenName, _ := store.Search(ctx, Filter{RecClass: "EH4"}, mustNormalize(t, PageRequest{Sort: []SortOrder{{Property: PropertyName, Desc: true}}}))
	if diff := cmp.Diff([]int64{379, 6}, ids(byClassThenName)); diff != "" {
		t.Fatalf("name desc (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreStatistics(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	trends, err := store.Trends(ctx)
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if len(trends) != 8 || trends[1880] != 1 || trends[1952] != 1 {
		t.Fatalf("unexpected trends: %v", trends)
	}

	mass, err := store.MassDistribution(ctx)
	if err != nil {
		t.Fatalf("mass distribution: %v", err)
	}
	wantMass := map[string]int64{MassUnder1kg: 4, Mass1To10kg: 2, MassOver10kg: 2}
	if diff := cmp.Diff(wantMass, mass); diff != "" {
		t.Fatalf("mass distribution (-want +got):\n%s", diff)
	}

	classes, err := store.Classification(ctx)
	if err != nil {
		t.Fatalf("classification: %v", err)
	}
	if classes["L5"] != 2 || classes["EH4"] != 2 || classes["H6"] != 1 {
		t.Fatalf("unexpected classification: %v", classes)
	}

	count, _ := store.Count(ctx)
	if count != 9 {
		t.Fatalf("count: got %d", count)
	}
}

func TestMemoryStoreSaveAllUpserts(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	if err := store.SaveAll(ctx, []Meteorite{{ID: 1, Name: "Aachen (revised)", RecClass: "L5"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := store.Get(ctx, 1)
	if got.Name != "Aachen (revised)" || got.Mass != nil {
		t.Fatalf("record not replaced: %+v", got)
	}
	if count, _ := store.Count(ctx); count != 9 {
		t.Fatalf("upsert changed count to %d", count)
	}
}

func TestMassCategoryBoundaries(t *testing.T) {
	cases := map[float64]string{
		0:      MassUnder1kg,
		999.99: MassUnder1kg,
		1000:   Mass1To10kg,
		9999.9: Mass1To10kg,
		10000:  MassOver10kg,
		6e7:    MassOver10kg,
	}
	for grams, want := range cases {
		if got := MassCategory(grams); got != want {
			t.Fatalf("MassCategory(%g) = %s, want %s", grams, got, want)
		}
	}
}
