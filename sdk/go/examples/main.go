package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"meteorite-explorer/sdk/go/meteorite"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/meteorites/search", func(w http.ResponseWriter, r *http.Request) {
		mass := 21.0
		_ = json.NewEncoder(w).Encode(meteorite.Page{
			Content:       []meteorite.Meteorite{{ID: 1, Name: "Aachen", RecClass: r.URL.Query().Get("recclass"), Mass: &mass}},
			TotalPages:    1,
			TotalElements: 1,
			Size:          10,
		})
	})
	mux.HandleFunc("GET /api/meteorites/stats/mass-distribution", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int64{"<1kg": 1})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := meteorite.NewClient(srv.URL, &http.Client{Timeout: 5 * time.Second})
	if err != nil {
		panic(err)
	}
	ctx := context.Background()

	page, err := client.Search(ctx, meteorite.SearchParams{RecClass: "L5"}, meteorite.PageParams{Size: 10})
	if err != nil {
		panic(err)
	}
	fmt.Printf("found %d of %d records\n", len(page.Content), page.TotalElements)
	for _, m := range page.Content {
		fmt.Printf("  #%d %s (%s) %.0f g\n", m.ID, m.Name, m.RecClass, *m.Mass)
	}

	mass, err := client.MassDistribution(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("mass distribution: %v\n", mass)
}
