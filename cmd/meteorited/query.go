package main

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	sdk "meteorite-explorer/sdk/go/meteorite"
)

const defaultAPIURL = "http://localhost:8080"

type queryOptions struct {
	apiURL string
	json   bool
}

func (o *queryOptions) client() (*sdk.Client, error) {
	return sdk.NewClient(o.apiURL, nil)
}

func (o *queryOptions) printer(cmd *cobra.Command) printer {
	return printer{out: cmd.OutOrStdout(), json: o.json}
}

func newQueryCmd() *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query a running meteorited over its REST API",
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", defaultAPIURL, "base URL of the meteorite API")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON instead of tables")

	cmd.AddCommand(newQueryGetCmd(opts), newQuerySearchCmd(opts), newQueryStatsCmd(opts))
	return cmd
}

func newQueryGetCmd(opts *queryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one meteorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			m, err := client.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			p := opts.printer(cmd)
			if p.json {
				return p.printJSON(m)
			}
			return p.printTable([]string{"FIELD", "VALUE"}, [][]string{
				{"id", strconv.FormatInt(m.ID, 10)},
				{"name", m.Name},
				{"class", m.RecClass},
				{"mass (g)", formatMass(m.Mass)},
				{"fall", m.Fall},
				{"year", formatYear(m.Year)},
				{"latitude", formatCoord(m.RecLat)},
				{"longitude", formatCoord(m.RecLong)},
			}, "")
		},
	}
}

type searchFlags struct {
	name     string
	recclass string
	fall     string
	year     int
	minMass  float64
	maxMass  float64
	page     int
	size     int
	sort     []string
}

func newQuerySearchCmd(opts *queryOptions) *cobra.Command {
	flags := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search meteorites by name, class, fall, year and mass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := sdk.SearchParams{Name: flags.name, RecClass: flags.recclass, Fall: flags.fall}
			if cmd.Flags().Changed("year") {
				params.Year = &flags.year
			}
			if cmd.Flags().Changed("min-mass") {
				params.MinMass = &flags.minMass
			}
			if cmd.Flags().Changed("max-mass") {
				params.MaxMass = &flags.maxMass
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			page, err := client.Search(cmd.Context(), params, sdk.PageParams{Page: flags.page, Size: flags.size, Sort: flags.sort})
			if err != nil {
				return err
			}
			p := opts.printer(cmd)
			if p.json {
				return p.printJSON(page)
			}
			return p.printTable(meteoriteHeaders, meteoriteRows(page.Content), pageFooter(page))
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.name, "name", "", "name contains, case insensitive")
	f.StringVar(&flags.recclass, "class", "", "exact recclass, case insensitive")
	f.StringVar(&flags.fall, "fall", "", "Fell or Found")
	f.IntVar(&flags.year, "year", 0, "landing year")
	f.Float64Var(&flags.minMass, "min-mass", 0, "minimum mass in grams")
	f.Float64Var(&flags.maxMass, "max-mass", 0, "maximum mass in grams")
	f.IntVar(&flags.page, "page", 0, "zero based page number")
	f.IntVar(&flags.size, "size", 0, "page size")
	f.StringArrayVar(&flags.sort, "sort", nil, "sort order as property[,desc], repeatable")
	return cmd
}

var meteoriteHeaders = []string{"ID", "NAME", "CLASS", "MASS (G)", "FALL", "YEAR"}

func meteoriteRows(records []sdk.Meteorite) [][]string {
	rows := make([][]string, 0, len(records))
	for _, m := range records {
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10), m.Name, m.RecClass, formatMass(m.Mass), m.Fall, formatYear(m.Year),
		})
	}
	return rows
}

func pageFooter(page sdk.Page) string {
	if page.TotalElements == 0 {
		return "No results found."
	}
	return fmt.Sprintf("page %d of %d, %d meteorites", page.Number+1, page.TotalPages, page.TotalElements)
}

func newQueryStatsCmd(opts *queryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "trends",
			Short: "Landings per year",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, err := opts.client()
				if err != nil {
					return err
				}
				trends, err := client.Trends(cmd.Context())
				if err != nil {
					return err
				}
				p := opts.printer(cmd)
				if p.json {
					return p.printJSON(trends)
				}
				years := make([]int, 0, len(trends))
				for y := range trends {
					years = append(years, y)
				}
				slices.Sort(years)
				rows := make([][]string, 0, len(years))
				for _, y := range years {
					rows = append(rows, []string{strconv.Itoa(y), strconv.FormatInt(trends[y], 10)})
				}
				return p.printTable([]string{"YEAR", "LANDINGS"}, rows, "")
			},
		},
		newCountsCmd(opts, "mass", "Records per mass category", "CATEGORY", (*sdk.Client).MassDistribution),
		newCountsCmd(opts, "classes", "Records per classification", "CLASS", (*sdk.Client).Classification),
	)
	return cmd
}

type countsFunc = func(*sdk.Client, context.Context) (map[string]int64, error)

func newCountsCmd(opts *queryOptions, use, short, header string, fetch countsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			counts, err := fetch(client, cmd.Context())
			if err != nil {
				return err
			}
			p := opts.printer(cmd)
			if p.json {
				return p.printJSON(counts)
			}
			return p.printTable([]string{header, "COUNT"}, countRows(counts), "")
		},
	}
}

// countRows orders counts most common first, then by key.
func countRows(counts map[string]int64) [][]string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.FormatInt(counts[k], 10)})
	}
	return rows
}

func formatMass(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatYear(v *int) string {
	if v == nil {
		return "Unknown"
	}
	return strconv.Itoa(*v)
}

func formatCoord(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
