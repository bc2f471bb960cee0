// Package api serves the meteorite REST interface: paged listing and search,
// single records, aggregate statistics, health and metrics.
package api
