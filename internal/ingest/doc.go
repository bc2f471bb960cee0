// Package ingest turns meteorite landing CSV files into records and feeds
// them to the meteorite service, on demand, on startup or whenever the file
// changes.
package ingest
