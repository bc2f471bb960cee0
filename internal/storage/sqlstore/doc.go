// Package sqlstore persists the meteorite dataset in MySQL or SQLite. Both
// drivers share one schema, kept in deploy/migrations and applied on Open.
package sqlstore
