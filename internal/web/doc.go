// Package web renders the explorer pages: the searchable list, the detail
// page with its map, and the statistics dashboard. Pages are server
// rendered; charts and maps are drawn in the browser from embedded data.
package web
