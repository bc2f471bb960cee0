// Package cache holds the response cache used for aggregate statistics. The
// Redis implementation lets several API instances share one cache and one
// invalidation.
package cache
