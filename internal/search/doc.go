// Package search looks card names up against the remote catalog, trying an
// exact name query before a prefix query, and feeds every identity it sees
// into the name cache.
package search
