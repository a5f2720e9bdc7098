// Package namecache keeps every card identity a successful search has
// observed and answers approximate name lookups against it.
package namecache
