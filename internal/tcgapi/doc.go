// Package tcgapi is a client for the Pokémon TCG API (api.pokemontcg.io).
//
// Requests are rate limited and retried with exponential backoff on timeouts,
// throttling, and server errors. Card records model every nested object as
// optional; callers read them through accessors that fall back to zero values.
// The client doubles as a catalog.Source for hash catalog builds.
package tcgapi
