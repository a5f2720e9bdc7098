// Package preflight provides readiness checks for the paths, databases and
// remote catalog that cardscan depends on.
//
// The CLI "cardscan doctor" command runs RunAll and prints one row per check.
// The operator server runs the same checks at startup and logs failures
// without refusing to start.
package preflight
