// Package main hosts the cardscan CLI entrypoint and command graph.
//
// Commands open the catalog and learning databases under the configured
// storage root, run one operation, and close them again. `cardscan serve`
// keeps them open behind the operator HTTP API instead. Configuration
// resolution and logger setup live in commandContext so subcommands only deal
// with flags and output.
package main
