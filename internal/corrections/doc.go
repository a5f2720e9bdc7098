// Package corrections is the append-only ledger of operator overrides. Every
// correction also resets the learned pattern for the corrected pair.
package corrections
