// Package extract derives card name candidates and auxiliary details from
// raw recognized text.
//
// The text recognizer is opaque; its output is treated as a best-effort
// string. Three strategies propose names, ranked by strategy priority, then by
// alphabetic ratio, then by length.
package extract
