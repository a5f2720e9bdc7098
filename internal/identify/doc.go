// Package identify fuses the image and text signals for one captured card
// into a recommendation that an operator must confirm, correct, or retry.
//
// Identify derives a text candidate from the recognized text (falling back to
// learned patterns and then the fuzzy name cache), matches the image against
// the hash catalog concurrently, and arbitrates between the two. The result is
// a pending Session; nothing is written to the learning stores until the
// operator acts on it through Confirm or Correct.
package identify
