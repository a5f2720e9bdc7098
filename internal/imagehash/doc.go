// Package imagehash computes the perceptual fingerprints stored in the hash
// catalog and compares them.
//
// A Fingerprint is a fixed grid of four algorithms by four rotations. Only the
// average and perceptual hashes are computed for rotated copies of an image;
// the difference and wavelet slots at 90, 180, and 270 degrees are never
// populated and report as not computed. Query images are hashed at base
// orientation only.
package imagehash
