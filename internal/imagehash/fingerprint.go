package imagehash

import (
	"errors"
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
)

// Algorithm identifies one perceptual hash function.
type Algorithm int

const (
	Average Algorithm = iota
	Perceptual
	Difference
	Wavelet
	numAlgorithms
)

// Algorithms lists every algorithm in column order.
var Algorithms = []Algorithm{Average, Perceptual, Difference, Wavelet}

func (a Algorithm) String() string {
	switch a {
	case Average:
		return "average"
	case Perceptual:
		return "perceptual"
	case Difference:
		return "difference"
	case Wavelet:
		return "wavelet"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

// Rotated reports whether catalog fingerprints carry rotated variants of a.
func (a Algorithm) Rotated() bool {
	return a == Average || a == Perceptual
}

// Rotation is a counter-clockwise rotation in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Rotations lists every rotation in column order.
var Rotations = []Rotation{Rotate0, Rotate90, Rotate180, Rotate270}

func (r Rotation) index() int {
	switch r {
	case Rotate0:
		return 0
	case Rotate90:
		return 1
	case Rotate180:
		return 2
	case Rotate270:
		return 3
	default:
		return -1
	}
}

// Slot names one cell of the fingerprint grid.
type Slot struct {
	Algorithm Algorithm
	Rotation  Rotation
}

// Column is the catalog column that persists the slot, e.g. "average_hash_90".
func (s Slot) Column() string {
	base := s.Algorithm.String() + "_hash"
	if s.Rotation == Rotate0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, int(s.Rotation))
}

// Computed reports whether catalog fingerprints ever populate the slot.
func (s Slot) Computed() bool {
	return s.Rotation == Rotate0 || s.Algorithm.Rotated()
}

// Slots returns the ten computed slots: four base hashes followed by the
// rotated average and perceptual hashes.
func Slots() []Slot {
	slots := make([]Slot, 0, 10)
	for _, alg := range Algorithms {
		slots = append(slots, Slot{Algorithm: alg, Rotation: Rotate0})
	}
	for _, alg := range []Algorithm{Average, Perceptual} {
		for _, rot := range Rotations[1:] {
			slots = append(slots, Slot{Algorithm: alg, Rotation: rot})
		}
	}
	return slots
}

// Fingerprint is the set of hash variants for one image. Cells that were not
// computed report ok=false from Get.
type Fingerprint struct {
	hashes   [numAlgorithms][4]Hash
	computed [numAlgorithms][4]bool
}

// Get returns the hash stored for alg at rot.
func (f Fingerprint) Get(alg Algorithm, rot Rotation) (Hash, bool) {
	idx := rot.index()
	if alg < 0 || alg >= numAlgorithms || idx < 0 {
		return 0, false
	}
	return f.hashes[alg][idx], f.computed[alg][idx]
}

// Set stores h for alg at rot. Out-of-range cells are ignored.
func (f *Fingerprint) Set(alg Algorithm, rot Rotation, h Hash) {
	idx := rot.index()
	if alg < 0 || alg >= numAlgorithms || idx < 0 {
		return
	}
	f.hashes[alg][idx] = h
	f.computed[alg][idx] = true
}

// Variants returns every computed hash for alg, base orientation first.
func (f Fingerprint) Variants(alg Algorithm) []Hash {
	out := make([]Hash, 0, len(Rotations))
	for _, rot := range Rotations {
		if h, ok := f.Get(alg, rot); ok {
			out = append(out, h)
		}
	}
	return out
}

// Len counts computed cells.
func (f Fingerprint) Len() int {
	n := 0
	for alg := range f.computed {
		for _, ok := range f.computed[alg] {
			if ok {
				n++
			}
		}
	}
	return n
}

// ErrNilImage is returned when hashing a nil image.
var ErrNilImage = errors.New("imagehash: nil image")

// ComputeBase hashes img with all four algorithms at base orientation.
func ComputeBase(img image.Image) (Fingerprint, error) {
	var fp Fingerprint
	if img == nil {
		return fp, ErrNilImage
	}
	for _, alg := range Algorithms {
		h, err := hashWith(alg, img)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("%s hash: %w", alg, err)
		}
		fp.Set(alg, Rotate0, h)
	}
	return fp, nil
}

// Compute produces a catalog fingerprint: ComputeBase plus average and
// perceptual hashes of img rotated 90, 180, and 270 degrees.
func Compute(img image.Image) (Fingerprint, error) {
	fp, err := ComputeBase(img)
	if err != nil {
		return Fingerprint{}, err
	}
	for _, rot := range Rotations[1:] {
		rotated := rotate(img, rot)
		for _, alg := range Algorithms {
			if !alg.Rotated() {
				continue
			}
			h, err := hashWith(alg, rotated)
			if err != nil {
				return Fingerprint{}, fmt.Errorf("%s hash at %d: %w", alg, int(rot), err)
			}
			fp.Set(alg, rot, h)
		}
	}
	return fp, nil
}

func rotate(img image.Image, rot Rotation) image.Image {
	switch rot {
	case Rotate90:
		return imaging.Rotate90(img)
	case Rotate180:
		return imaging.Rotate180(img)
	case Rotate270:
		return imaging.Rotate270(img)
	default:
		return img
	}
}

func hashWith(alg Algorithm, img image.Image) (Hash, error) {
	var (
		result *goimagehash.ImageHash
		err    error
	)
	switch alg {
	case Average:
		result, err = goimagehash.AverageHash(img)
	case Perceptual:
		result, err = goimagehash.PerceptionHash(img)
	case Difference:
		result, err = goimagehash.DifferenceHash(img)
	case Wavelet:
		return waveletHash(img), nil
	default:
		return 0, fmt.Errorf("unknown algorithm %d", int(alg))
	}
	if err != nil {
		return 0, err
	}
	return Hash(result.GetHash()), nil
}
