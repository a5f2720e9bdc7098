package imagehash

import (
	"image"
	"sort"

	"golang.org/x/image/draw"
)

const (
	waveletScale  = 64
	waveletBands  = 8
	waveletLevels = 3 // log2(waveletScale / waveletBands)
)

// waveletHash thresholds the low-frequency Haar band of a 64x64 grayscale
// copy of img against its median.
func waveletHash(img image.Image) Hash {
	gray := image.NewGray(image.Rect(0, 0, waveletScale, waveletScale))
	draw.CatmullRom.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	size := waveletScale
	coeffs := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			coeffs[y*size+x] = float64(gray.GrayAt(x, y).Y) / 255
		}
	}
	for level := 0; level < waveletLevels; level++ {
		coeffs = haarLowPass(coeffs, size)
		size /= 2
	}

	sorted := append([]float64(nil), coeffs...)
	sort.Float64s(sorted)
	median := (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2

	var h uint64
	for i, v := range coeffs {
		if v > median {
			h |= 1 << uint(len(coeffs)-1-i)
		}
	}
	return Hash(h)
}

// haarLowPass applies one orthonormal Haar step in both directions and keeps
// the LL quadrant.
func haarLowPass(in []float64, size int) []float64 {
	half := size / 2
	out := make([]float64, half*half)
	for y := 0; y < half; y++ {
		for x := 0; x < half; x++ {
			a := in[(2*y)*size+2*x]
			b := in[(2*y)*size+2*x+1]
			c := in[(2*y+1)*size+2*x]
			d := in[(2*y+1)*size+2*x+1]
			out[y*half+x] = (a + b + c + d) / 2
		}
	}
	return out
}
