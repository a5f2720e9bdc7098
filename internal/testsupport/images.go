package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Gradient returns a deterministic RGBA image whose structure depends on seed,
// so different seeds hash far apart.
func Gradient(w, h int, seed int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*(seed+1)*7 + y*(seed+3)*5) % 256)
			img.Set(x, y, color.RGBA{R: v, G: uint8((int(v) + seed*40) % 256), B: uint8(255 - int(v)), A: 255})
		}
	}
	return img
}

// Checker returns a black and white checkerboard with the given cell size.
func Checker(w, h, cell int) *image.RGBA {
	if cell <= 0 {
		cell = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if (x/cell+y/cell)%2 == 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// PNG encodes img for upload or HTTP fixtures.
func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// ImageServer serves PNG encodings of images keyed by URL path ("/p1.png").
// Unknown paths return 404. The server is closed on cleanup.
func ImageServer(t testing.TB, images map[string]image.Image) *httptest.Server {
	t.Helper()
	payloads := make(map[string][]byte, len(images))
	for path, img := range images {
		payloads["/"+strings.TrimPrefix(path, "/")] = PNG(t, img)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}
