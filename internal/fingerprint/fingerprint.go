// Package fingerprint computes perceptual hashes for preview JPEGs.
//
// Hashes are 64-bit values rendered as 16-char hex strings so they can
// be persisted and compared without caring which hash family produced
// them. Distance is Hamming distance over the decoded bits.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Hashes holds the perceptual and difference hash of one image.
type Hashes struct {
	PHash string // DCT-based perceptual hash, 16 hex chars
	DHash string // gradient difference hash, 16 hex chars
}

// Hasher computes the perceptual hash of an extracted preview JPEG.
// The output is deterministic and length-stable.
type Hasher struct{}

// NewHasher creates a Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// Hash returns the pHash of the image at path as a hex string.
func (h *Hasher) Hash(path string) (string, error) {
	hashes, err := h.HashFile(path)
	if err != nil {
		return "", err
	}
	return hashes.PHash, nil
}

// HashFile computes both hashes for the image at path.
func (h *Hasher) HashFile(path string) (Hashes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Hashes{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return h.HashBytes(data)
}

// HashBytes computes both hashes for encoded image bytes.
func (h *Hasher) HashBytes(data []byte) (Hashes, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Hashes{}, fmt.Errorf("decoding image: %w", err)
	}
	return Hashes{
		PHash: fmt.Sprintf("%016x", perceptualHash(img)),
		DHash: fmt.Sprintf("%016x", differenceHash(img)),
	}, nil
}

// perceptualHash computes a 64-bit DCT hash: resize to 32x32 grayscale,
// take the low-frequency 8x8 DCT block minus the DC term, threshold on
// the median.
func perceptualHash(img image.Image) uint64 {
	gray := grayscale(scale(img, 32, 32))
	dct := dct2d(gray)

	coeffs := make([]float64, 0, 64)
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			if u == 0 && v == 0 {
				continue
			}
			coeffs = append(coeffs, dct[u][v])
		}
	}
	// Top up to 64 so the median and the bit loop stay aligned.
	coeffs = append(coeffs, dct[8][0])

	med := median(coeffs)
	var hash uint64
	for i, c := range coeffs {
		if c > med {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// differenceHash computes a 64-bit gradient hash from horizontal
// neighbor comparisons on a 9x8 grayscale raster.
func differenceHash(img image.Image) uint64 {
	gray := grayscale(scale(img, 9, 8))
	var hash uint64
	bit := 63
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

func scale(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// grayscale converts to column-major luma values using ITU-R BT.601.
func grayscale(img *image.RGBA) [][]float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([][]float64, w)
	for x := 0; x < w; x++ {
		out[x] = make([]float64, h)
		for y := 0; y < h; y++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return out
}

// dct2d computes the DCT-II of a square grayscale raster.
func dct2d(gray [][]float64) [][]float64 {
	n := len(gray)
	cosTable := make([][]float64, n)
	for i := range cosTable {
		cosTable[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(n)))
		}
	}

	dct := make([][]float64, n)
	for u := range dct {
		dct[u] = make([]float64, n)
		for v := 0; v < n; v++ {
			var sum float64
			for x := 0; x < n; x++ {
				for y := 0; y < n; y++ {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}
	return dct
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
