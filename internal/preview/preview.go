// Package preview extracts browse-quality JPEGs from camera files.
//
// RAW pixels are never decoded here; embedded previews are pulled out
// with exiftool and normalized (orientation applied, longest side
// capped) into a cache directory keyed by source identity.
package preview

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// maxDimension caps the longest side of an emitted preview.
const maxDimension = 1200

// previewTags are tried in order when pulling an embedded JPEG out of
// a RAW container.
var previewTags = []string{
	"JpgFromRaw",
	"PreviewImage",
	"OtherImage",
	"ThumbnailImage",
}

// decodableExtensions can be decoded directly without exiftool.
var decodableExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

// Provider extracts and caches preview JPEGs.
type Provider struct {
	binPath  string // exiftool binary, empty for PATH lookup
	cacheDir string
}

// NewProvider creates a Provider writing previews under cacheDir.
func NewProvider(binPath, cacheDir string) (*Provider, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating preview cache %s: %w", cacheDir, err)
	}
	return &Provider{binPath: binPath, cacheDir: cacheDir}, nil
}

// Extract returns the path of a cached preview JPEG for the image at
// path, producing it on first request.
func (p *Provider) Extract(path string) (string, error) {
	cached := p.cachePath(path)
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}

	data, err := p.sourceBytes(path)
	if err != nil {
		return "", err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding preview of %s: %w", path, err)
	}
	img = applyOrientation(img, p.orientation(path))
	img = capSize(img, maxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("encoding preview of %s: %w", path, err)
	}

	tmp := cached + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing preview: %w", err)
	}
	if err := os.Rename(tmp, cached); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing preview: %w", err)
	}
	return cached, nil
}

// cachePath derives a stable cache filename from path plus file
// identity, so edited files re-extract.
func (p *Provider) cachePath(path string) string {
	sum := sha256.New()
	sum.Write([]byte(path))
	if fi, err := os.Stat(path); err == nil {
		fmt.Fprintf(sum, "|%d|%d", fi.Size(), fi.ModTime().UnixNano())
	}
	return filepath.Join(p.cacheDir, fmt.Sprintf("%x.jpg", sum.Sum(nil)[:16]))
}

// sourceBytes obtains decodable image bytes: direct read for formats
// the image stack understands, embedded-preview extraction otherwise.
func (p *Provider) sourceBytes(path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if decodableExtensions[ext] {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return data, nil
	}

	for _, tag := range previewTags {
		out, err := exec.Command(p.exiftool(), "-b", "-"+tag, path).Output()
		if err == nil && len(out) > 0 {
			return out, nil
		}
	}
	return nil, fmt.Errorf("no embedded preview in %s", path)
}

// orientation reads the EXIF orientation value (1 when absent).
func (p *Provider) orientation(path string) int {
	out, err := exec.Command(p.exiftool(), "-n", "-s3", "-Orientation", path).Output()
	if err != nil {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || n < 1 || n > 8 {
		return 1
	}
	return n
}

func (p *Provider) exiftool() string {
	if p.binPath != "" {
		return p.binPath
	}
	return "exiftool"
}

// capSize scales img down so neither side exceeds maxSize, keeping
// aspect ratio. Images already small enough pass through.
func capSize(img image.Image, maxSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSize && h <= maxSize {
		return img
	}
	var nw, nh int
	if w > h {
		nw = maxSize
		nh = h * maxSize / w
	} else {
		nh = maxSize
		nw = w * maxSize / h
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// applyOrientation bakes the EXIF orientation into pixels so hashes
// and vision calls see the image upright.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return flipH(img)
	case 3:
		return rotate180(img)
	case 4:
		return flipV(img)
	case 5:
		return rotate90(flipH(img))
	case 6:
		return rotate90(img)
	case 7:
		return rotate270(flipH(img))
	case 8:
		return rotate270(img)
	default:
		return img
	}
}

func rotate90(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			dst.Set(b.Max.Y-1-y, x-b.Min.X, img.At(x, y))
		}
	}
	return dst
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			dst.Set(b.Max.X-1-x, b.Max.Y-1-y, img.At(x, y))
		}
	}
	return dst
}

func rotate270(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			dst.Set(y-b.Min.Y, b.Max.X-1-x, img.At(x, y))
		}
	}
	return dst
}

func flipH(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			dst.Set(b.Max.X-1-x, y-b.Min.Y, img.At(x, y))
		}
	}
	return dst
}

func flipV(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			dst.Set(x-b.Min.X, b.Max.Y-1-y, img.At(x, y))
		}
	}
	return dst
}
