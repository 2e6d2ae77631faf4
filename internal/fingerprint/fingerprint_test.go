package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func gradientImage(w, h int, shift uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			v := uint8(x*255/w) + shift
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestHashBytes_Deterministic(t *testing.T) {
	data := encodeJPEG(t, gradientImage(64, 48, 0))
	h := NewHasher()

	first, err := h.HashBytes(data)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	second, err := h.HashBytes(data)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if first != second {
		t.Errorf("hash not deterministic: %+v vs %+v", first, second)
	}
	if len(first.PHash) != 16 {
		t.Errorf("expected 16 hex chars, got %q", first.PHash)
	}
	if len(first.DHash) != 16 {
		t.Errorf("expected 16 hex chars, got %q", first.DHash)
	}
}

func TestHashBytes_SimilarImagesClose(t *testing.T) {
	h := NewHasher()
	a, err := h.HashBytes(encodeJPEG(t, gradientImage(64, 48, 0)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.HashBytes(encodeJPEG(t, gradientImage(64, 48, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if d := HammingHex(a.PHash, b.PHash); d > 13 {
		t.Errorf("near-identical gradients should hash close, distance %d", d)
	}
}

func TestHammingHex(t *testing.T) {
	if d := HammingHex("00000000", "00000000"); d != 0 {
		t.Errorf("identical hashes: distance %d, want 0", d)
	}
	if d := HammingHex("0000", "0001"); d != 1 {
		t.Errorf("one-bit difference: distance %d, want 1", d)
	}
	if d := HammingHex("ffff", "0000"); d != 16 {
		t.Errorf("inverted hashes: distance %d, want 16", d)
	}
}

func TestHammingHex_LengthMismatchIsInfinite(t *testing.T) {
	if d := HammingHex("abcd", "abcdef"); d != InfiniteDistance {
		t.Errorf("length mismatch must be infinite, got %d", d)
	}
	if d := HammingHex("", ""); d != InfiniteDistance {
		t.Errorf("empty hashes must be infinite, got %d", d)
	}
	if d := HammingHex("zzzz", "0000"); d != InfiniteDistance {
		t.Errorf("non-hex hash must be infinite, got %d", d)
	}
}

func TestBitLength(t *testing.T) {
	if got := BitLength("0123456789abcdef"); got != 64 {
		t.Errorf("BitLength = %d, want 64", got)
	}
}
