package scan

import (
	"regexp"
	"strings"
)

// rawExtensions are the camera RAW formats treated as base images.
var rawExtensions = map[string]bool{
	".cr2": true,
	".cr3": true,
	".nef": true,
	".arw": true,
	".srf": true,
	".dng": true,
	".raf": true,
	".orf": true,
	".rw2": true,
	".pef": true,
	".erf": true,
}

// derivativeExtensions are edited/exported formats that attach to a base.
var derivativeExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".psd":  true,
	".psb":  true,
}

// cinemaStemPattern matches cinema-camera clip frames:
// camera (A006), magazine (C001), clip code (0315GH), optional bracket
// segment (_S000), then a dot-separated frame counter.
var cinemaStemPattern = regexp.MustCompile(`^([A-Z]\d{3})_([A-Z]\d{3})_([A-Z0-9]{6})(_S\d{3})?\.(\d+)$`)

// frameCounterPattern captures the longest leading run of
// letter/underscore/hyphen blocks each ending in digits (IMG_0001,
// DSC04521, _MG_1234-2, ...).
var frameCounterPattern = regexp.MustCompile(`^(?:[A-Za-z_\-]*\d+)+`)

// trailingSuffixPattern strips "-Edit"-style suffixes from derivative
// stems before prefix extraction.
var trailingSuffixPattern = regexp.MustCompile(`-[^-]*$`)

// IsRawExtension reports whether ext (lowercase, with dot) is a RAW format.
func IsRawExtension(ext string) bool {
	return rawExtensions[ext]
}

// IsDerivativeExtension reports whether ext is an edit/export format.
func IsDerivativeExtension(ext string) bool {
	return derivativeExtensions[ext]
}

// CinemaStem holds the parsed components of a cinema clip-frame stem.
type CinemaStem struct {
	Camera   string
	Magazine string
	ClipCode string
	Seq      string // "S000" etc., empty for merged frames
	Frame    string
}

// Bracketed reports whether the stem carried an _S### segment.
func (c CinemaStem) Bracketed() bool {
	return c.Seq != ""
}

// ClipKey groups all bracket steps and the merged frame of one shot.
func (c CinemaStem) ClipKey() string {
	return c.Camera + "_" + c.Magazine + "_" + c.ClipCode + "_" + c.Frame
}

// FamilyKey is the full stem; derivatives of a cinema frame share it.
func (c CinemaStem) FamilyKey() string {
	key := c.Camera + "_" + c.Magazine + "_" + c.ClipCode
	if c.Seq != "" {
		key += "_" + c.Seq
	}
	return key + "." + c.Frame
}

// ParseCinemaStem parses a cinema clip-frame stem, reporting ok=false
// when the stem does not follow the convention.
func ParseCinemaStem(stem string) (CinemaStem, bool) {
	m := cinemaStemPattern.FindStringSubmatch(stem)
	if m == nil {
		return CinemaStem{}, false
	}
	return CinemaStem{
		Camera:   m[1],
		Magazine: m[2],
		ClipCode: m[3],
		Seq:      strings.TrimPrefix(m[4], "_"),
		Frame:    m[5],
	}, true
}

// FrameCounterKey extracts the family key of a frame-counter stem: the
// longest leading run of letter blocks ending in digits. Returns the
// whole stem when no such prefix exists, so every base still gets a
// usable key.
func FrameCounterKey(stem string) string {
	if key := frameCounterPattern.FindString(stem); key != "" {
		return key
	}
	return stem
}

// DerivativeKey extracts the family key a derivative stem would share
// with its base. Trailing "-suffix" decorations are removed first, then
// the cinema convention is tried before the frame-counter prefix.
func DerivativeKey(stem string) string {
	if cs, ok := ParseCinemaStem(stem); ok {
		return cs.FamilyKey()
	}
	trimmed := trailingSuffixPattern.ReplaceAllString(stem, "")
	if trimmed == "" {
		trimmed = stem
	}
	if cs, ok := ParseCinemaStem(trimmed); ok {
		return cs.FamilyKey()
	}
	return FrameCounterKey(trimmed)
}
