package exifmeta

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
)

// Layouts exiftool emits for datetime tags, most specific first.
var exifTimeLayouts = []string{
	"2006:01:02 15:04:05.000-07:00",
	"2006:01:02 15:04:05-07:00",
	"2006:01:02 15:04:05.000",
	"2006:01:02 15:04:05",
}

// dmsPattern matches exiftool's default coordinate notation, e.g.
// `50 deg 5' 12.30" N`.
var dmsPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*deg\s*(\d+(?:\.\d+)?)'\s*(\d+(?:\.\d+)?)"\s*([NSEW])`)

// parseFields maps a raw exiftool record onto Metadata.
func parseFields(info exiftool.FileMetadata) Metadata {
	var m Metadata

	for _, tag := range []string{"DateTimeOriginal", "CreateDate"} {
		if raw, err := info.GetString(tag); err == nil {
			if ts, ok := parseExifTime(raw); ok {
				m.TakenAt = &ts
				break
			}
		}
	}

	lat, latOK := coordinate(info, "GPSLatitude", "GPSLatitudeRef", "S")
	lon, lonOK := coordinate(info, "GPSLongitude", "GPSLongitudeRef", "W")
	if latOK && lonOK {
		m.Position = &GPS{Latitude: lat, Longitude: lon}
		if alt, ok := altitude(info); ok {
			m.Position.Altitude = &alt
		}
	}

	if mk, err := info.GetString("Make"); err == nil {
		m.CameraMake = strings.TrimSpace(mk)
	}
	if model, err := info.GetString("Model"); err == nil {
		m.CameraModel = strings.TrimSpace(model)
	}
	return m
}

// parseExifTime parses exiftool datetime output. Timestamps without a
// zone are taken as local time, matching how cameras record them.
func parseExifTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "0000") {
		return time.Time{}, false
	}
	for _, layout := range exifTimeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// coordinate resolves one GPS axis to signed decimal degrees. negRef is
// the hemisphere that flips the sign ("S" or "W").
func coordinate(info exiftool.FileMetadata, tag, refTag, negRef string) (float64, bool) {
	raw, ok := info.Fields[tag]
	if !ok || raw == nil {
		return 0, false
	}

	var value float64
	var embedded bool // DMS strings already carry the hemisphere
	switch v := raw.(type) {
	case float64:
		value = v
	case string:
		var parsed bool
		value, embedded, parsed = parseCoordinateString(v)
		if !parsed {
			return 0, false
		}
	default:
		return 0, false
	}

	if !embedded {
		if ref, err := info.GetString(refTag); err == nil {
			ref = strings.ToUpper(strings.TrimSpace(ref))
			if strings.HasPrefix(ref, negRef) {
				value = -value
			}
		}
	}
	return value, true
}

// altitude resolves GPSAltitude to signed meters. exiftool may emit a
// bare number or a string like `132.5 m Above Sea Level`.
func altitude(info exiftool.FileMetadata) (float64, bool) {
	raw, ok := info.Fields["GPSAltitude"]
	if !ok || raw == nil {
		return 0, false
	}

	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case string:
		s := strings.TrimSpace(v)
		fields := strings.Fields(s)
		if len(fields) == 0 {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, false
		}
		value = parsed
		if strings.Contains(strings.ToLower(s), "below") {
			value = -value
		}
	default:
		return 0, false
	}

	if value > 0 {
		if ref, err := info.GetString("GPSAltitudeRef"); err == nil {
			ref = strings.ToLower(strings.TrimSpace(ref))
			if ref == "1" || strings.Contains(ref, "below") {
				value = -value
			}
		}
	}
	return value, true
}

// parseCoordinateString handles both plain decimal strings and DMS
// notation. The second result reports whether the string embedded its
// own hemisphere letter.
func parseCoordinateString(s string) (value float64, embedded, ok bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, false, true
	}
	m := dmsPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false, false
	}
	deg, _ := strconv.ParseFloat(m[1], 64)
	min, _ := strconv.ParseFloat(m[2], 64)
	sec, _ := strconv.ParseFloat(m[3], 64)
	value = deg + min/60 + sec/3600
	if m[4] == "S" || m[4] == "W" {
		value = -value
	}
	return value, true, true
}
