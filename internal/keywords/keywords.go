// Package keywords derives catalog keywords from directory names.
//
// Photographers encode shoot context in folder names ("2023-07-14
// Reactor 1 - 4 Exterior"); this package strips the bookkeeping parts
// and turns the rest into keyword phrases.
package keywords

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Leading date prefixes: 2023-07-14, 2023_07, 20230714, 230714,
	// each optionally followed by a separator run.
	datePrefixPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}[-_]\d{2}[-_]\d{2}[\s\-_]*`),
		regexp.MustCompile(`^\d{4}[-_]\d{2}[\s\-_]*`),
		regexp.MustCompile(`^\d{8}[\s\-_]*`),
		regexp.MustCompile(`^\d{6}[\s\-_]*`),
	}

	// Leading numeric ordering indices: "01 - London", "3_Interiors".
	indexPrefixPattern = regexp.MustCompile(`^\d+\s*[-_]\s*`)

	// Repeated separator runs collapse to a single space.
	separatorRunPattern = regexp.MustCompile(`[\s_]{2,}|_`)

	// Major delimiters split a segment into independent pieces.
	majorDelimiterPattern = regexp.MustCompile(`[,;|]`)

	// Range pattern: prefix integer "-" integer suffix, e.g.
	// "Reactor 1 - 4 Exterior".
	rangePattern = regexp.MustCompile(`^(.*?)(\d+)\s*-\s*(\d+)\s*(.*)$`)

	numericToken = regexp.MustCompile(`^\d+$`)
)

const (
	maxPhraseWords = 3
	maxPhraseLen   = 30
)

// Derive returns the keyword set for an image directory, built from
// every path segment between the scan root and the directory itself,
// inclusive. Order follows first appearance.
func Derive(imageDir, scanRoot string) []string {
	segments := pathSegments(imageDir, scanRoot)

	var out []string
	seen := make(map[string]bool)
	add := func(kw string) {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			return
		}
		lower := strings.ToLower(kw)
		if !seen[lower] {
			seen[lower] = true
			out = append(out, kw)
		}
	}

	for _, segment := range segments {
		for _, kw := range fromSegment(segment) {
			add(kw)
		}
	}
	return out
}

// pathSegments lists directory names from scanRoot down to imageDir,
// including the root's own name.
func pathSegments(imageDir, scanRoot string) []string {
	segments := []string{filepath.Base(scanRoot)}
	rel, err := filepath.Rel(scanRoot, imageDir)
	if err != nil || rel == "." {
		return segments
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part != "" && part != "." {
			segments = append(segments, part)
		}
	}
	return segments
}

// fromSegment extracts keywords from a single directory name.
func fromSegment(segment string) []string {
	cleaned := stripPrefixes(segment)
	cleaned = separatorRunPattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}

	var out []string
	for _, piece := range majorDelimiterPattern.Split(cleaned, -1) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		out = append(out, fromPiece(piece)...)
	}
	return out
}

func stripPrefixes(s string) string {
	for _, p := range datePrefixPatterns {
		if loc := p.FindStringIndex(s); loc != nil {
			s = s[loc[1]:]
			break
		}
	}
	return indexPrefixPattern.ReplaceAllString(s, "")
}

// fromPiece emits a range pair, a short phrase, or word tokens,
// whichever the piece supports.
func fromPiece(piece string) []string {
	if m := rangePattern.FindStringSubmatch(piece); m != nil {
		prefix := strings.TrimSpace(m[1])
		suffix := strings.TrimSpace(m[4])
		rangeKw := strings.TrimSpace(prefix + " " + m[2] + "-" + m[3])
		kws := []string{rangeKw}
		if suffix != "" {
			kws = append(kws, fromPiece(suffix)...)
		}
		return kws
	}

	words := strings.Fields(piece)
	if len(words) <= maxPhraseWords && len(piece) <= maxPhraseLen {
		return []string{piece}
	}

	var out []string
	for _, w := range words {
		for _, token := range strings.Split(w, "-") {
			if len(token) < 2 || numericToken.MatchString(token) {
				continue
			}
			out = append(out, token)
		}
	}
	return out
}
