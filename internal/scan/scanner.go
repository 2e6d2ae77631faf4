package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Scanner walks a directory tree and classifies every file as a base
// image, a derivative of a base, or an orphan promoted to base.
type Scanner struct{}

// NewScanner creates a Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// candidate is a derivative waiting for attachment, grouped per directory.
type candidate struct {
	file File
	key  string
}

// Scan walks root recursively and returns the classified result.
// An unreadable root or directory is fatal; an unreadable file is
// skipped and counted.
func (s *Scanner) Scan(root string) (*ScanResult, error) {
	start := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	result := &ScanResult{
		Root:        root,
		derivatives: make(map[string][]File),
	}

	// Bases and derivative candidates per directory; attachment is a
	// same-directory operation.
	basesByDir := make(map[string][]*BaseImage)
	candidatesByDir := make(map[string][]candidate)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return fmt.Errorf("reading directory %s: %w", path, walkErr)
			}
			result.Counters.Skipped++
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "__") {
			if d.IsDir() && path != root {
				return filepath.SkipDir
			}
			if !d.IsDir() {
				return nil
			}
		}
		if d.IsDir() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			result.Counters.Skipped++
			return nil
		}
		result.Counters.FilesSeen++

		file := File{
			Path:    path,
			Ext:     strings.ToLower(filepath.Ext(path)),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		}
		dir := filepath.Dir(path)
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		switch {
		case IsRawExtension(file.Ext):
			basesByDir[dir] = append(basesByDir[dir], &BaseImage{
				File:      file,
				Kind:      RawFrameCounter,
				FamilyKey: FrameCounterKey(stem),
			})
		case isCinemaTiff(file.Ext, stem):
			cs, _ := ParseCinemaStem(stem)
			kind := CinemaMergedTiff
			if cs.Bracketed() {
				kind = CinemaBracketedTiff
			}
			basesByDir[dir] = append(basesByDir[dir], &BaseImage{
				File:      file,
				Kind:      kind,
				FamilyKey: cs.FamilyKey(),
				ClipKey:   cs.ClipKey(),
				Seq:       cs.Seq,
			})
		case IsDerivativeExtension(file.Ext):
			candidatesByDir[dir] = append(candidatesByDir[dir], candidate{
				file: file,
				key:  DerivativeKey(stem),
			})
		default:
			// Not an image format we track.
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.attach(result, basesByDir, candidatesByDir)

	sort.Slice(result.Bases, func(i, j int) bool {
		return result.Bases[i].Path < result.Bases[j].Path
	})
	for _, devs := range result.derivatives {
		sort.Slice(devs, func(i, j int) bool { return devs[i].Path < devs[j].Path })
	}

	result.Counters.Bases = len(result.Bases)
	result.Counters.Duration = time.Since(start)
	return result, nil
}

// attach links every derivative candidate to the base sharing its family
// key within the same directory, promoting unmatched candidates to
// orphan bases.
func (s *Scanner) attach(result *ScanResult, basesByDir map[string][]*BaseImage, candidatesByDir map[string][]candidate) {
	for _, bases := range basesByDir {
		result.Bases = append(result.Bases, bases...)
	}

	for dir, cands := range candidatesByDir {
		byKey := make(map[string][]*BaseImage)
		for _, b := range basesByDir[dir] {
			byKey[b.FamilyKey] = append(byKey[b.FamilyKey], b)
		}
		for _, c := range cands {
			owners := byKey[c.key]
			switch {
			case len(owners) == 0:
				// Orphan: promoted so downstream stages still see it.
				result.Bases = append(result.Bases, &BaseImage{
					File:      c.file,
					Kind:      PromotedOrphan,
					FamilyKey: c.key,
				})
				result.Counters.OrphansPromoted++
			case len(owners) == 1:
				result.derivatives[owners[0].Path] = append(result.derivatives[owners[0].Path], c.file)
				result.Counters.Derivatives++
			default:
				// Two bases share a leading digit run. Attach to the
				// oldest file and record the ambiguity.
				oldest := owners[0]
				for _, b := range owners[1:] {
					if b.ModTime.Before(oldest.ModTime) {
						oldest = b
					}
				}
				result.derivatives[oldest.Path] = append(result.derivatives[oldest.Path], c.file)
				result.Counters.Derivatives++
				result.Counters.AmbiguousAttach++
			}
		}
	}
}

func isCinemaTiff(ext, stem string) bool {
	if ext != ".tif" && ext != ".tiff" {
		return false
	}
	_, ok := ParseCinemaStem(stem)
	return ok
}
