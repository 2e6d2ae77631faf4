package scan

import "time"

// Kind classifies how a base image entered the catalog.
type Kind int

const (
	// RawFrameCounter is a camera RAW file named with a frame counter
	// (IMG_0001.CR2, DSC04521.ARW, ...).
	RawFrameCounter Kind = iota
	// CinemaBracketedTiff is one exposure of a bracketed cinema frame
	// (stem carries an _S### segment).
	CinemaBracketedTiff
	// CinemaMergedTiff is the merged output of a cinema frame (no _S###).
	CinemaMergedTiff
	// PromotedOrphan is a derivative that matched no base in its
	// directory and was promoted so downstream stages still see it.
	PromotedOrphan
)

func (k Kind) String() string {
	switch k {
	case RawFrameCounter:
		return "raw"
	case CinemaBracketedTiff:
		return "cinema-bracketed"
	case CinemaMergedTiff:
		return "cinema-merged"
	case PromotedOrphan:
		return "promoted-orphan"
	default:
		return "unknown"
	}
}

// File is a single regular file on disk. Identity is the absolute path.
type File struct {
	Path    string
	Ext     string // lowercase, with leading dot
	Size    int64
	ModTime time.Time
}

// BaseImage is a File classified as a primary capture.
type BaseImage struct {
	File
	Kind      Kind
	FamilyKey string
	// ClipKey groups cinema frames across bracket steps:
	// camera + magazine + clip code + frame counter. Empty for
	// non-cinema kinds.
	ClipKey string
	// Seq is the bracket segment of a cinema stem ("S000", "S001", ...),
	// empty for merged frames and non-cinema kinds.
	Seq string
	// TakenAt is filled in after EXIF reading; nil when the file
	// carries no usable capture timestamp.
	TakenAt *time.Time
}

// IsCinema reports whether the base came from a cinema clip-frame stem.
func (b *BaseImage) IsCinema() bool {
	return b.Kind == CinemaBracketedTiff || b.Kind == CinemaMergedTiff
}

// Counters summarizes a scan.
type Counters struct {
	FilesSeen       int
	Bases           int
	Derivatives     int
	OrphansPromoted int
	Skipped         int
	// AmbiguousAttach counts derivatives whose family key matched more
	// than one base in the directory; they were attached to the oldest.
	AmbiguousAttach int
	Duration        time.Duration
}

// ScanResult is the immutable output of a directory walk.
type ScanResult struct {
	Root  string
	Bases []*BaseImage
	// derivatives are keyed by the owning base's path.
	derivatives map[string][]File
	Counters    Counters
}

// NewScanResult builds a result from pre-classified bases and their
// derivative attachments, keyed by owning base path. The scanner
// assembles its result directly; this is for callers composing one
// without a walk.
func NewScanResult(root string, bases []*BaseImage, derivatives map[string][]File) *ScanResult {
	if derivatives == nil {
		derivatives = make(map[string][]File)
	}
	return &ScanResult{Root: root, Bases: bases, derivatives: derivatives}
}

// DerivativesOf returns the ordered derivatives attached to base.
func (r *ScanResult) DerivativesOf(base *BaseImage) []File {
	return r.derivatives[base.Path]
}

// PathIndex returns a path -> File view over every base and derivative.
// The map is built once and shared read-only by later stages.
func (r *ScanResult) PathIndex() map[string]File {
	idx := make(map[string]File, len(r.Bases))
	for _, b := range r.Bases {
		idx[b.Path] = b.File
		for _, d := range r.derivatives[b.Path] {
			idx[d.Path] = d
		}
	}
	return idx
}
