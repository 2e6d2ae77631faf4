package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/rkubicek/rawsidecar/internal/ai"
)

// DefaultConfidenceThreshold marks records below it for review.
const DefaultConfidenceThreshold = 85

// Source pairs an analyzer with its provenance tag.
type Source struct {
	Analyzer ai.Analyzer
	Tag      Provider
}

// Context carries everything the composer needs for one group.
type Context struct {
	// PreviewData is the main representative's preview, JPEG-encoded.
	PreviewData []byte
	// FolderKeywords is the union of folder keywords across the
	// group's constituent shots.
	FolderKeywords []string
	// ExifGPS is the representative's EXIF position, if any.
	ExifGPS *GPS
	// OperatorGPS is an operator-entered position for this group. It
	// outranks every other source.
	OperatorGPS *GPS
	CameraMake  string
	CameraModel string
	// TakenAt is the representative's capture time, RFC 3339, or "".
	TakenAt string
}

// Composer turns vision model analyses into records. When a fallback
// source is configured, low-confidence results are retried against it
// and the more confident analysis wins.
type Composer struct {
	primary             Source
	fallback            *Source
	strategy            ai.Strategy
	confidenceThreshold int
}

func NewComposer(primary Source, fallback *Source, strategy ai.Strategy, confidenceThreshold int) *Composer {
	if confidenceThreshold <= 0 {
		confidenceThreshold = DefaultConfidenceThreshold
	}
	return &Composer{
		primary:             primary,
		fallback:            fallback,
		strategy:            strategy,
		confidenceThreshold: confidenceThreshold,
	}
}

// Compose analyzes the group and builds its record. A model failure is
// not fatal: the returned record is empty and flagged for review, and
// the error is returned alongside it for logging.
func (c *Composer) Compose(ctx context.Context, mc *Context) (*Record, error) {
	req := &ai.Request{
		ImageData:      mc.PreviewData,
		FolderKeywords: mc.FolderKeywords,
		CameraMake:     mc.CameraMake,
		CameraModel:    mc.CameraModel,
		TakenAt:        mc.TakenAt,
	}
	if mc.ExifGPS != nil {
		req.ExifGPS = &ai.GPS{
			Latitude:  mc.ExifGPS.Latitude,
			Longitude: mc.ExifGPS.Longitude,
			Altitude:  mc.ExifGPS.Altitude,
		}
	}

	analysis, err := c.primary.Analyzer.Analyze(ctx, req, c.strategy)
	tag := c.primary.Tag
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rec := &Record{Provider: tag, NeedsReview: true}
		applyGPSPrecedence(rec, nil, mc)
		rec.Keywords = mergeKeywords(mc.FolderKeywords, nil)
		return rec, fmt.Errorf("vision analysis failed: %w", err)
	}

	if analysis.Confidence < c.confidenceThreshold && c.fallback != nil {
		retry, retryErr := c.fallback.Analyzer.Analyze(ctx, req, c.strategy)
		if retryErr == nil && retry.Confidence > analysis.Confidence {
			analysis = retry
			tag = c.fallback.Tag
		}
	}

	rec := recordFromAnalysis(analysis, tag)
	rec.Keywords = mergeKeywords(mc.FolderKeywords, analysis.Keywords)
	rec.NeedsReview = analysis.Confidence < c.confidenceThreshold
	applyGPSPrecedence(rec, analysis, mc)
	return rec, nil
}

func recordFromAnalysis(a *ai.Analysis, tag Provider) *Record {
	return &Record{
		Title:       a.Title,
		Description: a.Description,
		Caption:     a.Caption,
		Category:    a.Category,
		SceneType:   a.SceneType,
		Mood:        a.Mood,
		Subjects:    a.Subjects,
		Hashtags:    a.Hashtags,
		AltText:     a.AltText,
		Location: Location{
			City:     a.Location.City,
			State:    a.Location.State,
			Country:  a.Location.Country,
			Specific: a.Location.Specific,
		},
		Confidence:      a.Confidence,
		UncertainFields: a.UncertainFields,
		Provider:        tag,
	}
}

// applyGPSPrecedence picks the record's authoritative position:
// operator entry first, then the model's position when it agrees with
// EXIF, then EXIF itself, else none.
func applyGPSPrecedence(rec *Record, a *ai.Analysis, mc *Context) {
	switch {
	case mc.OperatorGPS != nil:
		rec.GPS = mc.OperatorGPS
	case a != nil && a.GPS != nil && a.GPSValidation.Status == ai.GPSAgree && mc.ExifGPS != nil:
		rec.GPS = &GPS{
			Latitude:  a.GPS.Latitude,
			Longitude: a.GPS.Longitude,
			Altitude:  a.GPS.Altitude,
		}
		if rec.GPS.Altitude == nil {
			rec.GPS.Altitude = mc.ExifGPS.Altitude
		}
	case mc.ExifGPS != nil:
		rec.GPS = mc.ExifGPS
	default:
		rec.GPS = nil
	}
}

// mergeKeywords unions the two lists, deduplicating
// case-insensitively with first-seen casing retained.
func mergeKeywords(folder, vision []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, kw := range append(append([]string{}, folder...), vision...) {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}
