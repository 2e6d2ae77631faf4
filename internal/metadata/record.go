// Package metadata composes editorial records for shot groups from
// vision model output, EXIF context and folder keywords.
package metadata

// Provider tags which source produced a record's content.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderManual Provider = "manual"
)

// GPS is an authoritative position in signed decimal degrees.
type GPS struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64 // meters, negative below sea level
}

// Location names where a group was shot.
type Location struct {
	City     string
	State    string
	Country  string
	Specific string
}

// Contact is the IPTC creator contact block carried into sidecars.
type Contact struct {
	Address string
	City    string
	Region  string
	Postal  string
	Country string
	Email   string
	Phone   string
	Website string
}

// Record is the composed editorial record for one group of shots. It
// is created by the Composer, optionally edited by the operator, and
// consumed by the sidecar writer.
type Record struct {
	Title           string
	Description     string
	Caption         string
	Keywords        []string
	Category        string
	SceneType       []string
	Mood            string
	Subjects        []string
	Hashtags        []string
	AltText         string
	Location        Location
	GPS             *GPS
	Confidence      int
	UncertainFields []string
	Provider        Provider
	NeedsReview     bool

	// Rights and attribution, filled from configuration.
	Creator         string
	Rights          string
	UsageTerms      string
	CopyrightMarked bool
	Contact         *Contact
}

// Edit is a manual override applied to a composed record. Nil fields
// leave the composed value in place.
type Edit struct {
	Title       *string
	Description *string
	Caption     *string
	Keywords    []string
	GPS         *GPS
	Location    *Location
}

// Apply merges a manual edit into the record. The record's provenance
// switches to manual and review is considered done; the model is not
// consulted again.
func (r *Record) Apply(e *Edit) {
	if e.Title != nil {
		r.Title = *e.Title
	}
	if e.Description != nil {
		r.Description = *e.Description
	}
	if e.Caption != nil {
		r.Caption = *e.Caption
	}
	if e.Keywords != nil {
		r.Keywords = mergeKeywords(e.Keywords, r.Keywords)
	}
	if e.GPS != nil {
		r.GPS = e.GPS
	}
	if e.Location != nil {
		r.Location = *e.Location
	}
	r.Provider = ProviderManual
	r.NeedsReview = false
}
