// Package ai wraps vision-language model backends behind a single
// Analyzer interface. Vendors differ in transport and error shapes;
// everything normalizes to the Analysis document here.
package ai

import "context"

// Strategy selects how the prompt weighs folder context against what
// the model sees.
type Strategy string

const (
	// StrategyContextFirst emphasizes folder keywords as priors.
	StrategyContextFirst Strategy = "context_first"
	// StrategyBalanced lets visual content dominate with folder
	// context as auxiliary signal.
	StrategyBalanced Strategy = "balanced"
)

// GPS is a coordinate hint or result in signed decimal degrees.
type GPS struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// Request carries everything the model needs to describe one shot.
type Request struct {
	// ImageData is the representative preview, JPEG-encoded.
	ImageData []byte
	// FolderKeywords is the union of folder-derived keywords across
	// the shot's constituent groups.
	FolderKeywords []string
	// ExifGPS is the representative's EXIF position, if any.
	ExifGPS *GPS
	// Camera identification, when EXIF carried it.
	CameraMake  string
	CameraModel string
	// TakenAt is the representative's capture time, RFC 3339, or "".
	TakenAt string
}

// Location names where a shot was taken, without geocoding.
type Location struct {
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
	Specific string `json:"specific"`
}

// GPSValidationStatus says how the model's position estimate relates
// to the EXIF position it was given.
type GPSValidationStatus string

const (
	GPSAbsent   GPSValidationStatus = "absent"
	GPSAgree    GPSValidationStatus = "agree"
	GPSDisagree GPSValidationStatus = "disagree"
	GPSPredict  GPSValidationStatus = "predict"
)

// GPSValidation is the model's judgement on coordinates.
type GPSValidation struct {
	Status     GPSValidationStatus `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	Confidence int                 `json:"confidence,omitempty"`
}

// Analysis is the structured document a vision model returns. Field
// names follow the JSON schema the prompts demand.
type Analysis struct {
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Caption         string        `json:"caption"`
	Keywords        []string      `json:"keywords"`
	Category        string        `json:"category"`
	SceneType       []string      `json:"scene_type"`
	Mood            string        `json:"mood"`
	Subjects        []string      `json:"subjects"`
	Hashtags        []string      `json:"hashtags"`
	AltText         string        `json:"alt_text"`
	Location        Location      `json:"location"`
	GPS             *GPS          `json:"gps,omitempty"`
	GPSValidation   GPSValidation `json:"gps_validation"`
	Confidence      int           `json:"confidence"`
	UncertainFields []string      `json:"uncertain_fields"`
}

// Analyzer is a vision-language model backend.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req *Request, strategy Strategy) (*Analysis, error)
	GetUsage() *Usage
	ResetUsage()
}

// Usage tracks token consumption and cost across a run.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // USD
}
