package ai

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

// --- ResizeImage tests ---

func TestResizeImage_NoResizeNeeded(t *testing.T) {
	data := encodeJPEG(createTestImage(100, 100, color.White))

	resized, err := ResizeImage(data, 200)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	_, format, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg format, got %s", format)
	}
}

func TestResizeImage_NeedsResize(t *testing.T) {
	data := encodeJPEG(createTestImage(2000, 1000, color.White))

	resized, err := ResizeImage(data, 500)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	decoded, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("failed to decode resized image: %v", err)
	}

	bounds := decoded.Bounds()
	if bounds.Dx() != 500 {
		t.Errorf("expected width 500, got %d", bounds.Dx())
	}
	if bounds.Dy() != 250 {
		t.Errorf("expected height 250, got %d", bounds.Dy())
	}
}

func TestResizeImage_InvalidData(t *testing.T) {
	if _, err := ResizeImage([]byte("not an image"), 500); err == nil {
		t.Error("expected error for invalid image data")
	}
}

// --- prompt building tests ---

func TestBuildSystemPrompt_Strategies(t *testing.T) {
	cf := buildSystemPrompt(StrategyContextFirst)
	bal := buildSystemPrompt(StrategyBalanced)

	if cf == "" || bal == "" {
		t.Fatal("expected non-empty prompts")
	}
	if cf == bal {
		t.Error("expected different prompts per strategy")
	}
	if !strings.Contains(cf, "folder keywords") {
		t.Error("context-first prompt should mention folder keywords")
	}
}

func TestBuildUserMessage_WithContext(t *testing.T) {
	req := &Request{
		FolderKeywords: []string{"Iceland", "Glacier"},
		ExifGPS:        &GPS{Latitude: 64.016667, Longitude: -16.183333},
		CameraMake:     "Canon",
		CameraModel:    "EOS R5",
		TakenAt:        "2023-07-14T10:32:00Z",
	}

	msg := buildUserMessage(req)

	for _, want := range []string{
		"Folder keywords: Iceland, Glacier",
		"64.016667, -16.183333",
		"Canon EOS R5",
		"2023-07-14T10:32:00Z",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestBuildUserMessage_NoGPS(t *testing.T) {
	msg := buildUserMessage(&Request{})
	if !strings.Contains(msg, "No EXIF GPS coordinates available.") {
		t.Errorf("expected no-GPS note, got:\n%s", msg)
	}
}

// --- response cleaning tests ---

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"title":"x"}`, `{"title":"x"}`},
		{"json fence", "```json\n{\"title\":\"x\"}\n```", `{"title":"x"}`},
		{"bare fence", "```\n{\"title\":\"x\"}\n```", `{"title":"x"}`},
		{"whitespace", "  {\"title\":\"x\"}\n", `{"title":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSONResponse(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnalysisUnmarshal(t *testing.T) {
	payload := `{
		"title": "Glacier Lagoon at Dawn",
		"keywords": ["iceland", "glacier"],
		"scene_type": ["outdoor"],
		"gps": {"latitude": 64.05, "longitude": -16.18},
		"gps_validation": {"status": "predict", "reason": "recognizable lagoon", "confidence": 70},
		"confidence": 88,
		"uncertain_fields": ["location.city"]
	}`

	var a Analysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if a.Title != "Glacier Lagoon at Dawn" {
		t.Errorf("unexpected title %q", a.Title)
	}
	if a.GPS == nil || a.GPS.Latitude != 64.05 {
		t.Errorf("unexpected gps %+v", a.GPS)
	}
	if a.GPSValidation.Status != GPSPredict {
		t.Errorf("unexpected validation status %q", a.GPSValidation.Status)
	}
	if a.Confidence != 88 {
		t.Errorf("unexpected confidence %d", a.Confidence)
	}
}
