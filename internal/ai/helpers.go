package ai

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed prompts/context_first.txt
var contextFirstPrompt string

//go:embed prompts/balanced.txt
var balancedPrompt string

// buildSystemPrompt returns the embedded prompt for the given strategy.
func buildSystemPrompt(strategy Strategy) string {
	if strategy == StrategyContextFirst {
		return contextFirstPrompt
	}
	return balancedPrompt
}

// buildUserMessage builds the user message content with whatever
// context the request carries. Shared across all providers.
func buildUserMessage(req *Request) string {
	var parts []string
	parts = append(parts, "Analyze this photo.")

	if len(req.FolderKeywords) > 0 {
		parts = append(parts, "Folder keywords: "+strings.Join(req.FolderKeywords, ", "))
	}

	if req.ExifGPS != nil {
		parts = append(parts, fmt.Sprintf("EXIF GPS coordinates: %.6f, %.6f", req.ExifGPS.Latitude, req.ExifGPS.Longitude))
	} else {
		parts = append(parts, "No EXIF GPS coordinates available.")
	}

	if req.CameraMake != "" || req.CameraModel != "" {
		parts = append(parts, strings.TrimSpace("Camera: "+strings.TrimSpace(req.CameraMake+" "+req.CameraModel)))
	}

	if req.TakenAt != "" {
		parts = append(parts, "Capture time: "+req.TakenAt)
	}

	return strings.Join(parts, "\n")
}

// cleanJSONResponse strips markdown code fences some models wrap
// around JSON output.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(content, "```json"); ok {
		content = after
	} else if after, ok := strings.CutPrefix(content, "```"); ok {
		content = after
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// parseErrorFeedback is the retry message sent back to a model whose
// response failed to parse.
func parseErrorFeedback(err error) string {
	return fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Remember to escape quotes inside strings with backslash.", err)
}
