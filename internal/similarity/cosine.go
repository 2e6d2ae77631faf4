package similarity

import "math"

// Cosine computes the cosine similarity of two vectors, clamped to
// [-1, 1]. Mismatched or empty vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// Percent maps a cosine similarity onto the 0-100 scale used for
// linking thresholds.
func Percent(cos float64) int {
	return int(math.Round(cos * 100))
}
