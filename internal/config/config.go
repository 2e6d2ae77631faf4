package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

// Defaults for the tunables; every one can be overridden from the
// environment.
const (
	DefaultTimestampWindowSeconds     = 5
	DefaultHashHammingThreshold       = 13
	DefaultSimilarityPercentThreshold = 80
	DefaultConfidenceThreshold        = 85
)

type Config struct {
	Scan       ScanConfig
	Exif       ExifConfig
	Similarity SimilarityConfig
	Vision     VisionConfig
	Catalog    CatalogConfig
	Preview    PreviewConfig
	Rights     RightsConfig
	Prices     PricesConfig
}

type ScanConfig struct {
	TimestampWindowSeconds int
	HashHammingThreshold   int
}

type ExifConfig struct {
	ToolPath string // defaults to "exiftool" resolved on PATH
}

type SimilarityConfig struct {
	Enabled          bool
	PercentThreshold int
	ServiceURL       string // defaults to http://localhost:8765
}

type VisionConfig struct {
	Provider            string // "openai" or "gemini"
	PromptStrategy      string // "context_first" or "balanced"
	ConfidenceThreshold int
	OpenAIToken         string
	GeminiAPIKey        string
}

type CatalogConfig struct {
	StorePath string // empty disables the catalog
}

type PreviewConfig struct {
	CacheDir string
}

type RightsConfig struct {
	Creator         string
	Rights          string
	UsageTerms      string
	CopyrightMarked bool
	ContactEmail    string
	ContactWebsite  string
	ContactPhone    string
	ContactAddress  string
	ContactCity     string
	ContactRegion   string
	ContactPostal   string
	ContactCountry  string
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Input  float64 `yaml:"input"`  // per 1M tokens
	Output float64 `yaml:"output"` // per 1M tokens
}

// envInt reads an environment variable and parses it as a positive
// integer, falling back to the default when unset or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool treats "0", "false" and "no" as false; any other set value
// is true; unset means the default.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	switch s {
	case "0", "false", "no":
		return false
	}
	return true
}

func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// Embedded file; failing to parse it is a build defect.
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		Scan: ScanConfig{
			TimestampWindowSeconds: envInt("TIMESTAMP_WINDOW_SECONDS", DefaultTimestampWindowSeconds),
			HashHammingThreshold:   envInt("HASH_HAMMING_THRESHOLD", DefaultHashHammingThreshold),
		},
		Exif: ExifConfig{
			ToolPath: envStr("EXIF_TOOL_PATH", "exiftool"),
		},
		Similarity: SimilarityConfig{
			Enabled:          envBool("SIMILARITY_ENABLED", true),
			PercentThreshold: envInt("SIMILARITY_PERCENT_THRESHOLD", DefaultSimilarityPercentThreshold),
			ServiceURL:       envStr("EMBEDDING_SERVICE_URL", "http://localhost:8765"),
		},
		Vision: VisionConfig{
			Provider:            envStr("VISION_PROVIDER", "openai"),
			PromptStrategy:      envStr("PROMPT_STRATEGY", "balanced"),
			ConfidenceThreshold: envInt("CONFIDENCE_THRESHOLD", DefaultConfidenceThreshold),
			OpenAIToken:         os.Getenv("OPENAI_TOKEN"),
			GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		},
		Catalog: CatalogConfig{
			StorePath: os.Getenv("CATALOG_STORE_PATH"),
		},
		Preview: PreviewConfig{
			CacheDir: os.Getenv("PREVIEW_CACHE_DIR"),
		},
		Rights: RightsConfig{
			Creator:         os.Getenv("SIDECAR_CREATOR"),
			Rights:          os.Getenv("SIDECAR_RIGHTS"),
			UsageTerms:      os.Getenv("SIDECAR_USAGE_TERMS"),
			CopyrightMarked: envBool("SIDECAR_COPYRIGHT_MARKED", false),
			ContactEmail:    os.Getenv("SIDECAR_CONTACT_EMAIL"),
			ContactWebsite:  os.Getenv("SIDECAR_CONTACT_WEBSITE"),
			ContactPhone:    os.Getenv("SIDECAR_CONTACT_PHONE"),
			ContactAddress:  os.Getenv("SIDECAR_CONTACT_ADDRESS"),
			ContactCity:     os.Getenv("SIDECAR_CONTACT_CITY"),
			ContactRegion:   os.Getenv("SIDECAR_CONTACT_REGION"),
			ContactPostal:   os.Getenv("SIDECAR_CONTACT_POSTAL"),
			ContactCountry:  os.Getenv("SIDECAR_CONTACT_COUNTRY"),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model; zero pricing
// when the model is unlisted.
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}
