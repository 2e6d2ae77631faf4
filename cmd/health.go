package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkubicek/rawsidecar/internal/catalog"
	"github.com/rkubicek/rawsidecar/internal/config"
	"github.com/rkubicek/rawsidecar/internal/exifmeta"
	"github.com/rkubicek/rawsidecar/internal/similarity"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the external tools and services an ingest needs",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	failed := 0
	check := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Printf("FAIL  %-20s %v\n", name, err)
			return
		}
		fmt.Printf("ok    %s\n", name)
	}

	check("exiftool", exifmeta.NewReader(cfg.Exif.ToolPath).Available())

	client := similarity.NewClient(cfg.Similarity.ServiceURL)
	healthErr := client.Health(ctx)
	check("embedding service", healthErr)
	if healthErr == nil {
		// Round-trip a trivial pair to exercise the similarity endpoint.
		_, err := client.Similarity(ctx, []float32{1, 0}, []float32{0, 1})
		check("similarity endpoint", err)
	}

	if cfg.Catalog.StorePath != "" {
		store, err := catalog.Open(cfg.Catalog.StorePath)
		if err == nil {
			store.Close()
		}
		check("catalog", err)
	}

	keyErr := func(present bool, name string) error {
		if !present {
			return fmt.Errorf("%s not set", name)
		}
		return nil
	}
	switch cfg.Vision.Provider {
	case "gemini":
		check("gemini key", keyErr(cfg.Vision.GeminiAPIKey != "", "GEMINI_API_KEY"))
	default:
		check("openai key", keyErr(cfg.Vision.OpenAIToken != "", "OPENAI_TOKEN"))
	}

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}
