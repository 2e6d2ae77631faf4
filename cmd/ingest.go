package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkubicek/rawsidecar/internal/ai"
	"github.com/rkubicek/rawsidecar/internal/catalog"
	"github.com/rkubicek/rawsidecar/internal/config"
	"github.com/rkubicek/rawsidecar/internal/exifmeta"
	"github.com/rkubicek/rawsidecar/internal/fingerprint"
	"github.com/rkubicek/rawsidecar/internal/metadata"
	"github.com/rkubicek/rawsidecar/internal/pipeline"
	"github.com/rkubicek/rawsidecar/internal/preview"
	"github.com/rkubicek/rawsidecar/internal/similarity"
	"github.com/rkubicek/rawsidecar/internal/xmp"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Scan a directory tree and write XMP sidecars",
	Long: `Ingest walks the directory, clusters captures into shot groups,
describes each group with the configured vision model and writes one
XMP sidecar per affected file.

Exit codes: 0 complete, 1 fatal precondition failure, 2 cancelled.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Bool("dry-run", false, "Compose metadata without writing sidecars")
	ingestCmd.Flags().String("provider", "", "Vision provider: openai or gemini (default from VISION_PROVIDER)")
	ingestCmd.Flags().Int("workers", 0, "Worker pool size (0 = number of cores, capped at 8)")
	ingestCmd.Flags().Bool("no-similarity", false, "Skip cross-group similarity linking")
}

func runIngest(cmd *cobra.Command, args []string) error {
	root := args[0]
	cfg := config.Load()

	dryRun := mustGetBool(cmd, "dry-run")
	workers := mustGetInt(cmd, "workers")
	noSimilarity := mustGetBool(cmd, "no-similarity")
	providerName := mustGetString(cmd, "provider")
	if providerName == "" {
		providerName = cfg.Vision.Provider
	}

	// Preconditions: the scan root, the EXIF tool and the model key
	// must all be present before any work starts.
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("scan root %s is not a readable directory", root)
	}

	exif := exifmeta.NewReader(cfg.Exif.ToolPath)
	if err := exif.Available(); err != nil {
		return fmt.Errorf("exiftool not available: %w", err)
	}

	strategy := ai.Strategy(cfg.Vision.PromptStrategy)
	if strategy != ai.StrategyContextFirst && strategy != ai.StrategyBalanced {
		return fmt.Errorf("unknown prompt strategy: %s", cfg.Vision.PromptStrategy)
	}

	primary, fallback, err := buildSources(cmd.Context(), cfg, providerName)
	if err != nil {
		return err
	}

	cacheDir := cfg.Preview.CacheDir
	if cacheDir == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("resolving preview cache dir: %w", err)
		}
		cacheDir = filepath.Join(userCache, "rawsidecar", "previews")
	}
	previews, err := preview.NewProvider(cfg.Exif.ToolPath, cacheDir)
	if err != nil {
		return err
	}

	var store *catalog.Store
	if cfg.Catalog.StorePath != "" {
		if store, err = catalog.Open(cfg.Catalog.StorePath); err != nil {
			return err
		}
		defer store.Close()
	}

	// Ctrl+C cancels; stages drain and the partial result is reported.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal...")
		cancel()
	}()

	client := similarity.NewClient(cfg.Similarity.ServiceURL)
	composer := metadata.NewComposer(primary, fallback, strategy, cfg.Vision.ConfidenceThreshold)

	p := pipeline.New(pipeline.Deps{
		Exif:     exif,
		Previews: previews,
		Hasher:   fingerprint.NewHasher(),
		Linker:   similarity.NewLinker(client, previews),
		Composer: composer,
		Writer:   xmp.NewWriter(),
		Store:    store,
		Rights:   cfg.Rights,
		Progress: pipeline.NewBarSink(),
	}, pipeline.Options{
		Window:              time.Duration(cfg.Scan.TimestampWindowSeconds) * time.Second,
		HammingThreshold:    cfg.Scan.HashHammingThreshold,
		SimilarityEnabled:   cfg.Similarity.Enabled && !noSimilarity,
		SimilarityThreshold: cfg.Similarity.PercentThreshold,
		Workers:             workers,
		DryRun:              dryRun,
	})

	fmt.Printf("Ingesting: %s\n", root)
	fmt.Printf("Provider: %s\n", primary.Analyzer.Name())
	if dryRun {
		fmt.Println("Mode: DRY RUN (no sidecars will be written)")
	}
	fmt.Println()

	res, err := p.Run(ctx, root)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	printSummary(res, primary.Analyzer)

	if res.Status == pipeline.StatusCancelled {
		os.Exit(2)
	}
	return nil
}

// buildSources creates the primary analyzer and, when the other
// provider's key is configured, a fallback for low-confidence retries.
func buildSources(ctx context.Context, cfg *config.Config, providerName string) (metadata.Source, *metadata.Source, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	newOpenAI := func() (metadata.Source, error) {
		if cfg.Vision.OpenAIToken == "" {
			return metadata.Source{}, errors.New("OPENAI_TOKEN environment variable is required")
		}
		pricing := cfg.GetModelPricing("gpt-4o")
		a := ai.NewOpenAIProvider(cfg.Vision.OpenAIToken, ai.RequestPricing{Input: pricing.Input, Output: pricing.Output})
		return metadata.Source{Analyzer: a, Tag: metadata.ProviderOpenAI}, nil
	}
	newGemini := func() (metadata.Source, error) {
		if cfg.Vision.GeminiAPIKey == "" {
			return metadata.Source{}, errors.New("GEMINI_API_KEY environment variable is required")
		}
		pricing := cfg.GetModelPricing("gemini-2.5-flash")
		a, err := ai.NewGeminiProvider(ctx, cfg.Vision.GeminiAPIKey, ai.RequestPricing{Input: pricing.Input, Output: pricing.Output})
		if err != nil {
			return metadata.Source{}, fmt.Errorf("failed to create Gemini provider: %w", err)
		}
		return metadata.Source{Analyzer: a, Tag: metadata.ProviderGemini}, nil
	}

	var primaryFn, fallbackFn func() (metadata.Source, error)
	switch providerName {
	case "openai":
		primaryFn, fallbackFn = newOpenAI, newGemini
	case "gemini":
		primaryFn, fallbackFn = newGemini, newOpenAI
	default:
		return metadata.Source{}, nil, fmt.Errorf("unknown provider: %s (supported: openai, gemini)", providerName)
	}

	primary, err := primaryFn()
	if err != nil {
		return metadata.Source{}, nil, err
	}
	if fb, err := fallbackFn(); err == nil {
		return primary, &fb, nil
	}
	return primary, nil, nil
}

func printSummary(res *pipeline.Result, analyzer ai.Analyzer) {
	fmt.Println()
	if res.Scan != nil {
		fmt.Printf("Base images: %d (%d promoted orphans, %d skipped)\n",
			len(res.Scan.Bases), res.Scan.Counters.OrphansPromoted, res.Scan.Counters.Skipped)
	}
	fmt.Printf("Primary clusters: %d\n", len(res.Clusters))
	fmt.Printf("Sub-groups: %d\n", len(res.SubGroups))
	fmt.Printf("Groups: %d (%d need review)\n", len(res.Groups), res.NeedsReview)
	fmt.Printf("Sidecars written: %d\n", res.SidecarsWritten)

	for _, w := range res.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	usage := analyzer.GetUsage()
	if usage.InputTokens > 0 || usage.OutputTokens > 0 {
		fmt.Printf("\nAPI Usage:\n")
		fmt.Printf("  Input tokens: %d\n", usage.InputTokens)
		fmt.Printf("  Output tokens: %d\n", usage.OutputTokens)
		fmt.Printf("  Total cost: $%.4f\n", usage.TotalCost)
	}

	if res.Status == pipeline.StatusCancelled {
		fmt.Println("\nRun cancelled; results above are partial.")
	}
}
