package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rkubicek/rawsidecar/internal/catalog"
	"github.com/rkubicek/rawsidecar/internal/config"
)

var similarCmd = &cobra.Command{
	Use:   "similar [path]",
	Short: "Find catalogued shots visually similar to a given image",
	Long: `Find shots from earlier ingest runs that look like the given image.

The search runs over the representative embeddings stored in the catalog,
so the image must have been ingested with the embedding service enabled.
Lower distance values indicate more similar shots.

Examples:
  # Find shots similar to one ingested image
  rawsidecar similar /photos/2023-07/IMG_0042.CR2

  # Limit results
  rawsidecar similar /photos/2023-07/IMG_0042.CR2 --limit 5

  # Output as JSON
  rawsidecar similar /photos/2023-07/IMG_0042.CR2 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().Int("limit", 10, "Maximum number of results")
	similarCmd.Flags().Bool("json", false, "Output as JSON")
}

// SimilarShot is one result row of the similar search.
type SimilarShot struct {
	Path       string  `json:"path"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"` // 1 - distance, for easier interpretation
}

// SimilarOutput is the JSON output structure of the similar command.
type SimilarOutput struct {
	SourcePath string        `json:"source_path"`
	Results    []SimilarShot `json:"results"`
	Count      int           `json:"count"`
}

func runSimilar(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	if cfg.Catalog.StorePath == "" {
		return errors.New("CATALOG_STORE_PATH environment variable is required")
	}

	store, err := catalog.Open(cfg.Catalog.StorePath)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()

	neighbors, err := store.SimilarShots(args[0], limit)
	if err != nil {
		return err
	}

	results := make([]SimilarShot, 0, len(neighbors))
	for _, n := range neighbors {
		results = append(results, SimilarShot{
			Path:       n.Path,
			Distance:   float64(n.Distance),
			Similarity: 1 - float64(n.Distance),
		})
	}

	if jsonOutput {
		if err := json.NewEncoder(os.Stdout).Encode(SimilarOutput{
			SourcePath: args[0], Results: results, Count: len(results),
		}); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}
		return nil
	}

	if len(results) == 0 {
		fmt.Printf("No similar shots found for %s\n", args[0])
		return nil
	}

	fmt.Printf("Found %d similar shots:\n\n", len(results))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tDISTANCE\tSIMILARITY")
	fmt.Fprintln(w, "----\t--------\t----------")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.4f\t%.2f%%\n", r.Path, r.Distance, r.Similarity*100)
	}
	return w.Flush()
}
