package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matsen/citematch/internal/config"
	"github.com/matsen/citematch/internal/library"
	"github.com/matsen/citematch/internal/match"
	"github.com/matsen/citematch/internal/reference"
	"github.com/matsen/citematch/internal/storage"
)

var (
	matchRefsPath     string
	matchLibraryJSON  string
	matchLibraryCache string
	matchEndpoint     string
	matchOutput       string

	matchTopK               int
	matchAutoMatchThreshold float64
	matchAutoMatchGap       float64
	matchNeedsLLMThreshold  float64
	matchYearBoost          float64
	matchAuthorBoost        float64
)

func init() {
	rootCmd.AddCommand(matchCmd)

	defaults := match.DefaultParams()
	matchCmd.Flags().StringVar(&matchRefsPath, "refs", "", "Path to refs_extracted.json (required)")
	matchCmd.Flags().StringVar(&matchLibraryJSON, "library-json", "", "Path to a Better BibTeX JSON export file")
	matchCmd.Flags().StringVar(&matchLibraryCache, "library-cache", "", "Path to a synced library cache database")
	matchCmd.Flags().StringVar(&matchEndpoint, "endpoint", "", "Zotero Better BibTeX export endpoint (default: local Zotero)")
	matchCmd.Flags().StringVar(&matchOutput, "output", "", "Output path (default: match_result.json next to --refs)")
	matchCmd.Flags().IntVar(&matchTopK, "top-k", defaults.TopK, "Candidates retrieved per reference")
	matchCmd.Flags().Float64Var(&matchAutoMatchThreshold, "auto-match-threshold", defaults.AutoMatchThreshold, "Minimum top score for a tfidf auto-match")
	matchCmd.Flags().Float64Var(&matchAutoMatchGap, "auto-match-gap", defaults.AutoMatchGap, "Minimum top1-top2 gap for a tfidf auto-match")
	matchCmd.Flags().Float64Var(&matchNeedsLLMThreshold, "needs-llm-threshold", defaults.NeedsLLMThreshold, "Minimum top score to route to needs_llm")
	matchCmd.Flags().Float64Var(&matchYearBoost, "year-boost", defaults.YearBoost, "Additive boost for a matching year")
	matchCmd.Flags().Float64Var(&matchAuthorBoost, "author-boost", defaults.AuthorBoost, "Additive boost for a matching author")
	matchCmd.MarkFlagRequired("refs")
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve extracted references against the library",
	Long: `Build a match_result.json from refs_extracted.json and a library export.

The library comes from --library-json (a raw export file), --library-cache
(a database written by 'citematch library sync'), or, when neither is given,
a live fetch from the Better BibTeX export endpoint.

Examples:
  citematch match --refs refs_extracted.json
  citematch match --refs refs_extracted.json --library-cache library.db
  citematch match --refs refs_extracted.json --top-k 5 --human`,
	RunE: runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	refsData, err := os.ReadFile(matchRefsPath)
	if err != nil {
		exitWithError(ExitDataError, "reading refs file: %v", err)
	}

	extracted, err := reference.ParseExtracted(refsData)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	cfg := mustLoadGlobalConfig()
	params := matchParams(cmd, cfg)

	idx, meta := loadLibrary(cmd.Context(), cfg)
	resolver := match.NewResolver(idx, params)

	meta.DocPath = metaString(extracted.Meta, "doc_path")
	meta.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	meta.RunID = uuid.NewString()
	meta.LibraryItemCount = idx.IndexedItems
	meta.LibraryTotalItemCount = idx.TotalItems
	meta.Warnings = append([]string{}, extracted.Warnings...)
	meta.Warnings = append(meta.Warnings, idx.Warnings...)

	refs := resolver.Resolve(extracted.Refs)
	result := &reference.MatchResult{
		Meta:  meta,
		Refs:  refs,
		Stats: reference.ComputeStats(refs),
	}

	outputPath := matchOutput
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(matchRefsPath), "match_result.json")
	}
	if err := writeJSONFile(outputPath, result); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		fmt.Println(renderStatsTable(result.Stats))
		fmt.Println(outputPath)
		return nil
	}
	return outputJSON(map[string]interface{}{
		"output": outputPath,
		"stats":  result.Stats,
	})
}

// loadLibrary builds the library index from the configured source. A missing
// or unreadable library is fatal: no partial result is meaningful without it.
func loadLibrary(ctx context.Context, cfg *config.GlobalConfig) (*library.Index, reference.Meta) {
	var meta reference.Meta

	switch {
	case matchLibraryJSON != "":
		data, err := os.ReadFile(matchLibraryJSON)
		if err != nil {
			exitWithError(ExitDataError, "reading library export: %v", err)
		}
		items, err := library.ParseExport(data)
		if err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
		meta.LibraryCachePath = matchLibraryJSON
		return library.BuildIndex(items), meta

	case matchLibraryCache != "" || cfg.LibraryCache != "":
		path := matchLibraryCache
		if path == "" {
			path = cfg.LibraryCache
		}
		db, err := storage.Open(path)
		if err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
		defer db.Close()

		records, err := db.LoadRecords()
		if err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
		if len(records) == 0 {
			exitWithError(ExitDataError, "%v", storage.ErrEmptyCache)
		}
		totalItems := len(records)
		if info, err := db.Info(); err == nil {
			totalItems = info.ItemCount
		}
		meta.LibraryCachePath = path
		return library.IndexRecords(records, totalItems), meta

	default:
		client := library.NewClient(library.WithEndpoint(resolveEndpoint(matchEndpoint, cfg)))
		items, err := client.FetchItems(ctx)
		if err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
		meta.ZoteroEndpoint = client.Endpoint()
		return library.BuildIndex(items), meta
	}
}

// matchParams layers the parameter sources: defaults, then the global
// config, then explicitly set flags.
func matchParams(cmd *cobra.Command, cfg *config.GlobalConfig) match.Params {
	params := match.DefaultParams()

	if cfg.Match.TopK > 0 {
		params.TopK = cfg.Match.TopK
	}
	if cfg.Match.AutoMatchThreshold > 0 {
		params.AutoMatchThreshold = cfg.Match.AutoMatchThreshold
	}
	if cfg.Match.AutoMatchGap > 0 {
		params.AutoMatchGap = cfg.Match.AutoMatchGap
	}
	if cfg.Match.NeedsLLMThreshold > 0 {
		params.NeedsLLMThreshold = cfg.Match.NeedsLLMThreshold
	}
	if cfg.Match.YearBoost > 0 {
		params.YearBoost = cfg.Match.YearBoost
	}
	if cfg.Match.AuthorBoost > 0 {
		params.AuthorBoost = cfg.Match.AuthorBoost
	}

	if cmd.Flags().Changed("top-k") {
		params.TopK = matchTopK
	}
	if cmd.Flags().Changed("auto-match-threshold") {
		params.AutoMatchThreshold = matchAutoMatchThreshold
	}
	if cmd.Flags().Changed("auto-match-gap") {
		params.AutoMatchGap = matchAutoMatchGap
	}
	if cmd.Flags().Changed("needs-llm-threshold") {
		params.NeedsLLMThreshold = matchNeedsLLMThreshold
	}
	if cmd.Flags().Changed("year-boost") {
		params.YearBoost = matchYearBoost
	}
	if cmd.Flags().Changed("author-boost") {
		params.AuthorBoost = matchAuthorBoost
	}
	return params
}

// resolveEndpoint picks the export endpoint: flag, then environment, then
// global config, then the local Zotero default.
func resolveEndpoint(flagValue string, cfg *config.GlobalConfig) string {
	if flagValue != "" {
		return flagValue
	}
	_ = godotenv.Load()
	if env := os.Getenv("ZOTERO_ENDPOINT"); env != "" {
		return env
	}
	if cfg.ZoteroEndpoint != "" {
		return cfg.ZoteroEndpoint
	}
	return library.DefaultEndpoint
}

func mustLoadGlobalConfig() *config.GlobalConfig {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return cfg
}

func metaString(meta map[string]interface{}, key string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}
