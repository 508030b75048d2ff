package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/citematch/internal/config"
	"github.com/matsen/citematch/internal/library"
	"github.com/matsen/citematch/internal/storage"
)

var (
	syncEndpoint string
	syncCache    string
	infoCache    string
)

func init() {
	rootCmd.AddCommand(libraryCmd)
	libraryCmd.AddCommand(librarySyncCmd)
	libraryCmd.AddCommand(libraryInfoCmd)

	librarySyncCmd.Flags().StringVar(&syncEndpoint, "endpoint", "", "Zotero Better BibTeX export endpoint (default: local Zotero)")
	librarySyncCmd.Flags().StringVar(&syncCache, "cache", "", "Cache database path (default: library_cache from config)")

	libraryInfoCmd.Flags().StringVar(&infoCache, "cache", "", "Cache database path (default: library_cache from config)")
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage the cached library export",
}

var librarySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the library export and cache it locally",
	Long: `Fetch the full Better BibTeX export from Zotero and store it in a local
SQLite cache, replacing any previous sync. Matching can then run offline
via --library-cache.

Examples:
  citematch library sync --cache library.db
  citematch library sync --endpoint http://127.0.0.1:23119/better-bibtex/export/library?/1/library.betterbibtexjson`,
	RunE: runLibrarySync,
}

var libraryInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show what the library cache holds",
	RunE:  runLibraryInfo,
}

func runLibrarySync(cmd *cobra.Command, args []string) error {
	cfg := mustLoadGlobalConfig()
	cachePath := resolveCachePath(syncCache, cfg)

	client := library.NewClient(library.WithEndpoint(resolveEndpoint(syncEndpoint, cfg)))
	items, err := client.FetchItems(cmd.Context())
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	idx := library.BuildIndex(items)

	db, err := storage.Open(cachePath)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	defer db.Close()

	info := storage.CacheInfo{
		Endpoint:  client.Endpoint(),
		FetchedAt: time.Now().UTC(),
		ItemCount: idx.TotalItems,
	}
	if err := db.SaveRecords(idx.RecordList(), info); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		fmt.Printf("synced %d of %d items to %s\n", idx.IndexedItems, idx.TotalItems, cachePath)
		return nil
	}
	return outputJSON(map[string]interface{}{
		"cache":         cachePath,
		"endpoint":      client.Endpoint(),
		"indexed_items": idx.IndexedItems,
		"total_items":   idx.TotalItems,
		"warnings":      idx.Warnings,
	})
}

func runLibraryInfo(cmd *cobra.Command, args []string) error {
	cfg := mustLoadGlobalConfig()
	cachePath := resolveCachePath(infoCache, cfg)

	db, err := storage.Open(cachePath)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	defer db.Close()

	info, err := db.Info()
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	records, err := db.LoadRecords()
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	if humanOutput {
		fmt.Printf("cache:      %s\n", cachePath)
		fmt.Printf("endpoint:   %s\n", info.Endpoint)
		fmt.Printf("fetched_at: %s\n", info.FetchedAt.Format(time.RFC3339))
		fmt.Printf("records:    %d of %d items\n", len(records), info.ItemCount)
		return nil
	}
	return outputJSON(map[string]interface{}{
		"cache":       cachePath,
		"endpoint":    info.Endpoint,
		"fetched_at":  info.FetchedAt.Format(time.RFC3339),
		"records":     len(records),
		"total_items": info.ItemCount,
	})
}

func resolveCachePath(flag string, cfg *config.GlobalConfig) string {
	if flag != "" {
		return config.ExpandTilde(flag)
	}
	if cfg.LibraryCache != "" {
		return config.ExpandTilde(cfg.LibraryCache)
	}
	exitWithError(ExitConfigError, "no cache path: pass --cache or set library_cache in the global config")
	return ""
}
