package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every Q&A pair from the index",
	Long:  `Empties the similarity index and, when enabled, the provenance graph. Requires --yes.`,
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the embedding cache",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop every cached embedding",
	Args:  cobra.NoArgs,
	RunE:  runCacheFlush,
}

// confirmClear is the --yes flag for the clear command.
var confirmClear bool

func init() {
	clearCmd.Flags().BoolVarP(&confirmClear, "yes", "y", false, "Confirm removal of all pairs")

	cacheCmd.AddCommand(cacheFlushCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	count, err := app.Index.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pairs: %w", err)
	}
	categories, err := app.Index.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}

	cmd.Printf("Q&A pairs:  %d\n", count)
	cmd.Printf("Categories: %d\n", len(categories))
	for _, c := range categories {
		cmd.Printf("  %s\n", c)
	}

	runs, err := app.DB.ListIngestions(ctx, 5)
	if err != nil {
		return fmt.Errorf("failed to list ingestions: %w", err)
	}
	if len(runs) > 0 {
		cmd.Println("\nRecent ingestions:")
		for _, r := range runs {
			cmd.Printf("  %s  %-18s %4d pairs  %s\n",
				r.CreatedAt.Format("2006-01-02 15:04:05"), r.Status, r.PairsExtracted, r.FileName)
		}
	}

	eval, err := app.DB.LatestEvaluation(ctx)
	if err != nil {
		return err
	}
	if eval != nil {
		cmd.Printf("\nLast evaluation: %s (%d questions, similarity %.3f, %s)\n",
			eval.Dataset, eval.Questions, eval.MeanSimilarity, eval.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	if !confirmClear {
		return errors.New("refusing to clear the index without --yes")
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}

	cmd.Println("Index cleared")
	return nil
}

func runCacheFlush(cmd *cobra.Command, _ []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Cache == nil {
		cmd.Println("Embedding cache is not enabled")
		return nil
	}

	deleted, err := app.InvalidateEmbeddings(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}

	cmd.Printf("Removed %d cached embeddings\n", deleted)
	return nil
}
