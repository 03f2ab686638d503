package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reqanswer/backend/internal/ingestion"
)

var dirCmd = &cobra.Command{
	Use:   "dir [path]",
	Short: "Ingest every supported file below a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runDir,
}

var fileCmd = &cobra.Command{
	Use:   "file [path]",
	Short: "Ingest a single file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFile,
}

func init() {
	rootCmd.AddCommand(dirCmd)
	rootCmd.AddCommand(fileCmd)
}

func runDir(cmd *cobra.Command, args []string) error {
	info, err := os.Stat(args[0])
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", args[0])
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.Processor.ProcessDirectory(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to process directory: %w", err)
	}

	if len(results) == 0 {
		cmd.Printf("No supported files found in %s\n", args[0])
		return nil
	}

	printResults(cmd, results)
	return nil
}

func runFile(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !ingestion.Supported(path) {
		return fmt.Errorf("unsupported file type %q (supported: %v)", filepath.Ext(path), ingestion.SupportedExtensions())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.Processor.ProcessFile(cmd.Context(), path, content)
	if err != nil {
		return err
	}

	printResults(cmd, []ingestion.Result{result})
	return nil
}

func printResults(cmd *cobra.Command, results []ingestion.Result) {
	total := 0
	for _, r := range results {
		cmd.Printf("  %s\n", r.FileName)
		cmd.Printf("    Status: %s\n", r.Status)
		cmd.Printf("    Pairs:  %d\n", r.PairsExtracted)
		cmd.Printf("    Time:   %.2fs\n", r.ProcessingTime)
		total += r.PairsExtracted
	}
	cmd.Println()
	cmd.Printf("Total: %d files, %d Q&A pairs\n", len(results), total)
}
