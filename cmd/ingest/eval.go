package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reqanswer/backend/internal/evaluation"
)

var evalCmd = &cobra.Command{
	Use:   "eval [dataset.json]",
	Short: "Evaluate generated answers against a labelled dataset",
	Long: `Answers every question in the dataset and compares each answer with the
expected one. The summary is stored in the ingestion database.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

// evalJSON is the --json flag for the eval command.
var evalJSON bool

func init() {
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "Print the full report as JSON")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	dataset, err := evaluation.LoadDataset(data)
	if err != nil {
		return err
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := evaluation.NewEvaluator(app.Generator, app.Embedder, app.DB).Run(cmd.Context(), dataset)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if evalJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Print(evaluation.GenerateReport(report))
	return nil
}
