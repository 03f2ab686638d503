package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/reqanswer/backend/internal/bootstrap"
	"github.com/reqanswer/backend/pkg/config"
	"github.com/reqanswer/backend/pkg/logger"
)

// cfgFile is the --config flag; empty means the default search paths.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "ingest",
	Short:         "Manage the requirements Q&A index",
	Long:          `Ingest historical requirement documents, inspect or clear the index, and evaluate answer quality.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to YAML config file")
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

// openApp loads configuration and builds the components a command needs.
// Callers must Close the returned app.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return app, nil
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
