package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/practice-local/internal/app"
	"github.com/jwalitptl/practice-local/internal/config"
	"github.com/jwalitptl/practice-local/pkg/errors"
)

var (
	configDir string
	dbPath    string
	rootCmd   = &cobra.Command{
		Use:          "practice",
		Short:        "Local practice records: patients, appointments and notes",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "", "Directory holding config.yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database file (overrides database.path)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open loads the configuration and builds the application context. A schema
// upgrade failure ends the process.
func open(ctx context.Context) (*app.App, error) {
	var paths []string
	if configDir != "" {
		paths = append(paths, configDir)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		var merr *errors.MigrationError
		if errors.As(err, &merr) {
			return nil, fmt.Errorf("database at %s cannot be used: %w", cfg.Database.Path, err)
		}
		return nil, err
	}
	return a, nil
}

// withApp runs fn against a freshly opened App and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
