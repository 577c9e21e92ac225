package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-crawler/internal/app"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(path string) (*app.App, error) {
	return app.New(path)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogcrawler",
		Short: "Crawls product catalogs into a relational store.",
		Long: `catalogcrawler discovers every product page of a supported catalog,
extracts one record per page with a pool of workers and upserts the
records into Postgres or SQLite through a single writer.`,
		SilenceUsage: true,

		// Builds the application container before any subcommand runs. The
		// subcommand releases it through withApp, since cobra skips post-run
		// hooks when RunE fails.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, optional)")

	cmd.AddCommand(newCrawlCmd("vendr", "Crawl the vendr.com software marketplace"))
	cmd.AddCommand(newCrawlCmd("books", "Crawl the books.toscrape.com catalog"))
	cmd.AddCommand(newSchemaCmd())

	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the run, which
// then drains and shuts down gracefully.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// withApp resolves the App from the command context and closes it after fn
// returns, whether or not fn failed.
func withApp(fn func(ctx context.Context, appInstance *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()
		return fn(cmd.Context(), appInstance, args)
	}
}
