// Package cmd defines and implements the CLI commands for the catalogcrawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/app"
)

// newCrawlCmd creates the subcommand that crawls one catalog.
func newCrawlCmd(catalog, short string) *cobra.Command {
	return &cobra.Command{
		Use:   catalog,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, appInstance *app.App, _ []string) error {
			return runCrawl(ctx, appInstance, catalog)
		}),
	}
}

func runCrawl(ctx context.Context, appInstance *app.App, catalog string) error {
	logger := appInstance.Logger

	p, err := appInstance.BuildPipeline(ctx, catalog)
	if err != nil {
		return fmt.Errorf("build %s pipeline: %w", catalog, err)
	}

	runCtx, stopStatus := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return appInstance.ServeStatus(gctx, p)
	})

	summary, runErr := p.Run(ctx)
	stopStatus()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("status server stopped with error", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("run_id", summary.RunID),
		zap.String("catalog", summary.Catalog),
		zap.Int64("discovered", summary.Discovered),
		zap.Int64("extracted", summary.Extracted),
		zap.Int64("absent", summary.Absent),
		zap.Int64("saved", summary.Saved),
		zap.Int64("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	}
	if runErr != nil {
		logger.Error("crawl aborted", append(fields, zap.Error(runErr))...)
		return fmt.Errorf("run %s crawl: %w", catalog, runErr)
	}
	logger.Info("crawl completed successfully, data saved", fields...)
	return nil
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema <vendr|books>",
		Short:     "Create the catalog's table without crawling",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"vendr", "books"},
		RunE: withApp(func(ctx context.Context, appInstance *app.App, args []string) error {
			if err := appInstance.EnsureSchema(ctx, args[0]); err != nil {
				return fmt.Errorf("schema %s: %w", args[0], err)
			}
			appInstance.Logger.Info("schema ready", zap.String("catalog", args[0]))
			return nil
		}),
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
