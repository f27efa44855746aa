package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/config"
	"github.com/xkilldash9x/sentinai-cli/internal/observability"
	"github.com/xkilldash9x/sentinai-cli/internal/reporting"
	"github.com/xkilldash9x/sentinai-cli/internal/store"
)

// resultCache is the part of store.Store the commands use.
type resultCache interface {
	EnsureSchema(ctx context.Context) error
	SaveResults(ctx context.Context, results []schemas.AnalysisResult) (int, error)
	ListResults(ctx context.Context, q store.Query) ([]schemas.AnalysisResult, error)
	History(ctx context.Context) ([]schemas.AnalysisResult, error)
	Count(ctx context.Context) (int, error)
}

// storeProvider creates the result cache. Tests inject an in-memory one
// instead of a live database connection.
type storeProvider interface {
	// Create returns the cache and a cleanup function that releases its
	// resources. cleanup is never nil when err is nil.
	Create(ctx context.Context, cfg config.Interface) (resultCache, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (resultCache, func(), error) {
	logger := observability.GetLogger()
	if !cfg.Database().Enabled() {
		return nil, nil, fmt.Errorf("local cache is not configured: set database.url (SENTINAI_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return storeService, cleanup, nil
}

func newCacheCmd(deps *dependencies, opts *rootOptions) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local PostgreSQL cache of analysis history",
	}
	cacheCmd.AddCommand(newCacheSyncCmd(deps), newCacheListCmd(deps, opts))
	return cacheCmd
}

func newCacheSyncCmd(deps *dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch the analysis history and store it in the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			cache, cleanup, err := deps.stores.Create(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := newAPIClient(cfg, false)
			if err != nil {
				return err
			}
			history, err := c.History(ctx)
			if err != nil {
				return err
			}

			if err := cache.EnsureSchema(ctx); err != nil {
				return err
			}
			saved, err := cache.SaveResults(ctx, history)
			if err != nil {
				return err
			}
			total, err := cache.Count(ctx)
			if err != nil {
				return err
			}

			logger.Info("Cache synchronized", zap.Int("saved", saved), zap.Int("total", total))
			fmt.Fprintf(cmd.OutOrStdout(), "Cached %d results (%d total).\n", saved, total)
			return nil
		},
	}
}

func newCacheListCmd(deps *dependencies, opts *rootOptions) *cobra.Command {
	var (
		types []string
		limit int
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached results, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			q := store.Query{Limit: limit}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			for _, raw := range types {
				t, err := schemas.ParseInputType(raw)
				if err != nil {
					return err
				}
				q.InputTypes = append(q.InputTypes, t)
			}

			cache, cleanup, err := deps.stores.Create(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			cached, err := cache.ListResults(ctx, q)
			if err != nil {
				return err
			}

			return writeReport(cmd, cfg, opts, &reporting.Envelope{
				GeneratedAt: deps.now().UTC(),
				Results:     newEnricher(logger).ClassifyAll(cached),
			}, logger)
		},
	}

	listCmd.Flags().StringSliceVarP(&types, "type", "t", nil, "only these input types (repeatable)")
	listCmd.Flags().IntVar(&limit, "limit", 0, "list at most this many results")
	return listCmd
}

// The concrete store must satisfy the command-side interface.
var _ resultCache = (*store.Store)(nil)
