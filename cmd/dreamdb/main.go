// Package main is the DreamDB CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/dreamdb/internal/cli"
	"github.com/hyperjump/dreamdb/internal/config"
	"github.com/hyperjump/dreamdb/internal/ingest"
	"github.com/hyperjump/dreamdb/internal/models"
	"github.com/hyperjump/dreamdb/internal/server"
	"github.com/hyperjump/dreamdb/internal/vector"
	"github.com/hyperjump/dreamdb/internal/watcher"
	"github.com/hyperjump/dreamdb/pkg/utils"
)

var version = "dev"

const defaultServerURL = "http://localhost:8080"

var (
	configPath string
	debugFlag  bool
)

// env is what a command needs after config and logger are set up.
type env struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
}

func setup() (*env, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return &env{cfg: cfg, configPath: resolved, logger: logger}, nil
}

// withComponents runs fn against freshly initialized components and persists the vector
// index afterwards when fn changed it.
func withComponents(fn func(ctx context.Context, c *Components) error) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.logger.Sync()
	c, err := initializeComponents(e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runErr := fn(ctx, c)
	if err := c.Persist(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dreamdb",
		Short: "Semantic search over structured table rows",
		Long: `DreamDB stores table rows, embeds them, and answers free-text queries with
similarity search re-ranked by lexical and structured signals.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(
		newServerCmd(),
		newSearchCmd(),
		newInsertCmd(),
		newImportCmd(),
		newDeleteCmd(),
		newPersistCmd(),
		newReindexCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.logger.Sync()
	cfg, logger := e.cfg, e.logger

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []server.Option
	flushDone := make(chan struct{})
	if cfg.Index.AutoPersistOrDefault() && cfg.Index.Path != "" {
		flusher := vector.NewFlusher(c.Index, "",
			vector.WithFlushInterval(cfg.Index.FlushInterval),
			vector.WithFlushLogger(logger.Named("flusher")))
		opts = append(opts, server.WithFlusher(flusher))
		go func() {
			defer close(flushDone)
			flusher.Run(ctx)
		}()
	} else {
		close(flushDone)
	}

	exts := cfg.Ingest.Extensions
	watch := watcher.NewWatcher(
		cfg.Ingest.Directories,
		exts,
		cfg.Ingest.RecursiveOrDefault(),
		watcher.HandlerFuncs{
			Changed: func(path string) {
				if _, err := c.Indexer.IndexFile(ctx, path, exts); err != nil {
					logger.Warn("import file failed", zap.String("path", path), zap.Error(err))
				}
			},
			Removed: c.Indexer.ForgetFile,
		},
		watcher.WithLogger(logger.Named("watcher")),
		watcher.WithDebounce(cfg.Ingest.Debounce),
	)
	if err := watch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watch.Stop()
	go watch.SyncExistingFiles()
	opts = append(opts, server.WithWatcher(watch, e.configPath))

	srv := c.Server(opts...)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		cancel()
		<-flushDone
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	cancel()
	<-flushDone
	if err := c.Persist(); err != nil {
		logger.Warn("final persist failed", zap.Error(err))
	}
	return nil
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newSearchCmd() *cobra.Command {
	var (
		serverURL string
		query     models.SearchQuery
		output    string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search rows",
		Long: `Search rows with a free-text query. The query is all remaining arguments joined by spaces.

Structured filters are detected in the query text ("pending orders" keeps rows with
status=pending); use --no-filters to turn them off.`,
		Example: `  dreamdb search pending orders
  dreamdb search --tables products --limit 10 wireless headphones
  dreamdb search --server "" --output json in stock lamps`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			query.Query = buildSearchQuery(args)
			if query.Query == "" {
				return errors.New("query cannot be empty")
			}
			var response *models.SearchResponse
			if serverURL != "" {
				response = &models.SearchResponse{}
				err = newAPIClient(serverURL).do(cmd.Context(), http.MethodPost, "/api/v1/search", &query, response)
			} else {
				err = withComponents(func(ctx context.Context, c *Components) error {
					var searchErr error
					response, searchErr = c.Engine.Search(ctx, &query)
					return searchErr
				})
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
		},
	}
	f := cmd.Flags()
	f.StringVar(&serverURL, "server", defaultServerURL, "server URL (empty = open the database directly)")
	f.IntVar(&query.Limit, "limit", 0, "number of results (default from config)")
	f.StringSliceVar(&query.Tables, "tables", nil, "only search these tables")
	f.Float64Var(&query.MinScore, "min-score", 0, "drop results scoring below this")
	f.BoolVar(&query.DisableFilters, "no-filters", false, "disable structured filter detection")
	f.StringVarP(&output, "output", "o", "text", "output format: text, compact, or json")
	return cmd
}

// readRows parses a JSON object or array of objects.
func readRows(data []byte) ([]models.Row, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("no row data")
	}
	if strings.HasPrefix(trimmed, "[") {
		var rows []models.Row
		if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
			return nil, fmt.Errorf("invalid rows JSON: %w", err)
		}
		for i, r := range rows {
			if r == nil {
				return nil, fmt.Errorf("row %d is null", i)
			}
		}
		return rows, nil
	}
	var row models.Row
	if err := json.Unmarshal([]byte(trimmed), &row); err != nil || row == nil {
		return nil, fmt.Errorf("row must be a JSON object")
	}
	return []models.Row{row}, nil
}

func newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <table> [json]",
		Short: "Insert rows into a table",
		Long:  `Insert one JSON object or an array of objects. Without a json argument (or with "-") rows are read from stdin.`,
		Example: `  dreamdb insert products '{"id":"p1","name":"desk lamp","in_stock":true}'
  cat orders.json | dreamdb insert orders`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			var data []byte
			if len(args) == 2 && args[1] != "-" {
				data = []byte(args[1])
			} else {
				var err error
				if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
			}
			rows, err := readRows(data)
			if err != nil {
				return err
			}
			return withComponents(func(ctx context.Context, c *Components) error {
				result, err := c.Indexer.InsertRows(ctx, table, rows)
				if result != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d row(s) into %s (%d indexed, %d unchanged)\n",
						len(result.IDs), table, result.Indexed, result.Skipped)
				}
				return err
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file-or-directory>",
		Short: "Import rows from .json, .jsonl, .csv or .xlsx files",
		Long:  `Import rows from a data file or every supported file in a directory. The table name is the file name without extension.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("failed to stat path: %w", err)
			}
			return withComponents(func(ctx context.Context, c *Components) error {
				out := cmd.OutOrStdout()
				if info.IsDir() {
					n, err := c.Indexer.IndexDirectory(ctx, path, c.Config.Ingest.Extensions)
					fmt.Fprintf(out, "Imported %d file(s) from %s\n", n, path)
					return err
				}
				if !ingest.Supported(path) {
					return fmt.Errorf("%w: %s", ingest.ErrUnsupportedFormat, path)
				}
				results, err := c.Indexer.IndexFile(ctx, path, nil)
				for _, r := range results {
					fmt.Fprintf(out, "%s: %d row(s), %d indexed, %d unchanged\n", r.Table, len(r.IDs), r.Indexed, r.Skipped)
				}
				return err
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete a row and its vector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(func(ctx context.Context, c *Components) error {
				if err := c.Indexer.DeleteRow(ctx, args[0], args[1]); err != nil {
					return fmt.Errorf("deletion failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Row deleted: %s/%s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newPersistCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "persist",
		Short: "Write the running server's vector index to disk now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Path    string `json:"path"`
				Vectors int    `json:"vectors"`
			}
			if err := newAPIClient(serverURL).do(cmd.Context(), http.MethodPost, "/api/v1/index/persist", nil, &out); err != nil {
				return fmt.Errorf("persist failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Persisted %d vector(s) to %s\n", out.Vectors, out.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "server URL")
	return cmd
}

func newReindexCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reindex [table]",
		Short: "Embed stored rows that have no vector (all rows with --force)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := ""
			if len(args) == 1 {
				table = args[0]
			}
			return withComponents(func(ctx context.Context, c *Components) error {
				result, err := c.Indexer.Reindex(ctx, table, force)
				if result != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d row(s) in %d table(s), indexed %d\n",
						result.Scanned, len(result.Tables), result.Indexed)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-embed every row")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var serverURL, output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show row, index and storage status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			status := &server.StatusResponse{}
			if serverURL != "" {
				err = newAPIClient(serverURL).do(cmd.Context(), http.MethodGet, "/api/v1/status", nil, status)
			} else {
				err = withComponents(func(ctx context.Context, c *Components) error {
					var statusErr error
					status, statusErr = c.Status(ctx)
					return statusErr
				})
			}
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "server URL (empty = open the database directly)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dreamdb version %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
