// callvault locates, downloads and caches call recordings kept in a
// remote disk-style object store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/callvault/callvault/internal/cache"
	"github.com/callvault/callvault/internal/config"
	"github.com/callvault/callvault/internal/disk"
	"github.com/callvault/callvault/internal/metrics"
	"github.com/callvault/callvault/pkg/bytesize"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "callvault",
		Short: "callvault - call recording retrieval and caching",
		Long: `callvault fetches call recordings from a remote object store when only
an opaque recording identifier is known. Lookups try heuristically
guessed filenames first and fall back to a full directory search; the
resolved identifier-to-path mapping is cached locally so repeated
lookups are cheap.

Examples:

  # Fetch a recording by identifier, with optional hints:
  callvault resolve MTox --time 2024-05-12T10:30:00+03:00 --phone 89991234567

  # Fetch a known remote path directly:
  callvault fetch /mango_data/2024-05-12_10-30-00_79991234567_MTox.mp3

  # Rebuild the identifier index from the whole directory:
  callvault reindex`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level")

	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newReindexCmd())
	rootCmd.AddCommand(newCacheCmd())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("callvault %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newStoreClient(cfg *config.Config) *disk.Client {
	return disk.New(disk.Config{
		BaseURL:         cfg.Storage.BaseURL,
		BasePath:        cfg.Storage.BasePath,
		OAuthToken:      cfg.Storage.OAuthToken,
		Login:           cfg.Storage.Login,
		Password:        cfg.Storage.Password,
		Location:        cfg.Location(),
		Timeout:         cfg.Timeout(),
		MaxDownloadSize: cfg.MaxDownloadBytes(),
	})
}

func openCache(cfg *config.Config) (*cache.Cache, error) {
	return cache.Open(cache.Config{
		Dir:    cfg.Cache.Dir,
		RefTTL: cfg.RefTTL(),
	})
}

func newResolveCmd() *cobra.Command {
	var (
		timeFlag  string
		phones    []string
		outFile   string
		skipCache bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <recording-id>",
		Short: "Locate and download a recording by identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := newStoreClient(cfg)
			c, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			opts := disk.ResolveOptions{Phones: phones}
			if timeFlag != "" {
				ts, err := time.Parse(time.RFC3339, timeFlag)
				if err != nil {
					return fmt.Errorf("invalid --time (want RFC3339): %w", err)
				}
				opts.CallTime = ts
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			rec, err := lookupRecording(ctx, client, c, id, opts, skipCache)
			if err != nil {
				if errors.Is(err, disk.ErrNotFound) {
					return fmt.Errorf("recording %s not found", id)
				}
				return err
			}

			dest := outFile
			if dest == "" {
				dest = rec.Filename
			}
			if err := os.WriteFile(dest, rec.Content, 0644); err != nil {
				return fmt.Errorf("write recording: %w", err)
			}

			fmt.Printf("Saved %s (%s) from %s\n", dest, bytesize.Format(int64(len(rec.Content))), rec.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&timeFlag, "time", "", "call timestamp hint (RFC3339)")
	cmd.Flags().StringArrayVar(&phones, "phone", nil, "phone number hint (repeatable, tried in order)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default: resolved filename)")
	cmd.Flags().BoolVar(&skipCache, "no-cache", false, "bypass the path cache")

	return cmd
}

// lookupRecording is the cache-first lookup: a cached path is tried
// directly, a stale cached path is evicted, and a full resolve runs
// on a miss. Successful resolutions are written back to the cache.
func lookupRecording(ctx context.Context, client *disk.Client, c *cache.Cache, id string, opts disk.ResolveOptions, skipCache bool) (*disk.Recording, error) {
	if !skipCache {
		if cached := c.GetPath(id); cached != "" {
			log.Debug().Str("id", id).Str("path", cached).Msg("cache hit, downloading by path")
			rec, err := client.DownloadByPath(ctx, cached)
			if err == nil {
				return rec, nil
			}
			if !errors.Is(err, disk.ErrNotFound) {
				return nil, err
			}
			// The remote file moved or was deleted since it
			// was indexed.
			log.Debug().Str("id", id).Str("path", cached).Msg("cached path is stale, evicting")
			c.DeletePath(id)
		}
	}

	rec, err := client.Resolve(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	if !skipCache {
		c.SavePath(id, rec.Path)
	}
	return rec, nil
}

func newFetchCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "fetch <remote-path>",
		Short: "Download a recording at a known remote path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := newStoreClient(cfg)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			rec, err := client.DownloadByPath(ctx, args[0])
			if err != nil {
				if errors.Is(err, disk.ErrNotFound) {
					return fmt.Errorf("no recording at %s", args[0])
				}
				return err
			}

			dest := outFile
			if dest == "" {
				dest = rec.Filename
			}
			if err := os.WriteFile(dest, rec.Content, 0644); err != nil {
				return fmt.Errorf("write recording: %w", err)
			}

			fmt.Printf("Saved %s (%s)\n", dest, bytesize.Format(int64(len(rec.Content))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default: remote filename)")

	return cmd
}

func newReindexCmd() *cobra.Command {
	var (
		limit       int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the identifier index from the whole directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := newStoreClient(cfg)
			c, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if !c.Enabled() {
				return fmt.Errorf("cache.dir is not configured, nothing to index into")
			}

			pageLimit := limit
			if pageLimit == 0 {
				pageLimit = cfg.Cache.IndexPageLimit
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if metricsAddr != "" {
				srv := startMetricsServer(metricsAddr)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			written := c.RefreshIndex(ctx, client, pageLimit)
			fmt.Printf("Indexed %d recordings\n", written)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "directory page size (default: from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-listen", "", "serve Prometheus metrics on this address while indexing")

	return cmd
}

// startMetricsServer serves the metrics registry in the background.
// Index walks over large directories can take minutes; this makes
// their progress scrapeable.
func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	return srv
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and evict cached path entries",
	}

	getCmd := &cobra.Command{
		Use:   "get <recording-id>",
		Short: "Print the cached remote path for an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			path := c.GetPath(args[0])
			if path == "" {
				fmt.Println("(not cached)")
				return nil
			}
			fmt.Println(path)
			return nil
		},
	}

	delCmd := &cobra.Command{
		Use:   "del <recording-id>",
		Short: "Evict the cached path for an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			c.DeletePath(args[0])
			return nil
		},
	}

	cmd.AddCommand(getCmd)
	cmd.AddCommand(delCmd)

	return cmd
}
