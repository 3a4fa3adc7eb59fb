package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/csearch/internal/config"
	"github.com/standardbeagle/csearch/internal/debug"
	"github.com/standardbeagle/csearch/internal/index"
	"github.com/standardbeagle/csearch/internal/mcp"
	"github.com/standardbeagle/csearch/internal/resource"
	"github.com/standardbeagle/csearch/internal/respcache"
	"github.com/standardbeagle/csearch/internal/response"
	"github.com/standardbeagle/csearch/internal/search"
	"github.com/standardbeagle/csearch/internal/searchtypes"
	"github.com/standardbeagle/csearch/internal/tokens"
	"github.com/standardbeagle/csearch/internal/version"
	"github.com/standardbeagle/csearch/internal/workspace"
)

func main() {
	app := &cli.App{
		Name:    "csearch",
		Usage:   "Token-budgeted code search for AI assistants over MCP",
		Version: version.FullInfo(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Default workspace root (also where .csearch.kdl is read from)",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug logs to a temp file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve MCP over stdio",
				Action: serveCommand,
			},
			{
				Name:      "search",
				Usage:     "Run one search from the command line",
				ArgsUsage: "<pattern>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max-tokens", Usage: "Response token budget"},
					&cli.StringFlag{Name: "mode", Usage: "Reduction mode: default, priority, diverse"},
					&cli.StringFlag{Name: "filter", Usage: "File glob filter"},
					&cli.BoolFlag{Name: "i", Usage: "Case-insensitive matching"},
				},
				Action: searchCommand,
			},
			{
				Name:      "resource",
				Usage:     "Fetch a preserved overflow resource by URI",
				ArgsUsage: "<uri>",
				Action:    resourceCommand,
			},
			{
				Name:   "status",
				Usage:  "Print service status for the configured workspace",
				Action: statusCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "csearch: %v\n", err)
		os.Exit(1)
	}
}

// service is the wired core shared by every command.
type service struct {
	cfg   *config.Config
	root  string
	pool  *workspace.Cache
	store resource.Store
	coord *search.Coordinator
}

func buildService(c *cli.Context) (*service, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	if c.Bool("debug") {
		if path, err := debug.InitLogFile(); err == nil {
			debug.LogMCP("debug log at %s\n", path)
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	opener := index.NewOpener(
		index.ScanConfig{
			Include:     cfg.Index.Include,
			Exclude:     cfg.Index.Exclude,
			MaxFileSize: cfg.Index.MaxFileSize,
		},
		index.WatchConfig{
			Enabled:  cfg.Index.WatchMode,
			Debounce: time.Duration(cfg.Index.WatchDebounceMs) * time.Millisecond,
		},
	)

	pool := workspace.NewCache(
		workspace.OpenerFunc(func(ctx context.Context, workspaceID string) (workspace.Index, error) {
			return opener.Open(ctx, workspaceID)
		}),
		workspace.Config{
			Capacity:       cfg.Pool.Capacity,
			AcquireTimeout: cfg.Pool.AcquireTimeout,
			IdleTimeout:    cfg.Pool.IdleTimeout,
			SweepInterval:  cfg.Pool.SweepInterval,
		},
	)

	store, err := openStore(cfg)
	if err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Close(ctx)
		return nil, err
	}

	builder := response.NewBuilder(
		tokens.NewEstimator(),
		respcache.New(cfg.Cache.Capacity, cfg.Cache.TTL),
		store,
	)

	return &service{
		cfg:   cfg,
		root:  root,
		pool:  pool,
		store: store,
		coord: search.NewCoordinator(pool, builder, store, opener),
	}, nil
}

func openStore(cfg *config.Config) (resource.Store, error) {
	if cfg.Resources.Backend == "sqlite" {
		dir := cfg.Resources.Dir
		if dir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return nil, fmt.Errorf("resolving cache dir: %w", err)
			}
			dir = filepath.Join(base, "csearch")
		}
		return resource.NewSQLiteStore(dir, cfg.Resources.PurgeInterval)
	}
	return resource.NewMemoryStore(cfg.Resources.PurgeInterval)
}

// close tears the service down in dependency order: pool first so handles
// flush, then the store.
func (s *service) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.pool.Close(ctx); err != nil {
		debug.Printf("pool close: %v\n", err)
	}
	if err := s.store.Close(); err != nil {
		debug.Printf("store close: %v\n", err)
	}
	_ = debug.CloseLogFile()
}

func serveCommand(c *cli.Context) error {
	// Stdout belongs to the MCP transport from here on.
	debug.SetMCPMode(true)

	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.close()

	server := mcp.NewServer(svc.coord, mcp.Options{
		DefaultWorkspace: svc.root,
		DefaultMaxTokens: svc.cfg.Budget.MaxTokens,
		PreserveOverflow: svc.cfg.Resources.PreserveOverflow,
		ResourceTTL:      svc.cfg.Resources.TTL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		debug.LogMCP("received %v, shutting down\n", sig)
		cancel()
		select {
		case <-errChan:
		case <-time.After(2 * time.Second):
		}
		return nil
	}
}

func searchCommand(c *cli.Context) error {
	pattern := c.Args().First()
	if pattern == "" {
		return fmt.Errorf("usage: csearch search <pattern>")
	}

	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.close()

	maxTokens := c.Int("max-tokens")
	if maxTokens <= 0 {
		maxTokens = svc.cfg.Budget.MaxTokens
	}
	mode := c.String("mode")
	if mode == "" {
		mode = svc.cfg.Budget.Mode
	}

	resp, err := svc.coord.Search(context.Background(), search.Request{
		Workspace: svc.root,
		Query: searchtypes.Query{
			Pattern:         pattern,
			CaseInsensitive: c.Bool("i"),
			FilePattern:     c.String("filter"),
		},
		Budget: searchtypes.Budget{
			MaxTokens: maxTokens,
			Mode:      searchtypes.ResponseMode(mode),
		},
		PreserveOverflow: svc.cfg.Resources.PreserveOverflow,
		ResourceTTL:      svc.cfg.Resources.TTL,
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func resourceCommand(c *cli.Context) error {
	uri := c.Args().First()
	if uri == "" {
		return fmt.Errorf("usage: csearch resource <uri>")
	}

	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.close()

	payload, err := svc.coord.GetResource(context.Background(), uri)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(payload, '\n'))
	return err
}

func statusCommand(c *cli.Context) error {
	svc, err := buildService(c)
	if err != nil {
		return err
	}
	defer svc.close()

	return printJSON(svc.coord.Status())
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Println(string(out))
	return err
}
