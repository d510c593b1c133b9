package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/robertmeta/feedcore/config"
	"github.com/robertmeta/feedcore/dispatch"
	"github.com/robertmeta/feedcore/feed"
	"github.com/robertmeta/feedcore/hierarchy"
	"github.com/robertmeta/feedcore/ingest"
	"github.com/robertmeta/feedcore/logging"
	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/script"
	"github.com/robertmeta/feedcore/store"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "feedcore",
		Usage:   "A scriptable feed aggregation backend",
		Version: script.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath(),
				Usage:   "Config file path",
				EnvVars: []string{"FEEDCORE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Database file path (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (overrides config)",
			},
		},
		Commands: commands(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

// core holds the wired components for one command invocation.
type core struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    *store.Store
	tree     *hierarchy.Tree
	registry *script.Registry
	fetcher  *feed.Fetcher
	pipeline *ingest.Pipeline
}

func getCore(c *cli.Context) (*core, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if db := c.String("db"); db != "" {
		cfg.Database.Path = db
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.DatabasePath()
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	tree, err := hierarchy.Load(s, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	scripts, err := s.LoadScripts()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load scripts: %w", err)
	}
	registry := script.NewRegistry(s, scripts)

	opts := feed.DefaultOptions()
	opts.PerDomain = cfg.Refresh.PerDomain
	opts.Timeout = cfg.FetchTimeout()
	fetcher := feed.NewFetcherWithOptions(opts)

	disp := dispatch.New(registry, script.NewRunner(cfg.ScriptTimeout()), tree, logger)
	return &core{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		tree:     tree,
		registry: registry,
		fetcher:  fetcher,
		pipeline: ingest.New(tree, fetcher, disp, cfg.Refresh.Workers, logger),
	}, nil
}

func (k *core) Close() error {
	return k.store.Close()
}

// withCore opens the core around a command action.
func withCore(fn func(c *cli.Context, k *core) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		k, err := getCore(c)
		if err != nil {
			return openErr(err)
		}
		defer k.Close()
		return fn(c, k)
	}
}

// openErr explains a failed startup. A database held by a running server
// gets a hint instead of a bare lock error.
func openErr(err error) error {
	if errors.Is(err, store.ErrLocked) {
		return cli.Exit(err.Error()+"; stop `feedcore serve` or use its HTTP API", ExitGeneralError)
	}
	return cli.Exit(err.Error(), ExitDataError)
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// exitErr maps core errors to exit codes.
func exitErr(err error) error {
	if err == nil {
		return nil
	}
	switch model.CodeOf(err) {
	case model.ErrCodeValidation:
		return cli.Exit(err.Error(), ExitUsageError)
	case "":
		if errors.Is(err, context.Canceled) {
			return cli.Exit("interrupted", ExitGeneralError)
		}
	}
	return cli.Exit(err.Error(), ExitDataError)
}

func argID(c *cli.Context, i int, what string) (int64, error) {
	id, err := strconv.ParseInt(c.Args().Get(i), 10, 64)
	if err != nil || id <= 0 {
		return 0, cli.Exit(fmt.Sprintf("Invalid %s ID: %q", what, c.Args().Get(i)), ExitUsageError)
	}
	return id, nil
}

// parseRef accepts "kind:id" or a bare post ID.
func parseRef(s string) (model.NodeRef, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
		return model.PostRef(id), nil
	}
	ref, err := model.ParseNodeRef(s)
	if err != nil {
		return model.NodeRef{}, cli.Exit(err.Error(), ExitUsageError)
	}
	return ref, nil
}

func optionalRef(s string) (model.NodeRef, error) {
	if s == "" {
		return model.NodeRef{}, nil
	}
	return parseRef(s)
}

func usage(c *cli.Context, n int, args string) error {
	if c.NArg() < n {
		return cli.Exit(fmt.Sprintf("Usage: feedcore %s %s", c.Command.FullName(), args), ExitUsageError)
	}
	return nil
}
