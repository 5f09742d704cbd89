// Package cli implements the command-line interface for the krushi CLI.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sahajakrushi/krushi-cli/internal/api"
	"github.com/sahajakrushi/krushi-cli/internal/cache"
	"github.com/sahajakrushi/krushi-cli/internal/core"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	verbose     bool
	quiet       bool
	raw         bool
	yes         bool
	baseURL     string
	farmerCode  string
	memoryCache bool
}

// app is the wiring shared by a single command run.
type app struct {
	opts  *globalOptions
	cfg   core.Config
	log   zerolog.Logger
	clock core.Clock
	store *cache.Store
	api   *api.KrushiAPI
	out   io.Writer
	in    *bufio.Reader
}

// NewRootCmd creates the root command and all subcommands.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "krushi",
		Short:         "krushi CLI – crop reports and advisory queries",
		Long:          `A command-line client for tracking crop growth stages and raising advisory queries with the Sahaja Krushi service.`,
		Version:       core.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose debug output to stderr")
	cmd.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "Suppress progress messages")
	cmd.PersistentFlags().BoolVar(&opts.raw, "raw", false, "Emit raw JSON instead of markdown")
	cmd.PersistentFlags().BoolVarP(&opts.yes, "yes", "y", false, "Skip confirmation prompts")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "API base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.farmerCode, "farmer", "", "Farmer login code (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.memoryCache, "memory-cache", false, "Keep the response cache in memory only")

	cmd.AddCommand(
		newReportsCmd(opts),
		newStagesCmd(opts),
		newQueriesCmd(opts),
		newCacheCmd(opts),
		newMCPCmd(opts),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newApp loads configuration and builds the cache and API stack.
func newApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	cfg, err := core.LoadConfig()
	if err != nil {
		return nil, err
	}
	if opts.baseURL != "" {
		cfg.APIBaseURL = core.NormalizeBaseURL(opts.baseURL)
	}
	if opts.farmerCode != "" {
		cfg.FarmerID = opts.farmerCode
	}

	logger := core.NewLogger(core.LevelFor(cfg.LogLevel, opts.verbose, opts.quiet), cmd.ErrOrStderr())
	clock := core.NewSystemClock()

	var backend cache.Backend = cache.NewFilesystemBackend(cfg.CacheDir)
	if opts.memoryCache {
		backend = cache.NewMemoryBackend()
	}
	store := cache.NewStore(backend, core.CacheTTL, clock, logger)

	client := api.NewClient(cfg.APIBaseURL, cfg.Token, core.DefaultTimeout, logger)
	caching := api.NewCachingClient(client, store, logger)

	return &app{
		opts:  opts,
		cfg:   cfg,
		log:   logger,
		clock: clock,
		store: store,
		api:   api.NewKrushiAPI(caching, clock, logger),
		out:   cmd.OutOrStdout(),
		in:    bufio.NewReader(cmd.InOrStdin()),
	}, nil
}

// farmerCode returns the configured login code or an error telling the
// user how to set one.
func (a *app) farmerCode() (string, error) {
	if a.cfg.FarmerID == "" {
		return "", fmt.Errorf("no farmer configured; pass --farmer or set %s", core.EnvFarmerID)
	}
	return a.cfg.FarmerID, nil
}

// progress prints a status line to stderr unless --quiet is set.
func (a *app) progress(format string, args ...any) {
	if a.opts.quiet {
		return
	}
	a.log.Info().Msgf(format, args...)
}

// confirm asks a yes/no question. --yes answers yes without asking.
func (a *app) confirm(prompt string) bool {
	if a.opts.yes {
		return true
	}
	fmt.Fprintf(a.out, "%s [y/N]: ", prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
