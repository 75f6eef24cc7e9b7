package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/asyncexec"
)

type globalFlags struct {
	configPath string
	backend    string
	dsn        string
	database   string
	migrate    bool
	verbose    bool
}

func (g *globalFlags) config() (asyncexec.Config, error) {
	return asyncexec.LoadConfig(g.configPath)
}

func (g *globalFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "asyncexec",
		Short:         "Durable timer and async job executor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML config file (ASYNCEXEC_* env vars override it)")
	pf.StringVar(&g.backend, "backend", envOr("ASYNCEXEC_BACKEND", "sqlite"), "store backend: memory, postgres, bun, sqlite, redis, mongo")
	pf.StringVar(&g.dsn, "dsn", envOr("ASYNCEXEC_DSN", "asyncexec.db"), "backend connection string or file path")
	pf.StringVar(&g.database, "database", "asyncexec", "database name (mongo only)")
	pf.BoolVar(&g.migrate, "migrate", true, "run schema migrations on connect")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRunCmd(g),
		newSweepCmd(g),
		newJobsCmd(g),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
