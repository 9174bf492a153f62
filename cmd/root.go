package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/dirbak/internal/config"
	"github.com/kebairia/dirbak/internal/index"
	"github.com/kebairia/dirbak/internal/logger"
	"github.com/kebairia/dirbak/internal/operations"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitNothing = 2
)

// errNothingToDo ends a command that found no work, e.g. an empty index.
var errNothingToDo = errors.New("nothing to do")

var (
	// ConfigFile is the path to the YAML configuration.
	ConfigFile string
	// LogLevel overrides log.level from the configuration.
	LogLevel string

	// rootCmd is the base command for dirbak.
	rootCmd = &cobra.Command{
		Use:   "dirbak",
		Short: "Archive, prune and restore local directories",
		Long: `dirbak archives a directory into a compressed tar.gz or zip file,
tracks every archive in a JSON index next to the archives, prunes old
archives by count, age or total size, and restores them on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errNothingToDo):
		return ExitNothing
	default:
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return ExitFailure
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().
		StringVar(&LogLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(verifyCmd)
}

// app is what every subcommand needs: the loaded configuration, a logger,
// the index and a Manager on top of both.
type app struct {
	cfg   config.Config
	log   logger.Logger
	store *index.Index
	mgr   *operations.Manager
}

func newApp(opts ...operations.Option) (*app, error) {
	path := ConfigFile
	if path == "" {
		if _, err := os.Stat(config.DefaultPath()); err == nil {
			path = config.DefaultPath()
		}
	}
	var cfg config.Config
	if err := cfg.Load(path); err != nil {
		return nil, err
	}
	if LogLevel != "" {
		cfg.Log.Level = LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log.Debug("Configuration loaded", "path", path, "destination", cfg.Paths.Destination)

	store := index.InDir(cfg.Paths.Destination)
	return &app{
		cfg:   cfg,
		log:   log,
		store: store,
		mgr:   operations.NewManager(cfg, store, log, opts...),
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}
