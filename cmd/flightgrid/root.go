package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/you/go-flightgrid/internal/config"
	"github.com/you/go-flightgrid/internal/logger"
	"github.com/you/go-flightgrid/internal/providers"
	"github.com/you/go-flightgrid/internal/service"
	"github.com/you/go-flightgrid/internal/storage"
	"go.uber.org/zap"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configFile string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "flightgrid",
		Short: "Search flight offers over a grid of departure and return dates",
		Long: `flightgrid sweeps every (departure, return) date pair of a window
against the google-flights API and saves the matching offers as it goes.

  flightgrid search   run one sweep and print the table
  flightgrid serve    run the HTTP API`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newSearchCmd(a), newServeCmd(a), newVersionCmd())
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// newRunner wires the API client, the searcher, CSV output and the optional
// SQLite store. The returned func releases the store.
func (a *app) newRunner(ctx context.Context) (*service.Runner, func(), error) {
	client := providers.NewClient(a.cfg.APIBaseURL, a.cfg.APIHeaders,
		providers.WithRetryPolicy(retryPolicy(a.cfg)),
		providers.WithTimeout(a.cfg.RequestTimeout),
		providers.WithPace(a.cfg.PaceMin, a.cfg.PaceMax),
		providers.WithLogger(a.log),
	)
	searcher := providers.NewGoogleFlights(client, a.log)
	search := service.NewSearchService(searcher, a.log)

	var store service.RunStore
	closeFn := func() {}
	if a.cfg.SQLitePath != "" {
		s, err := storage.NewSQLiteStore(a.cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open result store: %w", err)
		}
		store = s
		closeFn = func() {
			if err := s.Close(); err != nil {
				a.log.Warn("closing result store failed", zap.Error(err))
			}
		}
	}
	return service.NewRunner(ctx, search, store, storage.CSVSinks(a.cfg.OutputDir), a.log), closeFn, nil
}

// retryPolicy keeps the default pauses; pacing settings don't touch them.
func retryPolicy(cfg *config.Config) providers.RetryPolicy {
	policy := providers.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	return policy
}
