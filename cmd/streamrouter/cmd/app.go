package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/core/db"
	"github.com/solatis/streamrouter/internal/core/logging"
	"github.com/solatis/streamrouter/internal/router"
	"github.com/solatis/streamrouter/internal/types"
)

// app is the state shared by subcommands: configuration with flag
// overrides applied, and the logger built from it.
type app struct {
	loader *config.Loader
	cfg    *config.Config
	logger *logrus.Logger
}

func newApp(cmd *cobra.Command) (*app, error) {
	loader, err := config.NewLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db-url") {
		cfg.DatabaseURL = dbURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &app{loader: loader, cfg: cfg, logger: logger}, nil
}

// openDatabase connects and loads the named queries. Schema state is not
// checked; callers that read tables call db.RequireMigrated.
func (a *app) openDatabase() (*sqlx.DB, *db.Queries, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("database URL required (--db-url or SR_DATABASE_URL)")
	}
	database, err := db.Open(a.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return database, queries, nil
}

// routeDefinitions collects stored routes followed by routes from the
// routes file. Either source may be absent.
func (a *app) routeDefinitions(database *sqlx.DB, queries *db.Queries) ([]types.RouteDefinition, error) {
	var defs []types.RouteDefinition
	if database != nil {
		if err := db.RequireMigrated(database); err != nil {
			return nil, err
		}
		stored, err := db.NewRouteStore(queries).List()
		if err != nil {
			return nil, err
		}
		defs = append(defs, stored...)
	}
	if a.cfg.RoutesFile != "" {
		fromFile, err := router.LoadDefinitions(a.cfg.RoutesFile)
		if err != nil {
			return nil, err
		}
		defs = append(defs, fromFile...)
	}
	return defs, nil
}

// loadRoutes replaces r's routes with the current definitions.
func (a *app) loadRoutes(r *router.Router, reg *router.Registry, database *sqlx.DB, queries *db.Queries) error {
	defs, err := a.routeDefinitions(database, queries)
	if err != nil {
		return err
	}
	if err := r.Load(defs, reg); err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}
	a.logger.WithField("routes", len(defs)).Info("routes loaded")
	return nil
}

// watchConfig applies log level changes from the config file while running.
func (a *app) watchConfig() {
	if configFile == "" {
		return
	}
	a.loader.Watch(func(cfg *config.Config, err error) {
		if err != nil {
			a.logger.WithError(err).Warn("ignoring invalid config change")
			return
		}
		if err := logging.SetLevel(a.logger, cfg.Log.Level); err != nil {
			a.logger.WithError(err).Warn("ignoring invalid log level")
			return
		}
		a.logger.WithField("level", cfg.Log.Level).Info("log level reloaded")
	})
}
