package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/router"
	"github.com/solatis/streamrouter/internal/sources"
	"github.com/solatis/streamrouter/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume the configured source and dispatch records",
	Long: `Consume records from the configured source (file, kafka, amqp or redis) and
dispatch every batch through the loaded routes until the source ends or the
process is interrupted.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("file", "", "read newline-delimited records from this file (- for stdin), overriding the configured source")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	cfg := a.cfg
	if cmd.Flags().Changed("file") {
		cfg.Source.Type = config.SourceFile
		cfg.Source.File.Path, _ = cmd.Flags().GetString("file")
	}

	reg := router.NewRegistry(a.logger)
	sinks, err := sources.OpenSinks(cfg.Sinks, reg, a.logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	r := router.New(router.Config{MaxWorkers: cfg.Router.MaxWorkers}, a.logger)
	if cfg.DatabaseURL != "" {
		database, queries, err := a.openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()
		if err := a.loadRoutes(r, reg, database, queries); err != nil {
			return err
		}
	} else if err := a.loadRoutes(r, reg, nil, nil); err != nil {
		return err
	}

	src, err := sources.New(cfg.Source, a.logger)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.watchConfig()

	var records, matched, failed int
	err = src.Run(ctx, func(ctx context.Context, recs []*types.Record) error {
		start := time.Now()
		results, err := r.ResolveAll(ctx, recs)
		if err != nil {
			return err
		}
		batchFailed := 0
		for _, res := range results {
			if res.Err != nil {
				batchFailed++
			}
		}
		records += len(recs)
		matched += len(results)
		failed += batchFailed
		a.logger.WithFields(logrus.Fields{
			"records":  len(recs),
			"matched":  len(results),
			"failed":   batchFailed,
			"duration": time.Since(start),
		}).Debug("batch dispatched")
		return nil
	})

	a.logger.WithFields(logrus.Fields{
		"records": records,
		"matched": matched,
		"failed":  failed,
	}).Info("source finished")
	if ctx.Err() != nil {
		return nil
	}
	return err
}
