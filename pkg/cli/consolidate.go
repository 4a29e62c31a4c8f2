package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/usecase/consolidate"
	"github.com/magi-stack/rin-memory/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func consolidateCommand() *cli.Command {
	var (
		cfg       config
		once      bool
		threshold float64
		interval  time.Duration
		leaseTTL  time.Duration
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "once",
			Usage:       "Run a single consolidation pass and exit",
			Destination: &once,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Usage:       "Similarity above which memories are merged",
			Value:       0.9,
			Sources:     cli.EnvVars("RIN_MERGE_THRESHOLD"),
			Destination: &threshold,
		},
		&cli.DurationFlag{
			Name:        "interval",
			Usage:       "Delay between consolidation passes",
			Value:       time.Hour,
			Sources:     cli.EnvVars("RIN_CONSOLIDATION_INTERVAL"),
			Destination: &interval,
		},
		&cli.DurationFlag{
			Name:        "lease-ttl",
			Usage:       "How long a consolidation pass may hold the run lease",
			Value:       30 * time.Minute,
			Destination: &leaseTTL,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "consolidate",
		Usage: "Merge near-duplicate approved memories",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			engine := consolidate.New(store,
				consolidate.WithCollection(cfg.approvedCollection),
				consolidate.WithThreshold(threshold),
				consolidate.WithInterval(interval),
				consolidate.WithLeaseTTL(leaseTTL),
			)

			if once {
				result, err := engine.RunOnce(ctx)
				if err != nil {
					return goerr.Wrap(err, "consolidation failed")
				}
				fmt.Fprintf(c.Root().Writer, "scanned=%d merged=%d canonicals=%d\n",
					result.Scanned, result.Merged, result.Canonicals)
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine.Start(ctx)
			logging.From(ctx).Info("consolidation worker started", "interval", interval)

			<-ctx.Done()
			engine.Stop()
			return nil
		},
	}
}
