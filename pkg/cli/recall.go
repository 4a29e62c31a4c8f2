package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func recallCommand() *cli.Command {
	var (
		cfg      config
		userID   string
		category string
		limit    int64
		minScore float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Restrict results to a user",
			Sources:     cli.EnvVars("RIN_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "category",
			Usage:       "Restrict results to a category",
			Destination: &category,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of memories to return",
			Value:       5,
			Destination: &limit,
		},
		&cli.FloatFlag{
			Name:        "min-score",
			Usage:       "Minimum similarity score",
			Value:       0.7,
			Destination: &minScore,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, embedFlags(&cfg)...)

	return &cli.Command{
		Name:      "recall",
		Usage:     "Retrieve memories similar to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := c.Args().First()
			if query == "" {
				return goerr.New("query is required")
			}

			uc, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}

			results, err := uc.Recall(ctx, query, memory.RecallOptions{
				Limit:    int(limit),
				MinScore: minScore,
				Category: category,
				UserID:   userID,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to recall memories")
			}

			for _, r := range results {
				fmt.Fprintf(c.Root().Writer, "%.3f\t%s\t%s\n", r.Score, r.Memory.ID, r.Memory.Content)
			}

			return nil
		},
	}
}
