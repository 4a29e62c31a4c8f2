package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/urfave/cli/v3"
)

func storeCommand() *cli.Command {
	var (
		cfg      config
		userID   string
		category string
		source   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User the memory belongs to",
			Sources:     cli.EnvVars("RIN_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "category",
			Usage:       "Memory category",
			Destination: &category,
		},
		&cli.StringFlag{
			Name:        "source",
			Usage:       "Origin of the memory (e.g. conversation ID)",
			Destination: &source,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, embedFlags(&cfg)...)
	flags = append(flags, ingestFlags(&cfg)...)

	return &cli.Command{
		Name:      "store",
		Usage:     "Store a new memory",
		ArgsUsage: "<content>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			content := c.Args().First()
			if content == "" {
				return goerr.New("content is required")
			}

			uc, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}

			id, err := uc.Store(ctx, content, model.Metadata{
				UserID:   userID,
				Category: category,
				Source:   source,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to store memory")
			}

			fmt.Fprintf(c.Root().Writer, "Memory stored: %s\n", id)
			return nil
		},
	}
}
