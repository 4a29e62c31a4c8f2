package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"github.com/urfave/cli/v3"
)

func pendingCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "pending",
		Usage: "List memories awaiting review",
		Flags: storeFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, err := cfg.newReview(ctx)
			if err != nil {
				return err
			}

			records, err := uc.ListPending(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list pending memories")
			}

			for _, m := range records {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%s\n",
					m.ID, m.CreatedAt.Format(timeFmt), m.Metadata.Category, m.Content)
			}

			return nil
		},
	}
}

func approveCommand() *cli.Command {
	return reviewCommand("approve", "Approve pending memories", "approved", model.ReviewActionApprove)
}

func rejectCommand() *cli.Command {
	return reviewCommand("reject", "Reject pending memories", "rejected", model.ReviewActionReject)
}

func reviewCommand(name, usage, done string, action model.ReviewAction) *cli.Command {
	var (
		cfg config
		all bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "all",
			Aliases:     []string{"a"},
			Usage:       "Apply to every pending memory",
			Destination: &all,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "[memory-id...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, err := cfg.newReview(ctx)
			if err != nil {
				return err
			}

			if all {
				var result *model.BatchResult
				if action == model.ReviewActionApprove {
					result, err = uc.ApproveAll(ctx)
				} else {
					result, err = uc.RejectAll(ctx)
				}
				if err != nil {
					return goerr.Wrap(err, "batch review failed")
				}

				for _, o := range result.Outcomes {
					if o.Err != nil {
						fmt.Fprintf(c.Root().Writer, "%s\tfailed: %s\n", o.ID, o.Err)
					} else {
						fmt.Fprintf(c.Root().Writer, "%s\t%s\n", o.ID, done)
					}
				}
				if failed := result.Failed(); len(failed) > 0 {
					return goerr.New("some memories could not be reviewed",
						goerr.V("failed", len(failed)))
				}
				return nil
			}

			if c.Args().Len() == 0 {
				return goerr.New("memory ID or --all is required")
			}

			for _, arg := range c.Args().Slice() {
				id, err := model.ParseMemoryID(arg)
				if err != nil {
					return err
				}

				if action == model.ReviewActionApprove {
					err = uc.Approve(ctx, id)
				} else {
					err = uc.Reject(ctx, id)
				}
				if err != nil {
					return goerr.Wrap(err, "review failed", goerr.V("id", id))
				}

				fmt.Fprintf(c.Root().Writer, "%s\t%s\n", id, done)
			}

			return nil
		},
	}
}
