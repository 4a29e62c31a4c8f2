package main

import (
	"context"
	"os"

	"github.com/magi-stack/rin-memory/pkg/cli"
)

func main() {
	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		os.Exit(err.Code)
	}
}
