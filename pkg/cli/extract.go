package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/adapter"
	"github.com/magi-stack/rin-memory/pkg/usecase/extract"
	"github.com/urfave/cli/v3"
)

func extractCommand() *cli.Command {
	var (
		cfg             config
		inputPath       string
		conversationID  string
		userID          string
		taxonomyPath    string
		bucket          string
		anthropicAPIKey string
		claudeModel     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to transcript file, or - for stdin",
			Value:       "-",
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "conversation-id",
			Usage:       "Conversation the transcript came from",
			Destination: &conversationID,
		},
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User the transcript belongs to",
			Sources:     cli.EnvVars("RIN_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "taxonomy",
			Usage:       "Path to YAML category taxonomy",
			Sources:     cli.EnvVars("RIN_TAXONOMY_FILE"),
			Destination: &taxonomyPath,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "GCS bucket for archiving raw transcripts",
			Sources:     cli.EnvVars("RIN_TRANSCRIPT_BUCKET"),
			Destination: &bucket,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model used for extraction",
			Sources:     cli.EnvVars("RIN_CLAUDE_MODEL"),
			Destination: &claudeModel,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, embedFlags(&cfg)...)
	flags = append(flags, ingestFlags(&cfg)...)

	return &cli.Command{
		Name:  "extract",
		Usage: "Extract memories from a conversation transcript",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if anthropicAPIKey == "" {
				return goerr.New("anthropic-api-key is required")
			}
			if conversationID == "" {
				return goerr.New("conversation-id is required")
			}

			transcript, err := readInput(inputPath)
			if err != nil {
				return err
			}

			categories, err := extract.LoadTaxonomy(taxonomyPath)
			if err != nil {
				return err
			}

			mem, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}

			var claudeOpts []adapter.ClaudeOption
			if claudeModel != "" {
				claudeOpts = append(claudeOpts, adapter.WithClaudeModel(claudeModel))
			}
			extractor := adapter.NewClaude(anthropicAPIKey, claudeOpts...)

			opts := []extract.Option{
				extract.WithCategories(categories),
			}
			if bucket != "" {
				archive, err := adapter.NewArchive(ctx, bucket)
				if err != nil {
					return goerr.Wrap(err, "failed to create archive")
				}
				opts = append(opts, extract.WithArchive(archive))
			}

			uc := extract.New(extractor, mem, opts...)

			result, err := uc.FromTranscript(ctx, conversationID, userID, string(transcript))
			if err != nil {
				return goerr.Wrap(err, "failed to process transcript")
			}

			for _, id := range result.Stored {
				fmt.Fprintf(c.Root().Writer, "Memory stored: %s\n", id)
			}
			fmt.Fprintf(c.Root().Writer, "stored=%d skipped=%d failed=%d\n",
				len(result.Stored), result.Skipped, len(result.Failed))

			if len(result.Failed) > 0 {
				return goerr.New("some candidates could not be stored",
					goerr.V("failed", len(result.Failed)))
			}
			return nil
		},
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read stdin")
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read input file", goerr.V("path", path))
	}
	return data, nil
}
