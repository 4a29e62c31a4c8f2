package adapter

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
)

//go:embed prompt/extract.md
var extractPromptRaw string

var extractPromptTmpl = template.Must(template.New("extract").Parse(extractPromptRaw))

// Extractor turns a conversation transcript into candidate memories. The
// extraction itself is delegated to an external LLM; this subsystem only
// validates and forwards the result.
type Extractor interface {
	Extract(ctx context.Context, transcript string, categories []string) ([]model.Candidate, error)
}

// claudeExtractor implements Extractor on the Anthropic Messages API.
type claudeExtractor struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

type ClaudeOption func(*claudeExtractor)

func WithClaudeModel(m string) ClaudeOption {
	return func(c *claudeExtractor) {
		c.model = anthropic.Model(m)
	}
}

// NewClaude creates an Extractor backed by the Anthropic API.
func NewClaude(apiKey string, opts ...ClaudeOption) Extractor {
	c := &claudeExtractor{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.ModelClaudeSonnet4_0,
		maxTokens: 1024,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *claudeExtractor) Extract(ctx context.Context, transcript string, categories []string) ([]model.Candidate, error) {
	var buf bytes.Buffer
	if err := extractPromptTmpl.Execute(&buf, map[string]any{
		"Categories": categories,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to render extraction prompt")
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: buf.String()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript)),
		},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call extraction model")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	candidates, err := parseCandidates(text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse extraction response", goerr.V("response", text))
	}

	return candidates, nil
}

// parseCandidates extracts the JSON array from the model output, tolerating
// surrounding prose and markdown code fences.
func parseCandidates(text string) ([]model.Candidate, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, goerr.New("no JSON array in response")
	}

	var candidates []model.Candidate
	if err := json.Unmarshal([]byte(text[start:end+1]), &candidates); err != nil {
		return nil, goerr.Wrap(err, "invalid candidate JSON")
	}

	valid := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		valid = append(valid, c)
	}

	return valid, nil
}
