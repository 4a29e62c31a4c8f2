package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/magi-stack/rin-memory/pkg/adapter"
)

func TestGeminiEmbed(t *testing.T) {
	project := os.Getenv("GEMINI_PROJECT_ID")
	location := os.Getenv("GEMINI_LOCATION")
	if project == "" || location == "" {
		t.Skip("GEMINI_PROJECT_ID and GEMINI_LOCATION are not set")
	}

	ctx := context.Background()
	embedder, err := adapter.NewGemini(ctx, project, location)
	gt.NoError(t, err)

	embedding, err := embedder.Embed(ctx, "user prefers dark mode in all applications")
	gt.NoError(t, err)
	gt.Equal(t, len(embedding), embedder.Dimension())
}
