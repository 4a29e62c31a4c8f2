package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/magi-stack/rin-memory/pkg/adapter/mock"
)

func TestEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New(8)

	a, err := embedder.Embed(ctx, "prefers dark mode")
	gt.NoError(t, err)
	gt.Equal(t, len(a), 8)

	b, err := embedder.Embed(ctx, "prefers dark mode")
	gt.NoError(t, err)
	gt.Equal(t, a, b)

	c, err := embedder.Embed(ctx, "lives in Tokyo")
	gt.NoError(t, err)
	gt.V(t, len(c)).Equal(8)

	// Unit length so cosine scores stay in range.
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	gt.V(t, math.Abs(norm-1) < 1e-5).Equal(true)
}
