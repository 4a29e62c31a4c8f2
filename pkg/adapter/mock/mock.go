// Package mock provides a deterministic Embedder for tests and offline
// use. Texts sharing tokens produce nearby vectors, which is enough to
// exercise similarity ranking without a real model.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

type Embedder struct {
	dimension int
}

func New(dimension int) *Embedder {
	return &Embedder{dimension: dimension}
}

func (m *Embedder) Dimension() int {
	return m.dimension
}

// Embed builds a bag-of-tokens embedding: each token hashes to a
// pseudo-random unit direction and the directions are summed and
// normalized. Token overlap between texts translates to cosine
// similarity.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		seed := h.Sum64()

		for i := 0; i < m.dimension; i++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}
	return normalize(vec), nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
