package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
)

// QdrantStore implements VectorStore against the Qdrant REST API.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
}

type QdrantOption func(*QdrantStore)

func WithQdrantAPIKey(key string) QdrantOption {
	return func(s *QdrantStore) {
		s.apiKey = key
	}
}

func WithQdrantTimeout(d time.Duration) QdrantOption {
	return func(s *QdrantStore) {
		s.client.Timeout = d
	}
}

func WithQdrantRetries(n int, backoff time.Duration) QdrantOption {
	return func(s *QdrantStore) {
		s.maxRetries = n
		s.backoff = backoff
	}
}

// NewQdrant creates a Qdrant-backed VectorStore.
func NewQdrant(baseURL string, opts ...QdrantOption) *QdrantStore {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}

	s := &QdrantStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 2,
		backoff:    200 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// --- wire types ---

type qdrantMetadata struct {
	UserID      string            `json:"user_id,omitempty"`
	Category    string            `json:"category,omitempty"`
	Source      string            `json:"source,omitempty"`
	ContentHash string            `json:"content_hash,omitempty"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ApprovedAt  *time.Time        `json:"approved_at,omitempty"`
	MergedInto  string            `json:"merged_into,omitempty"`
	Provenance  []string          `json:"provenance,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

type qdrantPayload struct {
	Content  string         `json:"content"`
	Metadata qdrantMetadata `json:"metadata"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector,omitempty"`
	Score   float64       `json:"score,omitempty"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantEnvelope struct {
	Status json.RawMessage `json:"status"`
	Result json.RawMessage `json:"result"`
}

func toPayload(mem *model.Memory) qdrantPayload {
	prov := make([]string, 0, len(mem.Provenance))
	for _, id := range mem.Provenance {
		prov = append(prov, string(id))
	}
	if len(prov) == 0 {
		prov = nil
	}

	return qdrantPayload{
		Content: mem.Content,
		Metadata: qdrantMetadata{
			UserID:      mem.Metadata.UserID,
			Category:    mem.Metadata.Category,
			Source:      mem.Metadata.Source,
			ContentHash: mem.Metadata.ContentHash,
			Status:      string(mem.Status),
			CreatedAt:   mem.CreatedAt,
			ApprovedAt:  mem.ApprovedAt,
			MergedInto:  string(mem.MergedInto),
			Provenance:  prov,
			Extra:       mem.Metadata.Extra,
		},
	}
}

func fromPayload(id string, vector []float32, p qdrantPayload) *model.Memory {
	var prov []model.MemoryID
	for _, pid := range p.Metadata.Provenance {
		prov = append(prov, model.MemoryID(pid))
	}

	return &model.Memory{
		ID:        model.MemoryID(id),
		Content:   p.Content,
		Embedding: vector,
		Metadata: model.Metadata{
			UserID:      p.Metadata.UserID,
			Category:    p.Metadata.Category,
			Source:      p.Metadata.Source,
			ContentHash: p.Metadata.ContentHash,
			Extra:       p.Metadata.Extra,
		},
		Status:     model.Status(p.Metadata.Status),
		CreatedAt:  p.Metadata.CreatedAt,
		ApprovedAt: p.Metadata.ApprovedAt,
		MergedInto: model.MemoryID(p.Metadata.MergedInto),
		Provenance: prov,
	}
}

func buildFilter(f Filter) map[string]any {
	var must []map[string]any
	add := func(key, value string) {
		if value != "" {
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": value},
			})
		}
	}

	add("metadata.user_id", f.UserID)
	add("metadata.category", f.Category)
	add("metadata.status", string(f.Status))
	add("metadata.content_hash", f.ContentHash)

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// --- HTTP plumbing ---

// call performs one API request with bounded retries. Network errors and
// 5xx responses retry with exponential backoff; other responses return
// immediately with their status code.
func (s *QdrantStore) call(ctx context.Context, method, path string, body any) (int, *qdrantEnvelope, error) {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return 0, nil, goerr.Wrap(err, "failed to marshal qdrant request")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			wait := s.backoff << (attempt - 1)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(reqBody))
		if err != nil {
			return 0, nil, goerr.Wrap(err, "failed to build qdrant request")
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("api-key", s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return 0, nil, err
			}
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("qdrant returned %d: %s", resp.StatusCode, truncate(respBody, 200))
			continue
		}

		var env qdrantEnvelope
		if len(respBody) > 0 {
			if err := json.Unmarshal(respBody, &env); err != nil {
				return resp.StatusCode, nil, goerr.Wrap(err, "invalid qdrant response",
					goerr.V("body", truncate(respBody, 200)))
			}
		}
		return resp.StatusCode, &env, nil
	}

	return 0, nil, goerr.Wrap(model.ErrStoreUnavailable, "qdrant request failed after retries",
		goerr.V("path", path), goerr.V("cause", fmt.Sprint(lastErr)))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func collectionPath(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return "/collections/" + strings.Join(escaped, "/")
}

// --- VectorStore implementation ---

func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}

	status, env, err := s.call(ctx, http.MethodPut, collectionPath(name), body)
	if err != nil {
		return err
	}
	if status >= 200 && status < 300 {
		return nil
	}
	// Recreating an existing collection conflicts; that is fine here.
	if status == http.StatusConflict || (env != nil && strings.Contains(string(env.Status), "already exists")) {
		return nil
	}
	return goerr.New("failed to create collection",
		goerr.V("collection", name), goerr.V("status", status))
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, mem *model.Memory) error {
	body := map[string]any{
		"points": []map[string]any{
			{
				"id":      string(mem.ID),
				"vector":  mem.Embedding,
				"payload": toPayload(mem),
			},
		},
	}

	status, _, err := s.call(ctx, http.MethodPut, collectionPath(collection, "points")+"?wait=true", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return goerr.New("failed to upsert point",
			goerr.V("collection", collection), goerr.V("id", mem.ID), goerr.V("status", status))
	}
	return nil
}

func (s *QdrantStore) Get(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error) {
	status, env, err := s.call(ctx, http.MethodGet, collectionPath(collection, "points", string(id)), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, goerr.Wrap(model.ErrNotFound, "point does not exist",
			goerr.V("collection", collection), goerr.V("id", id))
	}
	if status < 200 || status >= 300 {
		return nil, goerr.New("failed to get point",
			goerr.V("collection", collection), goerr.V("id", id), goerr.V("status", status))
	}

	var point qdrantPoint
	if err := json.Unmarshal(env.Result, &point); err != nil {
		return nil, goerr.Wrap(err, "invalid point response")
	}
	return fromPayload(string(id), point.Vector, point.Payload), nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]*model.ScoredMemory, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        opts.Limit,
		"with_payload": true,
	}
	if opts.MinScore > 0 {
		body["score_threshold"] = opts.MinScore
	}
	if f := buildFilter(opts.Filter); f != nil {
		body["filter"] = f
	}

	status, env, err := s.call(ctx, http.MethodPost, collectionPath(collection, "points", "search"), body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, goerr.New("failed to search points",
			goerr.V("collection", collection), goerr.V("status", status))
	}

	var points []qdrantPoint
	if err := json.Unmarshal(env.Result, &points); err != nil {
		return nil, goerr.Wrap(err, "invalid search response")
	}

	results := make([]*model.ScoredMemory, 0, len(points))
	for _, p := range points {
		results = append(results, &model.ScoredMemory{
			Memory: fromPayload(p.ID, p.Vector, p.Payload),
			Score:  p.Score,
		})
	}
	return results, nil
}

func (s *QdrantStore) List(ctx context.Context, collection string, filter Filter) ([]*model.Memory, error) {
	var memories []*model.Memory
	var offset json.RawMessage

	for {
		body := map[string]any{
			"limit":        256,
			"with_payload": true,
			"with_vector":  true,
		}
		if f := buildFilter(filter); f != nil {
			body["filter"] = f
		}
		if offset != nil {
			body["offset"] = offset
		}

		status, env, err := s.call(ctx, http.MethodPost, collectionPath(collection, "points", "scroll"), body)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, goerr.New("failed to scroll points",
				goerr.V("collection", collection), goerr.V("status", status))
		}

		var page struct {
			Points []qdrantPoint   `json:"points"`
			Offset json.RawMessage `json:"next_page_offset"`
		}
		if err := json.Unmarshal(env.Result, &page); err != nil {
			return nil, goerr.Wrap(err, "invalid scroll response")
		}

		for _, p := range page.Points {
			memories = append(memories, fromPayload(p.ID, p.Vector, p.Payload))
		}

		if len(page.Offset) == 0 || string(page.Offset) == "null" {
			break
		}
		offset = page.Offset
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})
	return memories, nil
}

func (s *QdrantStore) Delete(ctx context.Context, collection string, id model.MemoryID) error {
	body := map[string]any{
		"points": []string{string(id)},
	}

	status, _, err := s.call(ctx, http.MethodPost, collectionPath(collection, "points", "delete")+"?wait=true", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return goerr.New("failed to delete point",
			goerr.V("collection", collection), goerr.V("id", id), goerr.V("status", status))
	}
	return nil
}
