package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/model"
	"google.golang.org/api/iterator"
)

// distanceField receives the cosine distance of each FindNearest hit.
const distanceField = "vector_distance"

// FirestoreStore implements VectorStore on Firestore native vector
// search. Collections are Firestore collections; the vector index on the
// embedding field is provisioned at deployment.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed VectorStore.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*FirestoreStore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type firestoreMemory struct {
	Content     string             `firestore:"content"`
	Embedding   firestore.Vector32 `firestore:"embedding"`
	UserID      string             `firestore:"user_id"`
	Category    string             `firestore:"category"`
	Source      string             `firestore:"source"`
	ContentHash string             `firestore:"content_hash"`
	Status      string             `firestore:"status"`
	CreatedAt   time.Time          `firestore:"created_at"`
	ApprovedAt  *time.Time         `firestore:"approved_at"`
	MergedInto  string             `firestore:"merged_into"`
	Provenance  []string           `firestore:"provenance"`
	Extra       map[string]string  `firestore:"extra"`
}

func toFirestoreDoc(mem *model.Memory) *firestoreMemory {
	prov := make([]string, 0, len(mem.Provenance))
	for _, id := range mem.Provenance {
		prov = append(prov, string(id))
	}

	return &firestoreMemory{
		Content:     mem.Content,
		Embedding:   firestore.Vector32(mem.Embedding),
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
	}
}

func fromFirestoreDoc(id string, doc *firestoreMemory) *model.Memory {
	var prov []model.MemoryID
	for _, pid := range doc.Provenance {
		prov = append(prov, model.MemoryID(pid))
	}

	return &model.Memory{
		ID:        model.MemoryID(id),
		Content:   doc.Content,
		Embedding: []float32(doc.Embedding),
		Metadata: model.Metadata{
			UserID:      doc.UserID,
			Category:    doc.Category,
			Source:      doc.Source,
			ContentHash: doc.ContentHash,
			Extra:       doc.Extra,
		},
		Status:     model.Status(doc.Status),
		CreatedAt:  doc.CreatedAt,
		ApprovedAt: doc.ApprovedAt,
		MergedInto: model.MemoryID(doc.MergedInto),
		Provenance: prov,
	}
}

func applyFilter(q firestore.Query, f Filter) firestore.Query {
	if f.UserID != "" {
		q = q.Where("user_id", "==", f.UserID)
	}
	if f.Category != "" {
		q = q.Where("category", "==", f.Category)
	}
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	if f.ContentHash != "" {
		q = q.Where("content_hash", "==", f.ContentHash)
	}
	return q
}

// EnsureCollection is a no-op: Firestore collections exist implicitly
// and the vector index is created out of band.
func (s *FirestoreStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	return nil
}

func (s *FirestoreStore) Upsert(ctx context.Context, collection string, mem *model.Memory) error {
	_, err := s.client.Collection(collection).Doc(string(mem.ID)).Set(ctx, toFirestoreDoc(mem))
	if err != nil {
		return goerr.Wrap(err, "failed to write memory",
			goerr.V("collection", collection), goerr.V("id", mem.ID))
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection string, id model.MemoryID) (*model.Memory, error) {
	snap, err := s.client.Collection(collection).Doc(string(id)).Get(ctx)
	if err != nil {
		if snap != nil && !snap.Exists() {
			return nil, goerr.Wrap(model.ErrNotFound, "memory does not exist",
				goerr.V("collection", collection), goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory",
			goerr.V("collection", collection), goerr.V("id", id))
	}

	var doc firestoreMemory
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("id", id))
	}
	return fromFirestoreDoc(snap.Ref.ID, &doc), nil
}

func (s *FirestoreStore) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]*model.ScoredMemory, error) {
	q := applyFilter(s.client.Collection(collection).Query, opts.Filter)

	vq := q.FindNearest("embedding", firestore.Vector32(vector), opts.Limit,
		firestore.DistanceMeasureCosine, &firestore.FindNearestOptions{
			DistanceResultField: distanceField,
		})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var results []*model.ScoredMemory
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate vector search",
				goerr.V("collection", collection))
		}

		var doc firestoreMemory
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode search hit", goerr.V("id", snap.Ref.ID))
		}

		// Cosine distance is in [0, 2]; similarity = 1 - distance.
		score := 1.0
		if d, ok := snap.Data()[distanceField].(float64); ok {
			score = 1.0 - d
		}
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}

		results = append(results, &model.ScoredMemory{
			Memory: fromFirestoreDoc(snap.Ref.ID, &doc),
			Score:  score,
		})
	}
	return results, nil
}

func (s *FirestoreStore) List(ctx context.Context, collection string, filter Filter) ([]*model.Memory, error) {
	q := applyFilter(s.client.Collection(collection).Query, filter).
		OrderBy("created_at", firestore.Asc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var memories []*model.Memory
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list memories", goerr.V("collection", collection))
		}

		var doc firestoreMemory
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("id", snap.Ref.ID))
		}
		memories = append(memories, fromFirestoreDoc(snap.Ref.ID, &doc))
	}
	return memories, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection string, id model.MemoryID) error {
	if _, err := s.client.Collection(collection).Doc(string(id)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete memory",
			goerr.V("collection", collection), goerr.V("id", id))
	}
	return nil
}
