package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

func (id MemoryID) String() string {
	return string(id)
}

// ParseMemoryID validates that s is a well-formed MemoryID.
func ParseMemoryID(s string) (MemoryID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", goerr.Wrap(ErrValidation, "invalid memory ID", goerr.V("id", s))
	}
	return MemoryID(s), nil
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusMerged   Status = "merged"
)

// CanTransition reports whether moving to next is a legal state change.
// Transitions are one-directional: pending -> approved, approved -> merged.
// Rejection deletes the record and is not a persisted state.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved
	case StatusApproved:
		return next == StatusMerged
	default:
		return false
	}
}

// Metadata carries the record attributes required for memory isolation
// and review display, plus free-form extension fields.
type Metadata struct {
	UserID      string            `json:"user_id"`
	Category    string            `json:"category"`
	Source      string            `json:"source"`
	ContentHash string            `json:"content_hash,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Memory is a single long-term memory record. The embedding length must
// match the collection dimension fixed at deployment.
type Memory struct {
	ID        MemoryID
	Content   string
	Embedding []float32
	Metadata  Metadata
	Status    Status
	CreatedAt time.Time

	// ApprovedAt is set when the record moves out of the pending queue.
	ApprovedAt *time.Time

	// MergedInto points at the canonical record that absorbed this one.
	// Set only when Status is StatusMerged.
	MergedInto MemoryID

	// Provenance on a canonical record lists every ID it absorbed,
	// chained through intermediate canonicals across runs.
	Provenance []MemoryID
}

// ScoredMemory pairs a record with its similarity score from a search.
type ScoredMemory struct {
	Memory *Memory
	Score  float64
}

// Candidate is an extracted memory proposal before ingestion.
type Candidate struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// ContentHash returns the idempotency key for a memory body. The hash is
// computed over the trimmed content so whitespace variants collapse.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}
