package consolidate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// runLease is the single-run mutual exclusion guard for consolidation.
// A run holds a token with a TTL; an expired token can be taken over so
// a crashed run never blocks consolidation forever.
type runLease struct {
	mu      sync.Mutex
	token   string
	expires time.Time
}

// TryAcquire claims the lease for ttl. It fails when a live run already
// holds it.
func (l *runLease) TryAcquire(ttl time.Duration) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if l.token != "" && now.Before(l.expires) {
		return "", false
	}

	l.token = uuid.New().String()
	l.expires = now.Add(ttl)
	return l.token, true
}

// Release frees the lease if token still owns it. A stale token from a
// taken-over run releases nothing.
func (l *runLease) Release(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == token {
		l.token = ""
		l.expires = time.Time{}
	}
}
