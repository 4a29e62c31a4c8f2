package consolidate

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func TestLeaseExclusive(t *testing.T) {
	var lease runLease

	token, ok := lease.TryAcquire(time.Minute)
	gt.Equal(t, ok, true)

	_, ok = lease.TryAcquire(time.Minute)
	gt.Equal(t, ok, false)

	lease.Release(token)

	_, ok = lease.TryAcquire(time.Minute)
	gt.Equal(t, ok, true)
}

func TestLeaseExpiry(t *testing.T) {
	var lease runLease

	// An expired lease can be taken over.
	_, ok := lease.TryAcquire(-time.Second)
	gt.Equal(t, ok, true)

	token, ok := lease.TryAcquire(time.Minute)
	gt.Equal(t, ok, true)

	lease.Release(token)
}

func TestLeaseStaleRelease(t *testing.T) {
	var lease runLease

	stale, ok := lease.TryAcquire(-time.Second)
	gt.Equal(t, ok, true)

	current, ok := lease.TryAcquire(time.Minute)
	gt.Equal(t, ok, true)

	// A taken-over run releasing its stale token must not free the
	// current holder's lease.
	lease.Release(stale)

	_, ok = lease.TryAcquire(time.Minute)
	gt.Equal(t, ok, false)

	lease.Release(current)
}
