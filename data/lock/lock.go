// Package lock provides best-effort cross-instance mutual exclusion over the
// shared store. The shared conditional set is the source of truth; the local
// table only short-circuits repeat attempts inside one process.
package lock

import (
	"context"
	"sync"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/ncobase/placesearch/data/kv"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/sirupsen/logrus"
)

// Lease is a held lock. A degraded lease was granted without the shared store.
type Lease struct {
	Key      string
	Owner    string
	Degraded bool
	Expires  time.Time
}

// Locker acquires leases with SET NX semantics. No retries are performed.
type Locker struct {
	store  kv.Store
	log    *logger.Logger
	now    func() time.Time
	local  sync.Map // key -> time.Time (local expiry)
	prefix string
}

// New creates a Locker.
func New(store kv.Store, log *logger.Logger) *Locker {
	if log == nil {
		log = logger.Discard()
	}
	return &Locker{store: store, log: log, now: time.Now, prefix: "lock:"}
}

// TryAcquire attempts to take key for ttl. It returns false when another
// owner already holds the key. Store failures grant a degraded lease.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool) {
	now := l.now()
	if exp, ok := l.local.Load(key); ok && now.Before(exp.(time.Time)) {
		return nil, false
	}

	owner, err := nanoid.New()
	if err != nil {
		owner = now.Format(time.RFC3339Nano)
	}

	lease := &Lease{Key: key, Owner: owner, Expires: now.Add(ttl)}
	ok, err := l.store.SetNX(ctx, l.prefix+key, []byte(owner), ttl)
	if err != nil {
		l.log.WithFields(ctx, logrus.Fields{"lock": key, "error": err}).Warn("lock store unavailable, proceeding without shared lock")
		lease.Degraded = true
		ok = true
	}
	if !ok {
		return nil, false
	}

	if prev, loaded := l.local.LoadOrStore(key, lease.Expires); loaded {
		if now.Before(prev.(time.Time)) {
			return nil, false
		}
		l.local.Store(key, lease.Expires)
	}
	return lease, true
}

// Release frees a lease if it is still owned.
func (l *Locker) Release(ctx context.Context, lease *Lease) {
	if lease == nil {
		return
	}
	l.local.Delete(lease.Key)
	if lease.Degraded {
		return
	}
	if _, err := l.store.CompareAndDelete(ctx, l.prefix+lease.Key, []byte(lease.Owner)); err != nil {
		l.log.WithFields(ctx, logrus.Fields{"lock": lease.Key, "error": err}).Warn("failed to release lock")
	}
}
