// Package lock implements the per-datastore exclusive locks shared by every
// session of a netconf server. A datastore is held by at most one session at
// a time; all state changes happen under a single mutex.
package lock

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/ulrikforsgren/netconf/common"
)

// Holder query results for datastores that are not locked or not known.
const (
	// Unlocked is returned by Holder for a known datastore no session holds.
	Unlocked uint64 = 0
)

// ErrUnknownDatastore is returned by TryLock when the datastore name is not
// one the server understands.
var ErrUnknownDatastore = errors.New("unknown datastore")

// Registry tracks which session, if any, holds the exclusive lock on each
// datastore. The zero session id means unlocked.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	holders map[string]uint64
	trace   *Trace
}

// NewRegistry delivers an empty Registry whose state transitions are
// reported to the supplied trace hooks (nil for none).
func NewRegistry(trace *Trace) *Registry {
	return &Registry{
		holders: map[string]uint64{},
		trace:   resolveTrace(trace),
	}
}

// TryLock attempts to take the exclusive lock on datastore for session sid.
// It returns 0 if the lock was taken, or the holding session's id if another
// session already holds it (in which case no state is changed).
func (r *Registry) TryLock(sid uint64, datastore string) (uint64, error) {
	if !common.IsKnownDatastore(datastore) {
		return 0, errors.Wrap(ErrUnknownDatastore, datastore)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder := r.holders[datastore]; holder != 0 && holder != sid {
		return holder, nil
	}
	r.holders[datastore] = sid
	r.trace.Locked(sid, datastore)
	return 0, nil
}

// Unlock releases the lock held on datastore by session sid. It reports
// whether the release happened; false means sid is not the current holder.
func (r *Registry) Unlock(sid uint64, datastore string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holders[datastore] != sid || sid == 0 {
		return false
	}
	delete(r.holders, datastore)
	r.trace.Unlocked(sid, datastore)
	return true
}

// ReleaseAll forcibly releases every datastore held by session sid,
// returning the names of the datastores that were released.
func (r *Registry) ReleaseAll(sid uint64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var released []string
	for datastore, holder := range r.holders {
		if holder == sid {
			delete(r.holders, datastore)
			released = append(released, datastore)
		}
	}
	sort.Strings(released)
	r.trace.Released(sid, released)
	return released
}

// Holder returns the session id holding datastore, Unlocked if nobody does,
// and ok=false if the datastore name is not known to the server.
func (r *Registry) Holder(datastore string) (holder uint64, ok bool) {
	if !common.IsKnownDatastore(datastore) {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holders[datastore], true
}
