// Package registry implements the process-wide processor registry: the
// cluster-membership cache the Scope Builder consults to validate worker
// and thread references, and the sole component in the core allowed to
// block (a remote children() fetch).
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/latticesched/scope/internal/proc"
	scopecore "github.com/latticesched/scope/internal/core/scope"
)

// ErrUnknownWorker is returned whenever a query names a WorkerID the
// registry has never seen joined (or has since seen leave).
var ErrUnknownWorker = errors.New("registry: unknown worker")

// MembershipSource is the seam a gossip-membership adapter (e.g. backed
// by hashicorp/memberlist) would implement to drive WorkerJoined/
// WorkerLeft; cluster discovery and heartbeating themselves are non-goals
// of this module (spec.md §1) and no implementation is provided here.
type MembershipSource interface {
	Joined() <-chan WorkerJoinEvent
	Left() <-chan proc.WorkerID
}

// WorkerJoinEvent is the payload of an inbound worker_joined signal.
type WorkerJoinEvent struct {
	Worker   proc.WorkerID
	Node     scopecore.NodeUUID
	Children []proc.Processor
}

// ChildrenFetcher is the seam a remote-call client (e.g. backed by
// google.golang.org/grpc) would implement to serve Registry.Children for
// a worker whose children were not supplied at join time.
type ChildrenFetcher interface {
	FetchChildren(ctx context.Context, worker proc.WorkerID) ([]proc.Processor, error)
}

// Registry caches worker identity and topology. Reads (Workers,
// NodeUUID, Children, DefaultEnabled) may proceed concurrently; writes
// (WorkerJoined, WorkerLeft) exclude all readers, per spec.md §5.
type Registry struct {
	mu       sync.RWMutex
	nodeOf   map[proc.WorkerID]scopecore.NodeUUID
	children map[proc.WorkerID][]proc.Processor
	fetcher  ChildrenFetcher
	log      *logrus.Entry
}

// New returns an empty Registry. fetcher may be nil, in which case
// Children only ever returns what was supplied at join time.
func New(fetcher ChildrenFetcher) *Registry {
	return &Registry{
		nodeOf:   map[proc.WorkerID]scopecore.NodeUUID{},
		children: map[proc.WorkerID][]proc.Processor{},
		fetcher:  fetcher,
		log:      logrus.WithField("component", "registry"),
	}
}

// WorkerJoined records a new worker's node identity and (optionally) an
// already-known snapshot of its children.
func (r *Registry) WorkerJoined(wid proc.WorkerID, node scopecore.NodeUUID, children []proc.Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodeOf[wid] = node
	if children != nil {
		r.children[wid] = children
	}
	r.log.WithFields(logrus.Fields{"worker": wid, "node": node}).Info("worker joined")
}

// WorkerLeft removes a worker's cached identity and topology. Legal only
// at cluster shutdown or a well-known teardown phase (spec.md §5) — the
// registry itself does not enforce that, callers must.
func (r *Registry) WorkerLeft(wid proc.WorkerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodeOf, wid)
	delete(r.children, wid)
	r.log.WithField("worker", wid).Info("worker left")
}

// Workers returns the current cluster membership, sorted for
// deterministic iteration (join order is not otherwise meaningful here).
func (r *Registry) Workers() []proc.WorkerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]proc.WorkerID, 0, len(r.nodeOf))
	for wid := range r.nodeOf {
		out = append(out, wid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NodeUUID returns the host identity for wid, or ErrUnknownWorker.
func (r *Registry) NodeUUID(wid proc.WorkerID) (scopecore.NodeUUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uuid, ok := r.nodeOf[wid]
	if !ok {
		return scopecore.NodeUUID{}, errors.Wrapf(ErrUnknownWorker, "worker %d", wid)
	}
	return uuid, nil
}

// Children returns the processors hosted by wid's OS process. A cached
// snapshot (from WorkerJoined or a prior fetch) is returned directly;
// otherwise, if a ChildrenFetcher was configured, the registry issues a
// remote request and caches the result. This is the only operation in
// the core that may block or be cancelled via ctx.
func (r *Registry) Children(ctx context.Context, wid proc.WorkerID) ([]proc.Processor, error) {
	r.mu.RLock()
	if _, known := r.nodeOf[wid]; !known {
		r.mu.RUnlock()
		return nil, errors.Wrapf(ErrUnknownWorker, "worker %d", wid)
	}
	if cached, ok := r.children[wid]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	fetcher := r.fetcher
	r.mu.RUnlock()

	if fetcher == nil {
		return nil, nil
	}
	fetched, err := fetcher.FetchChildren(ctx, wid)
	if err != nil {
		r.log.WithError(err).WithField("worker", wid).Warn("children fetch failed")
		return nil, errors.Wrapf(err, "fetching children of worker %d", wid)
	}

	r.mu.Lock()
	r.children[wid] = fetched
	r.mu.Unlock()
	return fetched, nil
}

// DefaultEnabled delegates to the processor's own capability query; the
// registry's own state is not consulted.
func (r *Registry) DefaultEnabled(p proc.Processor) bool {
	return p.DefaultEnabled()
}

// GetParent delegates to the processor's own Parent() query.
func (r *Registry) GetParent(p proc.Processor) proc.Processor {
	return p.Parent()
}
