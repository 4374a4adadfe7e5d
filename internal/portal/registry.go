package portal

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/care-portal/backend/internal/observability/metrics"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

// Workspace is the controller and event feed owned by one portal client.
type Workspace struct {
	ClientID   string
	Controller *Controller
	Feed       *Feed

	lastSeen time.Time
}

// Factory builds the controller for a new client.
type Factory func(clientID string, view View) (*Controller, error)

// Registry keeps one Workspace per client id and evicts idle ones.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace

	factory Factory
	metrics *metrics.PortalMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, m *metrics.PortalMetrics, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		workspaces: make(map[string]*Workspace),
		factory:    factory,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Get returns the workspace for clientID, creating it on first use.
func (r *Registry) Get(clientID string) (*Workspace, error) {
	r.mu.RLock()
	ws, ok := r.workspaces[clientID]
	r.mu.RUnlock()
	if ok {
		r.touch(ws)
		return ws, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[clientID]; ok {
		ws.lastSeen = r.now()
		return ws, nil
	}

	feed := NewFeed()
	ctrl, err := r.factory(clientID, feed)
	if err != nil {
		return nil, err
	}
	ws = &Workspace{ClientID: clientID, Controller: ctrl, Feed: feed, lastSeen: r.now()}
	r.workspaces[clientID] = ws
	r.metrics.SetWorkspaces(len(r.workspaces))
	r.logger.Debug("workspace created", "client_id", clientID)
	return ws, nil
}

func (r *Registry) touch(ws *Workspace) {
	r.mu.Lock()
	ws.lastSeen = r.now()
	r.mu.Unlock()
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workspaces)
}

// Evict removes workspaces idle for longer than ttl, skipping those with
// live feed subscribers. It returns how many were removed.
func (r *Registry) Evict(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var evicted []*Workspace
	for id, ws := range r.workspaces {
		if ws.lastSeen.After(cutoff) || ws.Feed.Subscribers() > 0 {
			continue
		}
		delete(r.workspaces, id)
		evicted = append(evicted, ws)
	}
	r.metrics.SetWorkspaces(len(r.workspaces))
	r.mu.Unlock()

	for _, ws := range evicted {
		ws.Feed.Close()
		r.logger.Debug("workspace evicted", "client_id", ws.ClientID)
	}
	return len(evicted)
}

// Run evicts idle workspaces every interval until ctx ends.
func (r *Registry) Run(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(ttl); n > 0 {
				r.logger.Info("evicted idle workspaces", "count", n)
			}
		}
	}
}
