package datamodel

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds all known cluster definitions.
type Registry struct {
	mu       sync.RWMutex
	clusters map[ClusterID]*ClusterDef
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clusters: make(map[ClusterID]*ClusterDef),
		logger:   logger,
	}
}

// Register adds a cluster definition to the registry. A later registration
// with the same ID replaces the earlier one.
func (r *Registry) Register(c ClusterDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clusters[c.ID]; ok {
		r.logger.Debug("cluster replaced", "id", fmt.Sprintf("0x%04X", uint32(c.ID)), "name", c.Name)
	} else {
		r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", uint32(c.ID)), "name", c.Name)
	}
	r.clusters[c.ID] = c.DeepCopy()
}

// Get returns a cluster definition by ID, or nil if not found.
// The returned value is a deep copy; callers may modify it safely.
func (r *Registry) Get(id ClusterID) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clusters[id]
	if c == nil {
		return nil
	}
	return c.DeepCopy()
}

// Lookup returns the attribute definition for a cluster/attribute pair.
func (r *Registry) Lookup(cluster ClusterID, attr AttributeID) (*AttributeDef, bool) {
	c := r.Get(cluster)
	if c == nil {
		return nil, false
	}
	a := c.FindAttribute(attr)
	return a, a != nil
}

// All returns all registered cluster definitions ordered by ID.
func (r *Registry) All() []ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ClusterDef, 0, len(r.clusters))
	for _, c := range r.clusters {
		result = append(result, *c.DeepCopy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
