package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"matter-light-bridge/internal/datamodel"
)

var (
	ErrEndpointExists  = errors.New("endpoint already exists")
	ErrIndexInUse      = errors.New("dynamic endpoint index in use")
	ErrIndexOutOfRange = errors.New("dynamic endpoint index out of range")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// Endpoint is a registered endpoint and its composition.
type Endpoint struct {
	ID          datamodel.EndpointID    `json:"id"`
	Parent      datamodel.EndpointID    `json:"parent"`
	Type        *datamodel.EndpointType `json:"-"`
	TypeName    string                  `json:"type"`
	DeviceTypes []datamodel.DeviceType  `json:"device_types"`
	Dynamic     bool                    `json:"dynamic"`
	Index       int                     `json:"index"`
}

// EndpointTable holds the fixed endpoints and a fixed number of dynamic slots.
type EndpointTable struct {
	mu           sync.RWMutex
	fixed        map[datamodel.EndpointID]*Endpoint
	dynamic      []*Endpoint
	firstDynamic datamodel.EndpointID
}

// NewEndpointTable creates a table with the given fixed endpoints and
// capacity dynamic slots. Dynamic IDs start right after the highest fixed ID.
func NewEndpointTable(fixed []Endpoint, capacity int) *EndpointTable {
	t := &EndpointTable{
		fixed:   make(map[datamodel.EndpointID]*Endpoint, len(fixed)),
		dynamic: make([]*Endpoint, capacity),
	}
	var highest datamodel.EndpointID
	for i := range fixed {
		ep := fixed[i]
		ep.Dynamic = false
		ep.Index = -1
		if ep.Type != nil {
			ep.TypeName = ep.Type.Name
		}
		t.fixed[ep.ID] = &ep
		if ep.ID > highest {
			highest = ep.ID
		}
	}
	t.firstDynamic = highest + 1
	return t
}

// FirstDynamicEndpointID is the lowest ID handed out to dynamic endpoints.
func (t *EndpointTable) FirstDynamicEndpointID() datamodel.EndpointID {
	return t.firstDynamic
}

// Capacity returns the number of dynamic slots.
func (t *EndpointTable) Capacity() int {
	return len(t.dynamic)
}

// SetDynamicEndpoint places an endpoint in a dynamic slot.
func (t *EndpointTable) SetDynamicEndpoint(index int, id datamodel.EndpointID, ep *datamodel.EndpointType,
	deviceTypes []datamodel.DeviceType, parent datamodel.EndpointID) error {
	if ep == nil || id == datamodel.InvalidEndpointID {
		return ErrInvalidEndpoint
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.dynamic) {
		return fmt.Errorf("index %d: %w", index, ErrIndexOutOfRange)
	}
	if _, ok := t.fixed[id]; ok {
		return fmt.Errorf("endpoint %d: %w", id, ErrEndpointExists)
	}
	for _, existing := range t.dynamic {
		if existing != nil && existing.ID == id {
			return fmt.Errorf("endpoint %d: %w", id, ErrEndpointExists)
		}
	}
	if t.dynamic[index] != nil {
		return fmt.Errorf("index %d: %w", index, ErrIndexInUse)
	}

	t.dynamic[index] = &Endpoint{
		ID:          id,
		Parent:      parent,
		Type:        ep,
		TypeName:    ep.Name,
		DeviceTypes: append([]datamodel.DeviceType(nil), deviceTypes...),
		Dynamic:     true,
		Index:       index,
	}
	return nil
}

// ClearDynamicEndpoint frees a dynamic slot and returns the endpoint it held.
func (t *EndpointTable) ClearDynamicEndpoint(index int) (datamodel.EndpointID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.dynamic) || t.dynamic[index] == nil {
		return datamodel.InvalidEndpointID, false
	}
	id := t.dynamic[index].ID
	t.dynamic[index] = nil
	return id, true
}

// DynamicIndex maps an endpoint ID to its dynamic slot.
func (t *EndpointTable) DynamicIndex(id datamodel.EndpointID) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, ep := range t.dynamic {
		if ep != nil && ep.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Endpoint returns a copy of the endpoint with the given ID.
func (t *EndpointTable) Endpoint(id datamodel.EndpointID) (Endpoint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ep, ok := t.fixed[id]; ok {
		return *ep, true
	}
	for _, ep := range t.dynamic {
		if ep != nil && ep.ID == id {
			return *ep, true
		}
	}
	return Endpoint{}, false
}

// Endpoints returns all endpoints ordered by ID.
func (t *EndpointTable) Endpoints() []Endpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]Endpoint, 0, len(t.fixed)+len(t.dynamic))
	for _, ep := range t.fixed {
		result = append(result, *ep)
	}
	for _, ep := range t.dynamic {
		if ep != nil {
			result = append(result, *ep)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// children returns the endpoints whose parent is id.
func (t *EndpointTable) children(id datamodel.EndpointID) []datamodel.EndpointID {
	var ids []datamodel.EndpointID
	for _, ep := range t.Endpoints() {
		if ep.ID != id && ep.Parent == id {
			ids = append(ids, ep.ID)
		}
	}
	return ids
}
