package endpoint

import (
	"sync"

	"matter-light-bridge/internal/datamodel"
)

// Device is the identity surface the registrar needs from a bridged device.
type Device interface {
	Name() string
	EndpointID() datamodel.EndpointID
	SetEndpoint(id, parent datamodel.EndpointID)
	ClearEndpoint()
	UniqueID() string
	EnsureUniqueID() (string, bool)
}

// Registry is the slot table of bridged devices. Slot i holds the device
// registered at the framework's dynamic index i.
type Registry struct {
	mu           sync.Mutex
	slots        []Device
	cursor       datamodel.EndpointID
	firstDynamic datamodel.EndpointID
}

// NewRegistry creates a registry with capacity slots. IDs are handed out
// starting at firstDynamic.
func NewRegistry(capacity int, firstDynamic datamodel.EndpointID) *Registry {
	return &Registry{
		slots:        make([]Device, capacity),
		cursor:       firstDynamic,
		firstDynamic: firstDynamic,
	}
}

// DeviceAt returns the device in slot index, or nil.
func (r *Registry) DeviceAt(index int) Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.slots) {
		return nil
	}
	return r.slots[index]
}

// Devices returns the registered devices in slot order.
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Device
	for _, d := range r.slots {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// IndexOf returns the slot holding dev.
func (r *Registry) IndexOf(dev Device) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.slots {
		if d == dev {
			return i, true
		}
	}
	return -1, false
}

// Len returns the number of occupied slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.slots {
		if d != nil {
			n++
		}
	}
	return n
}

func (r *Registry) Capacity() int { return len(r.slots) }

func (r *Registry) FirstDynamicEndpointID() datamodel.EndpointID { return r.firstDynamic }

// Cursor returns the next endpoint ID to try.
func (r *Registry) Cursor() datamodel.EndpointID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// SetCursor restores a persisted cursor. IDs below the dynamic range or the
// invalid ID reset it to the first dynamic ID.
func (r *Registry) SetCursor(id datamodel.EndpointID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < r.firstDynamic || id == datamodel.InvalidEndpointID {
		id = r.firstDynamic
	}
	r.cursor = id
}

// advance moves the cursor forward, wrapping to the first dynamic ID.
// Callers hold r.mu.
func (r *Registry) advance() {
	r.cursor++
	if r.cursor == datamodel.InvalidEndpointID || r.cursor < r.firstDynamic {
		r.cursor = r.firstDynamic
	}
}
