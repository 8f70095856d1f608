package endpoint

import (
	"errors"
	"fmt"
	"log/slog"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/host"
)

var (
	ErrNoFreeSlot           = errors.New("no free dynamic endpoint slot")
	ErrEndpointIDsExhausted = errors.New("dynamic endpoint ID space exhausted")
	ErrNotRegistered        = errors.New("device not registered")
)

// DynamicEndpoints is the framework's dynamic endpoint API.
type DynamicEndpoints interface {
	SetDynamicEndpoint(index int, id datamodel.EndpointID, ep *datamodel.EndpointType,
		deviceTypes []datamodel.DeviceType, parent datamodel.EndpointID) error
	ClearDynamicEndpoint(index int)
}

// Registrar allocates slots and endpoint IDs for bridged devices.
type Registrar struct {
	registry  *Registry
	endpoints DynamicEndpoints
	parent    datamodel.EndpointID
	logger    *slog.Logger
}

// NewRegistrar creates a registrar that parents every device under parent.
func NewRegistrar(registry *Registry, endpoints DynamicEndpoints, parent datamodel.EndpointID, logger *slog.Logger) *Registrar {
	return &Registrar{
		registry:  registry,
		endpoints: endpoints,
		parent:    parent,
		logger:    logger.With("component", "registrar"),
	}
}

func (r *Registrar) Registry() *Registry { return r.registry }

// Register places dev in the first free slot and registers it with the
// framework. Endpoint IDs that already exist are skipped; the search wraps
// around the dynamic range once before giving up.
func (r *Registrar) Register(dev Device, ep *datamodel.EndpointType, deviceTypes []datamodel.DeviceType) (int, error) {
	reg := r.registry
	reg.mu.Lock()
	defer reg.mu.Unlock()

	index := -1
	for i, d := range reg.slots {
		if d == nil {
			index = i
			break
		}
	}
	if index < 0 {
		r.logger.Error("register failed", "device", dev.Name(), "err", ErrNoFreeSlot)
		return -1, ErrNoFreeSlot
	}
	reg.slots[index] = dev

	span := int(datamodel.InvalidEndpointID) - int(reg.firstDynamic)
	for attempt := 0; attempt < span; attempt++ {
		id := reg.cursor
		err := r.endpoints.SetDynamicEndpoint(index, id, ep, deviceTypes, r.parent)
		if err == nil {
			dev.SetEndpoint(id, r.parent)
			reg.advance()
			uid, created := dev.EnsureUniqueID()
			r.logger.Info("device registered", "device", dev.Name(), "endpoint", id,
				"index", index, "parent", r.parent, "unique_id", uid, "new_unique_id", created)
			return index, nil
		}
		if !errors.Is(err, host.ErrEndpointExists) {
			reg.slots[index] = nil
			r.logger.Error("register failed", "device", dev.Name(), "endpoint", id, "err", err)
			return -1, fmt.Errorf("register %s at endpoint %d: %w", dev.Name(), id, err)
		}
		r.logger.Debug("endpoint id taken", "endpoint", id)
		reg.advance()
	}

	reg.slots[index] = nil
	r.logger.Error("register failed", "device", dev.Name(), "err", ErrEndpointIDsExhausted)
	return -1, ErrEndpointIDsExhausted
}

// Unregister removes dev from the framework and frees its slot.
func (r *Registrar) Unregister(dev Device) (int, error) {
	reg := r.registry
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for i, d := range reg.slots {
		if d != dev {
			continue
		}
		id := dev.EndpointID()
		r.endpoints.ClearDynamicEndpoint(i)
		reg.slots[i] = nil
		dev.ClearEndpoint()
		r.logger.Info("device unregistered", "device", dev.Name(), "endpoint", id, "index", i)
		return i, nil
	}
	return -1, fmt.Errorf("unregister %s: %w", dev.Name(), ErrNotRegistered)
}
