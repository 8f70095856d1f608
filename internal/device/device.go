package device

import (
	"encoding/hex"
	"strings"
	"sync"

	"github.com/google/uuid"

	"matter-light-bridge/internal/datamodel"
)

// Device is the identity shared by all bridged devices.
type Device struct {
	mu            sync.RWMutex
	endpointID    datamodel.EndpointID
	parentID      datamodel.EndpointID
	name          string
	location      string
	uniqueID      string
	reachable     bool
	configVersion uint32

	// notify is set by the embedding type and runs outside mu.
	notify func(ChangeMask)
}

func (d *Device) init(name, location string) {
	d.endpointID = datamodel.InvalidEndpointID
	d.parentID = datamodel.InvalidEndpointID
	d.name = name
	d.location = location
	d.configVersion = 1
}

// EndpointID returns the assigned endpoint, or InvalidEndpointID before registration.
func (d *Device) EndpointID() datamodel.EndpointID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.endpointID
}

// ParentEndpointID returns the endpoint of the aggregator hosting the device.
func (d *Device) ParentEndpointID() datamodel.EndpointID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.parentID
}

// SetEndpoint records the endpoint assignment made by the registrar.
func (d *Device) SetEndpoint(id, parent datamodel.EndpointID) {
	d.mu.Lock()
	d.endpointID = id
	d.parentID = parent
	d.mu.Unlock()
}

// ClearEndpoint forgets the endpoint assignment after removal.
func (d *Device) ClearEndpoint() {
	d.SetEndpoint(datamodel.InvalidEndpointID, datamodel.InvalidEndpointID)
}

func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

func (d *Device) Location() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.location
}

func (d *Device) Reachable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reachable
}

func (d *Device) ConfigVersion() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.configVersion
}

// UniqueID returns the unique ID, empty until generated or restored.
func (d *Device) UniqueID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.uniqueID
}

// EnsureUniqueID generates the unique ID if it is not set yet. Once set it
// never changes. The second result reports whether a new ID was generated.
func (d *Device) EnsureUniqueID() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uniqueID != "" {
		return d.uniqueID, false
	}
	d.uniqueID = newUniqueID()
	return d.uniqueID, true
}

// RestoreUniqueID sets a previously persisted unique ID. It is ignored when
// the device already has one.
func (d *Device) RestoreUniqueID(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uniqueID != "" || id == "" {
		return false
	}
	d.uniqueID = id
	return true
}

func (d *Device) SetReachable(reachable bool) {
	d.mu.Lock()
	changed := d.reachable != reachable
	d.reachable = reachable
	d.mu.Unlock()
	if changed {
		d.fire(ChangedReachable)
	}
}

func (d *Device) SetName(name string) {
	d.mu.Lock()
	changed := d.name != name
	d.name = name
	d.mu.Unlock()
	if changed {
		d.fire(ChangedName)
	}
}

func (d *Device) SetLocation(location string) {
	d.mu.Lock()
	changed := d.location != location
	d.location = location
	d.mu.Unlock()
	if changed {
		d.fire(ChangedLocation)
	}
}

func (d *Device) fire(mask ChangeMask) {
	if mask != 0 && d.notify != nil {
		d.notify(mask)
	}
}

// newUniqueID returns 32 upper-case hex characters.
func newUniqueID() string {
	u := uuid.New()
	return strings.ToUpper(hex.EncodeToString(u[:]))
}
