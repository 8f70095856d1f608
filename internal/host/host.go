package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
)

var ErrNoAttributeAccess = errors.New("no attribute access handler installed")

// AttributeAccess serves externally stored attributes. Both methods are
// invoked on the dispatch context.
type AttributeAccess interface {
	ReadAttribute(endpoint datamodel.EndpointID, cluster datamodel.ClusterID, attr *datamodel.AttributeDef, buf []byte) datamodel.Status
	WriteAttribute(endpoint datamodel.EndpointID, cluster datamodel.ClusterID, attr *datamodel.AttributeDef, buf []byte) datamodel.Status
}

// Config holds host settings.
type Config struct {
	AggregatorEndpoint datamodel.EndpointID
	DynamicCapacity    int
	QueueSize          int
}

var (
	rootEndpointType = datamodel.EndpointType{
		Name:     "root_node",
		Clusters: []datamodel.ClusterDef{clusters.Descriptor},
	}
	aggregatorEndpointType = datamodel.EndpointType{
		Name:     "aggregator",
		Clusters: []datamodel.ClusterDef{clusters.Descriptor},
	}
)

var (
	deviceTypeRootNode   = datamodel.DeviceType{ID: 0x0016, Revision: 1}
	deviceTypeAggregator = datamodel.DeviceType{ID: 0x000E, Revision: 1}
)

// Host provides the device framework contract the bridge plugs into: endpoint
// registration, a single dispatch context with deferred work, attribute
// dispatch and change reporting.
type Host struct {
	cfg       Config
	endpoints *EndpointTable
	tasks     *TaskQueue
	events    *EventBus
	logger    *slog.Logger

	accessMu sync.RWMutex
	access   AttributeAccess

	versionMu    sync.Mutex
	dataVersions map[clusterKey]uint32
}

type clusterKey struct {
	endpoint datamodel.EndpointID
	cluster  datamodel.ClusterID
}

// New creates a host with a root endpoint 0 and the aggregator endpoint.
func New(cfg Config, events *EventBus, logger *slog.Logger) *Host {
	if cfg.AggregatorEndpoint == 0 || cfg.AggregatorEndpoint == datamodel.InvalidEndpointID {
		cfg.AggregatorEndpoint = 1
	}
	if cfg.DynamicCapacity <= 0 {
		cfg.DynamicCapacity = 16
	}
	logger = logger.With("component", "host")
	fixed := []Endpoint{
		{ID: 0, Parent: datamodel.InvalidEndpointID, Type: &rootEndpointType,
			DeviceTypes: []datamodel.DeviceType{deviceTypeRootNode}},
		{ID: cfg.AggregatorEndpoint, Parent: 0, Type: &aggregatorEndpointType,
			DeviceTypes: []datamodel.DeviceType{deviceTypeAggregator}},
	}
	return &Host{
		cfg:          cfg,
		endpoints:    NewEndpointTable(fixed, cfg.DynamicCapacity),
		tasks:        NewTaskQueue(cfg.QueueSize, logger),
		events:       events,
		logger:       logger,
		dataVersions: make(map[clusterKey]uint32),
	}
}

func (h *Host) Events() *EventBus { return h.events }

func (h *Host) Tasks() *TaskQueue { return h.tasks }

func (h *Host) Endpoints() *EndpointTable { return h.endpoints }

func (h *Host) AggregatorEndpoint() datamodel.EndpointID {
	return h.cfg.AggregatorEndpoint
}

// SetAttributeAccess installs the handler for externally stored attributes.
func (h *Host) SetAttributeAccess(a AttributeAccess) {
	h.accessMu.Lock()
	h.access = a
	h.accessMu.Unlock()
}

func (h *Host) attributeAccess() AttributeAccess {
	h.accessMu.RLock()
	defer h.accessMu.RUnlock()
	return h.access
}

// Schedule posts deferred work to the dispatch context.
func (h *Host) Schedule(t Task) error {
	return h.tasks.Schedule(t)
}

// Run drives the dispatch context until ctx is done or Stop is called.
func (h *Host) Run(ctx context.Context) error {
	h.logger.Info("dispatch loop started", "dynamic_capacity", h.endpoints.Capacity(),
		"first_dynamic_endpoint", h.endpoints.FirstDynamicEndpointID())
	err := h.tasks.Run(ctx)
	h.logger.Info("dispatch loop stopped", "executed", h.tasks.Executed(), "dropped", h.tasks.Dropped())
	return err
}

// Stop ends the dispatch loop.
func (h *Host) Stop() {
	h.tasks.Stop()
}

// FirstDynamicEndpointID is the lowest ID handed out to dynamic endpoints.
func (h *Host) FirstDynamicEndpointID() datamodel.EndpointID {
	return h.endpoints.FirstDynamicEndpointID()
}

// DynamicIndex maps an endpoint ID to its dynamic slot.
func (h *Host) DynamicIndex(id datamodel.EndpointID) (int, bool) {
	return h.endpoints.DynamicIndex(id)
}

// SetDynamicEndpoint registers a dynamic endpoint.
func (h *Host) SetDynamicEndpoint(index int, id datamodel.EndpointID, ep *datamodel.EndpointType,
	deviceTypes []datamodel.DeviceType, parent datamodel.EndpointID) error {
	if err := h.endpoints.SetDynamicEndpoint(index, id, ep, deviceTypes, parent); err != nil {
		return err
	}
	h.logger.Debug("dynamic endpoint set", "index", index, "endpoint", id, "type", ep.Name, "parent", parent)
	h.events.Emit(Event{Type: EventEndpointAdded, Data: map[string]interface{}{
		"endpoint": uint16(id),
		"index":    index,
		"parent":   uint16(parent),
		"type":     ep.Name,
	}})
	return nil
}

// ClearDynamicEndpoint removes the endpoint held by a dynamic slot.
func (h *Host) ClearDynamicEndpoint(index int) {
	id, ok := h.endpoints.ClearDynamicEndpoint(index)
	if !ok {
		return
	}
	h.versionMu.Lock()
	for k := range h.dataVersions {
		if k.endpoint == id {
			delete(h.dataVersions, k)
		}
	}
	h.versionMu.Unlock()
	h.events.Emit(Event{Type: EventEndpointRemoved, Data: map[string]interface{}{
		"endpoint": uint16(id),
		"index":    index,
	}})
}

// resolve finds the endpoint, cluster and attribute metadata for a path.
func (h *Host) resolve(path datamodel.AttributePath) (*Endpoint, *datamodel.ClusterDef, *datamodel.AttributeDef, datamodel.Status) {
	ep, ok := h.endpoints.Endpoint(path.Endpoint)
	if !ok {
		return nil, nil, nil, datamodel.StatusUnsupportedEndpoint
	}
	c := ep.Type.FindCluster(path.Cluster)
	if c == nil {
		return &ep, nil, nil, datamodel.StatusUnsupportedCluster
	}
	a := c.FindAttribute(path.Attribute)
	if a == nil {
		return &ep, c, nil, datamodel.StatusUnsupportedAttribute
	}
	return &ep, c, a, datamodel.StatusSuccess
}

// ReadAttribute reads an attribute through the dispatch context and decodes it.
func (h *Host) ReadAttribute(ctx context.Context, path datamodel.AttributePath) (any, datamodel.Status, error) {
	ep, c, attr, status := h.resolve(path)
	if !status.OK() {
		return nil, status, nil
	}
	if c.ID == clusters.DescriptorID {
		v, st := h.readDescriptor(ep, attr.ID)
		return v, st, nil
	}

	var (
		value any
		err   error
	)
	callErr := h.tasks.Call(ctx, "read "+path.String(), func(context.Context) {
		value, status, err = h.readLocked(path, attr)
	})
	if callErr != nil {
		return nil, datamodel.StatusFailure, callErr
	}
	return value, status, err
}

// readLocked invokes the access handler directly. Only call it on the dispatch context.
func (h *Host) readLocked(path datamodel.AttributePath, attr *datamodel.AttributeDef) (any, datamodel.Status, error) {
	access := h.attributeAccess()
	if access == nil {
		return nil, datamodel.StatusFailure, ErrNoAttributeAccess
	}
	buf := make([]byte, attr.Size)
	status := access.ReadAttribute(path.Endpoint, path.Cluster, attr, buf)
	if !status.OK() {
		return nil, status, nil
	}
	v, err := datamodel.DecodeValue(attr, buf)
	if err != nil {
		return nil, datamodel.StatusFailure, fmt.Errorf("decode %s: %w", attr.Name, err)
	}
	return v, status, nil
}

// WriteAttribute encodes value and writes it through the dispatch context.
func (h *Host) WriteAttribute(ctx context.Context, path datamodel.AttributePath, value any) (datamodel.Status, error) {
	_, _, attr, status := h.resolve(path)
	if !status.OK() {
		return status, nil
	}
	if !attr.IsWritable() {
		return datamodel.StatusUnsupportedWrite, nil
	}
	buf := make([]byte, attr.Size)
	if err := datamodel.EncodeValue(attr, buf, value); err != nil {
		return datamodel.StatusConstraintError, err
	}
	access := h.attributeAccess()
	if access == nil {
		return datamodel.StatusFailure, ErrNoAttributeAccess
	}

	callErr := h.tasks.Call(ctx, "write "+path.String(), func(context.Context) {
		status = access.WriteAttribute(path.Endpoint, path.Cluster, attr, buf)
	})
	if callErr != nil {
		return datamodel.StatusFailure, callErr
	}
	return status, nil
}

// ReportAttributeChange marks an attribute dirty: the cluster data version is
// bumped and subscribers receive the current value. It must run on the
// dispatch context.
func (h *Host) ReportAttributeChange(path datamodel.AttributePath) {
	_, c, attr, status := h.resolve(path)
	if !status.OK() {
		h.logger.Debug("report for unknown attribute", "path", path.String(), "status", status)
		return
	}

	h.versionMu.Lock()
	key := clusterKey{path.Endpoint, path.Cluster}
	h.dataVersions[key]++
	version := h.dataVersions[key]
	h.versionMu.Unlock()

	value, status, err := h.readLocked(path, attr)
	if err != nil || !status.OK() {
		h.logger.Warn("read for report failed", "path", path.String(), "status", status, "err", err)
		return
	}

	h.events.Emit(Event{Type: EventAttributeReport, Data: map[string]interface{}{
		"endpoint":       uint16(path.Endpoint),
		"cluster_id":     uint32(path.Cluster),
		"cluster_name":   c.Name,
		"attribute_id":   uint32(path.Attribute),
		"attribute_name": attr.Name,
		"value":          value,
		"data_version":   version,
	}})
}

// DataVersion returns the current data version of a cluster instance.
func (h *Host) DataVersion(endpoint datamodel.EndpointID, cluster datamodel.ClusterID) uint32 {
	h.versionMu.Lock()
	defer h.versionMu.Unlock()
	return h.dataVersions[clusterKey{endpoint, cluster}]
}

func (h *Host) readDescriptor(ep *Endpoint, attr datamodel.AttributeID) (any, datamodel.Status) {
	switch attr {
	case clusters.AttrDeviceTypeList:
		list := make([]map[string]uint32, 0, len(ep.DeviceTypes))
		for _, dt := range ep.DeviceTypes {
			list = append(list, map[string]uint32{"device_type": dt.ID, "revision": uint32(dt.Revision)})
		}
		return list, datamodel.StatusSuccess
	case clusters.AttrServerList:
		ids := make([]uint32, 0, len(ep.Type.Clusters))
		for _, c := range ep.Type.Clusters {
			ids = append(ids, uint32(c.ID))
		}
		return ids, datamodel.StatusSuccess
	case clusters.AttrClientList:
		return []uint32{}, datamodel.StatusSuccess
	case clusters.AttrPartsList:
		var parts []uint16
		if ep.ID == 0 {
			for _, other := range h.endpoints.Endpoints() {
				if other.ID != 0 {
					parts = append(parts, uint16(other.ID))
				}
			}
		} else {
			for _, id := range h.endpoints.children(ep.ID) {
				parts = append(parts, uint16(id))
			}
		}
		if parts == nil {
			parts = []uint16{}
		}
		return parts, datamodel.StatusSuccess
	case datamodel.AttrClusterRevision:
		return clusters.Descriptor.Revision, datamodel.StatusSuccess
	case datamodel.AttrFeatureMap:
		return uint32(0), datamodel.StatusSuccess
	}
	return nil, datamodel.StatusUnsupportedAttribute
}
