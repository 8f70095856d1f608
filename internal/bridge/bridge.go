package bridge

import (
	"context"
	"log/slog"

	"matter-light-bridge/internal/cloud"
	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/endpoint"
	"matter-light-bridge/internal/host"
)

// Mirror pushes a single field of local state to the cloud.
type Mirror interface {
	Mirror(ctx context.Context, field cloud.Field, value any) cloud.Result
}

// Host is the part of the framework the bridge calls back into.
type Host interface {
	DynamicIndex(id datamodel.EndpointID) (int, bool)
	Schedule(t host.Task) error
	ReportAttributeChange(path datamodel.AttributePath)
}

// Bridge serves attribute reads and writes for bridged lights and turns
// device changes into attribute reports.
type Bridge struct {
	ctx      context.Context
	cancel   context.CancelFunc
	registry *endpoint.Registry
	host     Host
	mirror   Mirror
	events   *host.EventBus
	logger   *slog.Logger
}

// New creates a bridge over the lights held in registry.
func New(registry *endpoint.Registry, h Host, mirror Mirror, events *host.EventBus, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		ctx:      ctx,
		cancel:   cancel,
		registry: registry,
		host:     h,
		mirror:   mirror,
		events:   events,
		logger:   logger.With("component", "bridge"),
	}
}

// Close cancels any cloud call still in flight. Writes after Close still
// update local state; their mirror calls fail immediately.
func (b *Bridge) Close() {
	b.cancel()
}

// Light returns the light registered at the given endpoint.
func (b *Bridge) Light(ep datamodel.EndpointID) (*device.Light, bool) {
	index, ok := b.host.DynamicIndex(ep)
	if !ok {
		return nil, false
	}
	l, ok := b.registry.DeviceAt(index).(*device.Light)
	return l, ok && l != nil
}

// Lights returns every registered light in slot order.
func (b *Bridge) Lights() []*device.Light {
	var out []*device.Light
	for _, d := range b.registry.Devices() {
		if l, ok := d.(*device.Light); ok {
			out = append(out, l)
		}
	}
	return out
}

// FindLight looks a light up by name or unique ID.
func (b *Bridge) FindLight(key string) (*device.Light, bool) {
	for _, l := range b.Lights() {
		if l.Name() == key || l.UniqueID() == key {
			return l, true
		}
	}
	return nil, false
}

// ReadAttribute implements host.AttributeAccess.
func (b *Bridge) ReadAttribute(ep datamodel.EndpointID, cluster datamodel.ClusterID, attr *datamodel.AttributeDef, buf []byte) datamodel.Status {
	l, ok := b.Light(ep)
	if !ok {
		b.logger.Debug("read for unknown endpoint", "endpoint", ep)
		return datamodel.StatusFailure
	}

	var status datamodel.Status
	switch cluster {
	case clusters.BridgedDeviceBasicInformationID:
		status = readBasicInformation(l, attr.ID, buf)
	case clusters.OnOffID:
		status = readOnOff(l, attr.ID, buf)
	case clusters.LevelControlID:
		status = readLevelControl(l, attr.ID, buf)
	default:
		status = datamodel.StatusUnsupportedCluster
	}
	if !status.OK() {
		b.logger.Debug("read failed", "endpoint", ep, "cluster", cluster, "attribute", attr.Name,
			"len", len(buf), "status", status)
	}
	return status
}

func readBasicInformation(l *device.Light, attr datamodel.AttributeID, buf []byte) datamodel.Status {
	switch attr {
	case clusters.AttrReachable:
		return encodeStatus(datamodel.EncodeBool(buf, l.Reachable()))
	case clusters.AttrNodeLabel:
		return encodeCharString(buf, l.Name())
	case clusters.AttrUniqueID:
		return encodeCharString(buf, l.UniqueID())
	case clusters.AttrConfigurationVersion:
		return encodeStatus(datamodel.EncodeUint32(buf, l.ConfigVersion()))
	}
	return readGlobal(clusters.BridgedDeviceBasicInformation.Revision, attr, buf)
}

func readOnOff(l *device.Light, attr datamodel.AttributeID, buf []byte) datamodel.Status {
	if attr == clusters.AttrOnOff {
		return encodeStatus(datamodel.EncodeBool(buf, l.IsOn()))
	}
	return readGlobal(clusters.OnOff.Revision, attr, buf)
}

func readLevelControl(l *device.Light, attr datamodel.AttributeID, buf []byte) datamodel.Status {
	if !l.Dimmable() {
		return datamodel.StatusUnsupportedAttribute
	}
	switch attr {
	case clusters.AttrCurrentLevel:
		return encodeStatus(datamodel.EncodeUint8(buf, l.Level()))
	case clusters.AttrMinLevel:
		return encodeStatus(datamodel.EncodeUint8(buf, l.MinLevel()))
	case clusters.AttrMaxLevel:
		return encodeStatus(datamodel.EncodeUint8(buf, l.MaxLevel()))
	case clusters.AttrOptions:
		return encodeStatus(datamodel.EncodeUint8(buf, 0))
	}
	return readGlobal(clusters.LevelControl.Revision, attr, buf)
}

func readGlobal(revision uint16, attr datamodel.AttributeID, buf []byte) datamodel.Status {
	switch attr {
	case datamodel.AttrClusterRevision:
		return encodeStatus(datamodel.EncodeUint16(buf, revision))
	case datamodel.AttrFeatureMap:
		return encodeStatus(datamodel.EncodeUint32(buf, 0))
	}
	return datamodel.StatusUnsupportedAttribute
}

func encodeCharString(buf []byte, s string) datamodel.Status {
	if len(buf) != datamodel.CharStringSize {
		return datamodel.StatusFailure
	}
	return encodeStatus(datamodel.EncodeCharString(buf, s))
}

func encodeStatus(err error) datamodel.Status {
	if err != nil {
		return datamodel.StatusFailure
	}
	return datamodel.StatusSuccess
}

// WriteAttribute implements host.AttributeAccess. Local state is updated
// first; the cloud mirror runs afterwards and its outcome never changes the
// returned status.
func (b *Bridge) WriteAttribute(ep datamodel.EndpointID, cluster datamodel.ClusterID, attr *datamodel.AttributeDef, buf []byte) datamodel.Status {
	l, ok := b.Light(ep)
	if !ok {
		b.logger.Debug("write for unknown endpoint", "endpoint", ep)
		return datamodel.StatusFailure
	}
	if !l.Reachable() {
		b.logger.Warn("write to unreachable device", "device", l.Name(), "endpoint", ep,
			"cluster", cluster, "attribute", attr.Name)
		return datamodel.StatusFailure
	}

	switch {
	case cluster == clusters.OnOffID && attr.ID == clusters.AttrOnOff:
		on, err := datamodel.DecodeBool(buf)
		if err != nil {
			return datamodel.StatusFailure
		}
		l.SetOnOff(on)
		b.logger.Info("on/off written", "device", l.Name(), "endpoint", ep, "on", on)
		b.mirror.Mirror(b.ctx, cloud.FieldEnabled, on)
		return datamodel.StatusSuccess

	case cluster == clusters.LevelControlID && attr.ID == clusters.AttrCurrentLevel:
		if !l.Dimmable() {
			return datamodel.StatusUnsupportedAttribute
		}
		level, err := datamodel.DecodeUint8(buf)
		if err != nil {
			return datamodel.StatusFailure
		}
		if err := l.SetLevel(level); err != nil {
			b.logger.Warn("level rejected", "device", l.Name(), "endpoint", ep, "level", level, "err", err)
			return datamodel.StatusConstraintError
		}
		b.logger.Info("level written", "device", l.Name(), "endpoint", ep, "level", level, "on", l.IsOn())
		b.mirror.Mirror(b.ctx, cloud.FieldBrightness, level)
		return datamodel.StatusSuccess
	}

	if clusterAttributeKnown(cluster, attr.ID) {
		return datamodel.StatusUnsupportedWrite
	}
	return datamodel.StatusUnsupportedAttribute
}

func clusterAttributeKnown(cluster datamodel.ClusterID, attr datamodel.AttributeID) bool {
	for _, c := range []*datamodel.ClusterDef{&clusters.BridgedDeviceBasicInformation, &clusters.OnOff, &clusters.LevelControl} {
		if c.ID == cluster {
			return c.FindAttribute(attr) != nil
		}
	}
	return false
}
