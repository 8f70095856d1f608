package bridge

import (
	"context"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/host"
)

// reportedAttributes maps change bits to the attribute reported for them.
var reportedAttributes = []struct {
	bit     device.ChangeMask
	cluster datamodel.ClusterID
	attr    datamodel.AttributeID
}{
	{device.ChangedReachable, clusters.BridgedDeviceBasicInformationID, clusters.AttrReachable},
	{device.ChangedName, clusters.BridgedDeviceBasicInformationID, clusters.AttrNodeLabel},
	{device.ChangedOnOff, clusters.OnOffID, clusters.AttrOnOff},
	{device.ChangedLevel, clusters.LevelControlID, clusters.AttrCurrentLevel},
}

// HandleDeviceChange is installed as the light's change callback. Each
// changed attribute is reported from the dispatch context.
func (b *Bridge) HandleDeviceChange(l *device.Light, mask device.ChangeMask) {
	ep := l.EndpointID()
	if ep == datamodel.InvalidEndpointID {
		return
	}
	b.logger.Debug("device changed", "device", l.Name(), "endpoint", ep, "changed", mask.String())

	if mask.Has(device.ChangedLocation) {
		b.logger.Info("device location changed", "device", l.Name(), "endpoint", ep, "location", l.Location())
	}

	for _, r := range reportedAttributes {
		if !mask.Has(r.bit) {
			continue
		}
		if r.cluster == clusters.LevelControlID && !l.Dimmable() {
			continue
		}
		path := datamodel.AttributePath{Endpoint: ep, Cluster: r.cluster, Attribute: r.attr}
		err := b.host.Schedule(host.Task{
			Name: "report",
			Path: path,
			Run: func(context.Context) {
				b.host.ReportAttributeChange(path)
			},
		})
		if err != nil {
			b.logger.Warn("report not scheduled", "path", path.String(), "err", err)
		}
	}

	if b.events != nil {
		b.events.Emit(host.Event{Type: host.EventDeviceChanged, Data: map[string]interface{}{
			"endpoint": uint16(ep),
			"changed":  mask.Names(),
			"state":    l.Snapshot(),
		}})
	}
}
