package clusters

import "matter-light-bridge/internal/datamodel"

// Device types
var (
	DeviceTypeBridgedNode   = datamodel.DeviceType{ID: 0x0013, Revision: 1}
	DeviceTypeOnOffLight    = datamodel.DeviceType{ID: 0x0100, Revision: 1}
	DeviceTypeDimmableLight = datamodel.DeviceType{ID: 0x0101, Revision: 1}
)

// OnOffLightEndpoint hosts a bridged on/off light.
var OnOffLightEndpoint = datamodel.EndpointType{
	Name:     "on_off_light",
	Clusters: []datamodel.ClusterDef{OnOff, Descriptor, BridgedDeviceBasicInformation},
}

// DimmableLightEndpoint hosts a bridged light with level control.
var DimmableLightEndpoint = datamodel.EndpointType{
	Name:     "dimmable_light",
	Clusters: []datamodel.ClusterDef{OnOff, LevelControl, Descriptor, BridgedDeviceBasicInformation},
}

// OnOffLightDeviceTypes is the device type list for OnOffLightEndpoint.
var OnOffLightDeviceTypes = []datamodel.DeviceType{DeviceTypeOnOffLight, DeviceTypeBridgedNode}

// DimmableLightDeviceTypes is the device type list for DimmableLightEndpoint.
var DimmableLightDeviceTypes = []datamodel.DeviceType{DeviceTypeDimmableLight, DeviceTypeBridgedNode}

// All lists every cluster served by the bridge, for registry population.
func All() []datamodel.ClusterDef {
	return []datamodel.ClusterDef{OnOff, LevelControl, Descriptor, BridgedDeviceBasicInformation}
}
