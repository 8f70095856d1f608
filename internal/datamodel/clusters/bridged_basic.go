package clusters

import "matter-light-bridge/internal/datamodel"

const (
	BridgedDeviceBasicInformationID datamodel.ClusterID = 0x0039

	AttrNodeLabel            datamodel.AttributeID = 0x0005
	AttrReachable            datamodel.AttributeID = 0x0011
	AttrUniqueID             datamodel.AttributeID = 0x0012
	AttrConfigurationVersion datamodel.AttributeID = 0x0018
)

var BridgedDeviceBasicInformation = withGlobals(datamodel.ClusterDef{
	ID:       BridgedDeviceBasicInformationID,
	Name:     "BridgedDeviceBasicInformation",
	Revision: 2,
	Attributes: []datamodel.AttributeDef{
		{ID: AttrNodeLabel, Name: "NodeLabel", Type: datamodel.TypeCharString, Size: datamodel.CharStringSize,
			Access: datamodel.AccessRead | datamodel.AccessReport},
		{ID: AttrReachable, Name: "Reachable", Type: datamodel.TypeBoolean, Size: 1,
			Access: datamodel.AccessRead | datamodel.AccessReport},
		{ID: AttrUniqueID, Name: "UniqueID", Type: datamodel.TypeCharString, Size: datamodel.CharStringSize,
			Access: datamodel.AccessRead},
		{ID: AttrConfigurationVersion, Name: "ConfigurationVersion", Type: datamodel.TypeInt32u, Size: 4,
			Access: datamodel.AccessRead | datamodel.AccessReport},
	},
})
