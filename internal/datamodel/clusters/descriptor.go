package clusters

import "matter-light-bridge/internal/datamodel"

const (
	DescriptorID datamodel.ClusterID = 0x001D

	AttrDeviceTypeList datamodel.AttributeID = 0x0000
	AttrServerList     datamodel.AttributeID = 0x0001
	AttrClientList     datamodel.AttributeID = 0x0002
	AttrPartsList      datamodel.AttributeID = 0x0003
)

// Descriptor list attributes are served by the host, not by the bridge callbacks.
var Descriptor = withGlobals(datamodel.ClusterDef{
	ID:       DescriptorID,
	Name:     "Descriptor",
	Revision: 1,
	Attributes: []datamodel.AttributeDef{
		{ID: AttrDeviceTypeList, Name: "DeviceTypeList", Type: datamodel.TypeArray, Access: datamodel.AccessRead},
		{ID: AttrServerList, Name: "ServerList", Type: datamodel.TypeArray, Access: datamodel.AccessRead},
		{ID: AttrClientList, Name: "ClientList", Type: datamodel.TypeArray, Access: datamodel.AccessRead},
		{ID: AttrPartsList, Name: "PartsList", Type: datamodel.TypeArray, Access: datamodel.AccessRead},
	},
})
