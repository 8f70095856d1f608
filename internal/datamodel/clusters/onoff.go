package clusters

import "matter-light-bridge/internal/datamodel"

const (
	OnOffID datamodel.ClusterID = 0x0006

	AttrOnOff datamodel.AttributeID = 0x0000
)

var OnOff = withGlobals(datamodel.ClusterDef{
	ID:       OnOffID,
	Name:     "OnOff",
	Revision: 4,
	Attributes: []datamodel.AttributeDef{
		{ID: AttrOnOff, Name: "OnOff", Type: datamodel.TypeBoolean, Size: 1,
			Access: datamodel.AccessRead | datamodel.AccessWrite | datamodel.AccessReport},
	},
})
