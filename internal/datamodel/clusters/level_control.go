package clusters

import "matter-light-bridge/internal/datamodel"

const (
	LevelControlID datamodel.ClusterID = 0x0008

	AttrCurrentLevel datamodel.AttributeID = 0x0000
	AttrMinLevel     datamodel.AttributeID = 0x0002
	AttrMaxLevel     datamodel.AttributeID = 0x0003
	AttrOptions      datamodel.AttributeID = 0x000F
)

var LevelControl = withGlobals(datamodel.ClusterDef{
	ID:       LevelControlID,
	Name:     "LevelControl",
	Revision: 6,
	Attributes: []datamodel.AttributeDef{
		{ID: AttrCurrentLevel, Name: "CurrentLevel", Type: datamodel.TypeInt8u, Size: 1,
			Access: datamodel.AccessRead | datamodel.AccessWrite | datamodel.AccessReport},
		{ID: AttrMinLevel, Name: "MinLevel", Type: datamodel.TypeInt8u, Size: 1, Access: datamodel.AccessRead},
		{ID: AttrMaxLevel, Name: "MaxLevel", Type: datamodel.TypeInt8u, Size: 1, Access: datamodel.AccessRead},
		{ID: AttrOptions, Name: "Options", Type: datamodel.TypeBitmap8, Size: 1, Access: datamodel.AccessRead},
	},
})
