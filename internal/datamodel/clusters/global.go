package clusters

import "matter-light-bridge/internal/datamodel"

var (
	FeatureMap = datamodel.AttributeDef{
		ID: datamodel.AttrFeatureMap, Name: "FeatureMap", Type: datamodel.TypeBitmap32, Size: 4,
		Access: datamodel.AccessRead,
	}
	ClusterRevision = datamodel.AttributeDef{
		ID: datamodel.AttrClusterRevision, Name: "ClusterRevision", Type: datamodel.TypeInt16u, Size: 2,
		Access: datamodel.AccessRead,
	}
)

func withGlobals(c datamodel.ClusterDef) datamodel.ClusterDef {
	return c.WithGlobals(FeatureMap, ClusterRevision)
}
