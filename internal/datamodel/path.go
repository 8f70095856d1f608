package datamodel

import "fmt"

type (
	EndpointID  uint16
	ClusterID   uint32
	AttributeID uint32
)

// InvalidEndpointID is never assigned to an endpoint.
const InvalidEndpointID EndpointID = 0xFFFF

// Global attributes present on every cluster.
const (
	AttrFeatureMap      AttributeID = 0xFFFC
	AttrClusterRevision AttributeID = 0xFFFD
)

// AttributePath addresses a single attribute instance.
type AttributePath struct {
	Endpoint  EndpointID  `json:"endpoint"`
	Cluster   ClusterID   `json:"cluster"`
	Attribute AttributeID `json:"attribute"`
}

func (p AttributePath) String() string {
	return fmt.Sprintf("%d/0x%04X/0x%04X", p.Endpoint, uint32(p.Cluster), uint32(p.Attribute))
}
