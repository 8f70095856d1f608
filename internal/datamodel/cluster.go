package datamodel

// Access flags
const (
	AccessRead   uint8 = 0x01
	AccessWrite  uint8 = 0x02
	AccessReport uint8 = 0x04
)

// AttributeDef defines a cluster attribute and its fixed wire size.
type AttributeDef struct {
	ID     AttributeID `json:"id"`
	Name   string      `json:"name"`
	Type   uint8       `json:"type"`
	Size   int         `json:"size"`
	Access uint8       `json:"access"` // bitmask: 1=read, 2=write, 4=reportable
}

// IsReadable returns true if the attribute can be read.
func (a *AttributeDef) IsReadable() bool {
	return a.Access&AccessRead != 0
}

// IsWritable returns true if the attribute can be written.
func (a *AttributeDef) IsWritable() bool {
	return a.Access&AccessWrite != 0
}

// IsReportable returns true if the attribute supports reporting.
func (a *AttributeDef) IsReportable() bool {
	return a.Access&AccessReport != 0
}

// ClusterDef defines a server cluster with its attributes.
type ClusterDef struct {
	ID         ClusterID      `json:"id"`
	Name       string         `json:"name"`
	Revision   uint16         `json:"revision"`
	Attributes []AttributeDef `json:"attributes,omitempty"`
}

// FindAttribute looks up an attribute by ID.
func (c *ClusterDef) FindAttribute(id AttributeID) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].ID == id {
			return &c.Attributes[i]
		}
	}
	return nil
}

// FindAttributeByName looks up an attribute by its name, case-sensitive.
func (c *ClusterDef) FindAttributeByName(name string) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			return &c.Attributes[i]
		}
	}
	return nil
}

// DeepCopy returns a deep copy of the cluster definition.
func (c *ClusterDef) DeepCopy() *ClusterDef {
	cp := *c
	if c.Attributes != nil {
		cp.Attributes = make([]AttributeDef, len(c.Attributes))
		copy(cp.Attributes, c.Attributes)
	}
	return &cp
}

// WithGlobals returns a copy of the cluster with the global attributes appended
// unless the cluster already declares them.
func (c ClusterDef) WithGlobals(globals ...AttributeDef) ClusterDef {
	cp := *c.DeepCopy()
	for _, g := range globals {
		if cp.FindAttribute(g.ID) == nil {
			cp.Attributes = append(cp.Attributes, g)
		}
	}
	return cp
}

// DeviceType is an entry of an endpoint's device type list.
type DeviceType struct {
	ID       uint32 `json:"id"`
	Revision uint8  `json:"revision"`
}

// EndpointType is the set of server clusters hosted on an endpoint.
type EndpointType struct {
	Name     string       `json:"name"`
	Clusters []ClusterDef `json:"clusters"`
}

// FindCluster returns the cluster with the given ID, or nil.
func (e *EndpointType) FindCluster(id ClusterID) *ClusterDef {
	if e == nil {
		return nil
	}
	for i := range e.Clusters {
		if e.Clusters[i].ID == id {
			return &e.Clusters[i]
		}
	}
	return nil
}

// FindAttribute resolves attribute metadata for a cluster hosted on the endpoint.
func (e *EndpointType) FindAttribute(cluster ClusterID, attr AttributeID) *AttributeDef {
	c := e.FindCluster(cluster)
	if c == nil {
		return nil
	}
	return c.FindAttribute(attr)
}

// HasCluster reports whether the endpoint hosts the cluster.
func (e *EndpointType) HasCluster(id ClusterID) bool {
	return e.FindCluster(id) != nil
}
