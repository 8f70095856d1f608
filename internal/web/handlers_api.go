package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/device"
)

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	lights := s.lights.Lights()
	states := make([]device.State, 0, len(lights))
	for _, l := range lights {
		states = append(states, l.Snapshot())
	}
	s.writeJSON(w, http.StatusOK, states)
}

func (s *Server) lightFromPath(w http.ResponseWriter, r *http.Request) (*device.Light, bool) {
	ep, err := strconv.ParseUint(r.PathValue("endpoint"), 0, 16)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid endpoint")
		return nil, false
	}
	l, ok := s.lights.Light(datamodel.EndpointID(ep))
	if !ok {
		s.writeError(w, http.StatusNotFound, "device not found")
		return nil, false
	}
	return l, true
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lightFromPath(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, l.Snapshot())
}

type updateDeviceRequest struct {
	Name      *string `json:"name"`
	Location  *string `json:"location"`
	Reachable *bool   `json:"reachable"`
}

// handleAPIUpdateDevice applies a device-side change. It is reported to
// controllers but never mirrored to the cloud.
func (s *Server) handleAPIUpdateDevice(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lightFromPath(w, r)
	if !ok {
		return
	}

	var req updateDeviceRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil && (*req.Name == "" || len(*req.Name) > datamodel.CharStringSize-1) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("name must be 1-%d bytes", datamodel.CharStringSize-1))
		return
	}

	mask, err := l.Apply(device.Update{Name: req.Name, Location: req.Location, Reachable: req.Reachable})
	if err != nil {
		s.logger.Error("update device", "endpoint", l.EndpointID(), "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"changed": mask.Names(),
		"device":  l.Snapshot(),
	})
}

type attributeResponse struct {
	Path        datamodel.AttributePath `json:"path"`
	ClusterName string                  `json:"cluster_name"`
	Attribute   string                  `json:"attribute_name"`
	Value       any                     `json:"value,omitempty"`
	Status      string                  `json:"status"`
	Error       string                  `json:"error,omitempty"`
}

type writeAttributeRequest struct {
	Value any `json:"value"`
}

// handleAPIRemoveDevice takes a light off the bridge until the next restart.
func (s *Server) handleAPIRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if s.registrar == nil {
		s.writeError(w, http.StatusServiceUnavailable, "device removal not available")
		return
	}
	l, ok := s.lightFromPath(w, r)
	if !ok {
		return
	}
	ep := l.EndpointID()
	if _, err := s.registrar.Unregister(l); err != nil {
		s.logger.Error("remove device", "endpoint", ep, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIReadAttribute(w http.ResponseWriter, r *http.Request) {
	path, c, attr, ok := s.attributeFromPath(w, r)
	if !ok {
		return
	}
	value, status, err := s.host.ReadAttribute(r.Context(), path)
	s.writeAttributeResult(w, path, c, attr, value, status, err)
}

func (s *Server) handleAPIWriteAttribute(w http.ResponseWriter, r *http.Request) {
	path, c, attr, ok := s.attributeFromPath(w, r)
	if !ok {
		return
	}
	var req writeAttributeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil {
		s.writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	status, err := s.host.WriteAttribute(r.Context(), path, req.Value)
	s.writeAttributeResult(w, path, c, attr, nil, status, err)
}

func (s *Server) writeAttributeResult(w http.ResponseWriter, path datamodel.AttributePath, c *datamodel.ClusterDef,
	attr *datamodel.AttributeDef, value any, status datamodel.Status, err error) {
	resp := attributeResponse{
		Path:        path,
		ClusterName: c.Name,
		Attribute:   attr.Name,
		Value:       value,
		Status:      status.String(),
	}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Warn("attribute request failed", "path", path.String(), "status", status, "err", err)
	}
	s.writeJSON(w, httpStatus(status, err), resp)
}

// httpStatus maps an interaction status onto an HTTP status code.
func httpStatus(status datamodel.Status, err error) int {
	switch status {
	case datamodel.StatusSuccess:
		return http.StatusOK
	case datamodel.StatusUnsupportedEndpoint, datamodel.StatusUnsupportedCluster, datamodel.StatusUnsupportedAttribute:
		return http.StatusNotFound
	case datamodel.StatusUnsupportedWrite:
		return http.StatusMethodNotAllowed
	case datamodel.StatusConstraintError:
		return http.StatusBadRequest
	}
	if err != nil {
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

// attributeFromPath resolves {endpoint}/{cluster}/{attribute}. Cluster and
// attribute may be given as numbers (decimal or 0x hex) or by name.
func (s *Server) attributeFromPath(w http.ResponseWriter, r *http.Request) (datamodel.AttributePath, *datamodel.ClusterDef, *datamodel.AttributeDef, bool) {
	var path datamodel.AttributePath

	ep, err := strconv.ParseUint(r.PathValue("endpoint"), 0, 16)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid endpoint")
		return path, nil, nil, false
	}
	path.Endpoint = datamodel.EndpointID(ep)

	c := s.findCluster(r.PathValue("cluster"))
	if c == nil {
		s.writeError(w, http.StatusNotFound, "unknown cluster")
		return path, nil, nil, false
	}
	path.Cluster = c.ID

	attr := findAttribute(c, r.PathValue("attribute"))
	if attr == nil {
		s.writeError(w, http.StatusNotFound, "unknown attribute")
		return path, nil, nil, false
	}
	path.Attribute = attr.ID

	return path, c, attr, true
}

func (s *Server) findCluster(key string) *datamodel.ClusterDef {
	if id, err := strconv.ParseUint(key, 0, 32); err == nil {
		return s.clusters.Get(datamodel.ClusterID(id))
	}
	for _, c := range s.clusters.All() {
		if strings.EqualFold(c.Name, key) {
			return &c
		}
	}
	return nil
}

func findAttribute(c *datamodel.ClusterDef, key string) *datamodel.AttributeDef {
	if id, err := strconv.ParseUint(key, 0, 32); err == nil {
		return c.FindAttribute(datamodel.AttributeID(id))
	}
	for i := range c.Attributes {
		if strings.EqualFold(c.Attributes[i].Name, key) {
			return &c.Attributes[i]
		}
	}
	return nil
}

func (s *Server) handleAPIListEndpoints(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.host.Endpoints().Endpoints())
}

func (s *Server) handleAPIListClusters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.clusters.All())
}
