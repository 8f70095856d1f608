package store

import "time"

// LightRecord is the persisted state of a bridged light.
type LightRecord struct {
	Key           string    `json:"key"`
	Name          string    `json:"name"`
	Location      string    `json:"location,omitempty"`
	UniqueID      string    `json:"unique_id,omitempty"`
	EndpointID    uint16    `json:"endpoint_id"`
	On            bool      `json:"on"`
	Level         uint8     `json:"level"`
	Reachable     bool      `json:"reachable"`
	ConfigVersion uint32    `json:"configuration_version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// registrarState is the on-disk form of the registrar cursor.
type registrarState struct {
	Cursor uint16 `json:"cursor"`
}
