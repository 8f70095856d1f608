package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Light operations, keyed by the configured light name.
	SaveLight(rec *LightRecord) error
	GetLight(key string) (*LightRecord, error)
	DeleteLight(key string) error
	ListLights() ([]*LightRecord, error)

	// UpdateLight atomically reads, modifies, and saves a light in a single
	// transaction. Returns ErrNotFound if the light does not exist.
	UpdateLight(key string, fn func(rec *LightRecord) error) error

	// Registrar endpoint ID cursor
	SaveCursor(id uint16) error
	GetCursor() (uint16, error)

	Close() error
}
