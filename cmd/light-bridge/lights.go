package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"matter-light-bridge/internal/bridge"
	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/endpoint"
	"matter-light-bridge/internal/host"
	"matter-light-bridge/internal/store"
)

// lightSet tracks the configured lights by their static store key.
type lightSet struct {
	eps map[datamodel.EndpointID]string
}

// registerLights creates the configured lights, restores their persisted
// identity and state, and publishes them as dynamic endpoints.
func registerLights(cfgs []LightConfig, db store.Store, registrar *endpoint.Registrar, b *bridge.Bridge, logger *slog.Logger) (*lightSet, error) {
	set := &lightSet{eps: make(map[datamodel.EndpointID]string, len(cfgs))}

	for _, lc := range cfgs {
		l, err := device.NewLight(lc.Name, lc.Location, device.LightOptions{
			Dimmable: lc.Dimmable,
			MinLevel: lc.MinLevel,
			MaxLevel: lc.MaxLevel,
			Level:    lc.Level,
		})
		if err != nil {
			return nil, err
		}

		rec, err := db.GetLight(lc.Name)
		switch {
		case err == nil:
			l.RestoreUniqueID(rec.UniqueID)
			l.Restore(rec.On, rec.Level)
			if rec.Name != "" && rec.Name != lc.Name {
				l.SetName(rec.Name)
			}
			if rec.Location != "" {
				l.SetLocation(rec.Location)
			}
			logger.Debug("light restored", "key", lc.Name, "unique_id", rec.UniqueID, "on", rec.On, "level", rec.Level)
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("load light %q: %w", lc.Name, err)
		}

		ep, types := &clusters.OnOffLightEndpoint, clusters.OnOffLightDeviceTypes
		if l.Dimmable() {
			ep, types = &clusters.DimmableLightEndpoint, clusters.DimmableLightDeviceTypes
		}
		if _, err := registrar.Register(l, ep, types); err != nil {
			return nil, err
		}
		l.SetReachable(true)
		l.OnChange(b.HandleDeviceChange)

		set.eps[l.EndpointID()] = lc.Name
		if err := db.SaveLight(recordFor(lc.Name, l.Snapshot())); err != nil {
			return nil, fmt.Errorf("save light %q: %w", lc.Name, err)
		}
	}

	if err := db.SaveCursor(uint16(registrar.Registry().Cursor())); err != nil {
		logger.Warn("save endpoint cursor", "err", err)
	}
	return set, nil
}

func recordFor(key string, st device.State) *store.LightRecord {
	return &store.LightRecord{
		Key:           key,
		Name:          st.Name,
		Location:      st.Location,
		UniqueID:      st.UniqueID,
		EndpointID:    uint16(st.EndpointID),
		On:            st.On,
		Level:         st.Level,
		Reachable:     st.Reachable,
		ConfigVersion: st.ConfigVersion,
		UpdatedAt:     time.Now(),
	}
}

// persistChanges returns a device_changed handler that saves the new state.
func (s *lightSet) persistChanges(db store.Store, logger *slog.Logger) host.EventHandler {
	return func(event host.Event) {
		data, ok := event.Data.(map[string]interface{})
		if !ok {
			return
		}
		st, ok := data["state"].(device.State)
		if !ok {
			return
		}
		key, ok := s.eps[st.EndpointID]
		if !ok {
			return
		}
		err := db.UpdateLight(key, func(rec *store.LightRecord) error {
			*rec = *recordFor(key, st)
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			err = db.SaveLight(recordFor(key, st))
		}
		if err != nil {
			logger.Error("persist light", "key", key, "err", err)
		}
	}
}
