package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"matter-light-bridge/internal/datamodel"
)

// Level bounds of the LevelControl cluster.
const (
	DefaultMinLevel uint8 = 1
	DefaultMaxLevel uint8 = 254
)

var ErrLevelOutOfRange = errors.New("level out of range")

// ChangeFunc is invoked after a light changed. It runs outside the device lock.
type ChangeFunc func(l *Light, mask ChangeMask)

// LightOptions configures a new light.
type LightOptions struct {
	Dimmable bool
	MinLevel uint8 // default DefaultMinLevel
	MaxLevel uint8 // default DefaultMaxLevel
	Level    uint8 // initial level, clamped into [MinLevel, MaxLevel]
}

// Light is a bridged on/off light, optionally with level control.
type Light struct {
	Device

	on       bool
	level    uint8
	minLevel uint8
	maxLevel uint8
	dimmable bool

	cbMu     sync.RWMutex
	onChange ChangeFunc
}

// NewLight creates an unreachable, off light with static identity.
func NewLight(name, location string, opts LightOptions) (*Light, error) {
	if opts.MinLevel == 0 {
		opts.MinLevel = DefaultMinLevel
	}
	if opts.MaxLevel == 0 {
		opts.MaxLevel = DefaultMaxLevel
	}
	if opts.MinLevel > opts.MaxLevel {
		return nil, fmt.Errorf("light %q: min level %d above max level %d", name, opts.MinLevel, opts.MaxLevel)
	}
	level := opts.Level
	if level < opts.MinLevel {
		level = opts.MinLevel
	}
	if level > opts.MaxLevel {
		level = opts.MaxLevel
	}

	l := &Light{
		level:    level,
		minLevel: opts.MinLevel,
		maxLevel: opts.MaxLevel,
		dimmable: opts.Dimmable,
	}
	l.Device.init(name, location)
	l.Device.notify = func(mask ChangeMask) { l.changed(mask) }
	return l, nil
}

// OnChange installs the change callback, replacing any previous one.
func (l *Light) OnChange(fn ChangeFunc) {
	l.cbMu.Lock()
	l.onChange = fn
	l.cbMu.Unlock()
}

func (l *Light) changed(mask ChangeMask) {
	l.cbMu.RLock()
	fn := l.onChange
	l.cbMu.RUnlock()
	if fn != nil && mask != 0 {
		fn(l, mask)
	}
}

func (l *Light) Dimmable() bool {
	return l.dimmable
}

func (l *Light) IsOn() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.on
}

func (l *Light) Level() uint8 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Light) MinLevel() uint8 { return l.minLevel }
func (l *Light) MaxLevel() uint8 { return l.maxLevel }

func (l *Light) SetOnOff(on bool) {
	l.mu.Lock()
	changed := l.on != on
	l.on = on
	l.mu.Unlock()
	if changed {
		l.changed(ChangedOnOff)
	}
}

// Toggle flips the on/off state and returns the new value.
func (l *Light) Toggle() bool {
	l.mu.Lock()
	l.on = !l.on
	on := l.on
	l.mu.Unlock()
	l.changed(ChangedOnOff)
	return on
}

// SetLevel changes the brightness level. The level may change while the light
// is off.
func (l *Light) SetLevel(level uint8) error {
	if err := l.checkLevel(level); err != nil {
		return err
	}
	l.mu.Lock()
	changed := l.level != level
	l.level = level
	l.mu.Unlock()
	if changed {
		l.changed(ChangedLevel)
	}
	return nil
}

func (l *Light) checkLevel(level uint8) error {
	if !l.dimmable {
		return fmt.Errorf("light %q has no level control: %w", l.Name(), ErrLevelOutOfRange)
	}
	if level < l.minLevel || level > l.maxLevel {
		return fmt.Errorf("level %d not in [%d, %d]: %w", level, l.minLevel, l.maxLevel, ErrLevelOutOfRange)
	}
	return nil
}

// Update is a multi-field mutation; nil fields are left untouched.
type Update struct {
	On        *bool
	Level     *uint8
	Name      *string
	Location  *string
	Reachable *bool
}

// Apply performs all changes in u atomically and fires a single change
// notification carrying every changed bit.
func (l *Light) Apply(u Update) (ChangeMask, error) {
	if u.Level != nil {
		if err := l.checkLevel(*u.Level); err != nil {
			return 0, err
		}
	}

	var mask ChangeMask
	l.mu.Lock()
	if u.On != nil && l.on != *u.On {
		l.on = *u.On
		mask |= ChangedOnOff
	}
	if u.Level != nil && l.level != *u.Level {
		l.level = *u.Level
		mask |= ChangedLevel
	}
	if u.Name != nil && l.name != *u.Name {
		l.name = *u.Name
		mask |= ChangedName
	}
	if u.Location != nil && l.location != *u.Location {
		l.location = *u.Location
		mask |= ChangedLocation
	}
	if u.Reachable != nil && l.reachable != *u.Reachable {
		l.reachable = *u.Reachable
		mask |= ChangedReachable
	}
	l.mu.Unlock()

	l.changed(mask)
	return mask, nil
}

// State is a point-in-time copy of a light.
type State struct {
	EndpointID    datamodel.EndpointID `json:"endpoint_id"`
	ParentID      datamodel.EndpointID `json:"parent_endpoint_id"`
	Name          string               `json:"name"`
	Location      string               `json:"location"`
	UniqueID      string               `json:"unique_id"`
	Reachable     bool                 `json:"reachable"`
	ConfigVersion uint32               `json:"configuration_version"`
	On            bool                 `json:"on"`
	Dimmable      bool                 `json:"dimmable"`
	Level         uint8                `json:"level"`
	MinLevel      uint8                `json:"min_level"`
	MaxLevel      uint8                `json:"max_level"`
	TakenAt       time.Time            `json:"taken_at"`
}

// Snapshot returns a consistent copy of the light's fields.
func (l *Light) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return State{
		EndpointID:    l.endpointID,
		ParentID:      l.parentID,
		Name:          l.name,
		Location:      l.location,
		UniqueID:      l.uniqueID,
		Reachable:     l.reachable,
		ConfigVersion: l.configVersion,
		On:            l.on,
		Dimmable:      l.dimmable,
		Level:         l.level,
		MinLevel:      l.minLevel,
		MaxLevel:      l.maxLevel,
		TakenAt:       time.Now(),
	}
}

// Restore loads persisted on/off and level without firing notifications.
// Out-of-range levels are ignored.
func (l *Light) Restore(on bool, level uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = on
	if level >= l.minLevel && level <= l.maxLevel {
		l.level = level
	}
}
