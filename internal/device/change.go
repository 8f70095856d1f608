package device

import "strings"

// ChangeMask describes which fields changed in a mutation.
type ChangeMask uint32

const (
	ChangedReachable ChangeMask = 1 << iota
	ChangedLocation
	ChangedName
	ChangedOnOff
	ChangedLevel
)

var maskNames = []struct {
	bit  ChangeMask
	name string
}{
	{ChangedReachable, "reachable"},
	{ChangedLocation, "location"},
	{ChangedName, "name"},
	{ChangedOnOff, "on_off"},
	{ChangedLevel, "level"},
}

// Has reports whether every bit of other is set in m.
func (m ChangeMask) Has(other ChangeMask) bool {
	return other != 0 && m&other == other
}

// Names returns the names of the set bits in a stable order.
func (m ChangeMask) Names() []string {
	var names []string
	for _, n := range maskNames {
		if m&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return names
}

func (m ChangeMask) String() string {
	if m == 0 {
		return "none"
	}
	return strings.Join(m.Names(), "|")
}
