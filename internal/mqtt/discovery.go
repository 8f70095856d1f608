//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"matter-light-bridge/internal/device"
)

const (
	haManufacturer = "matter-light-bridge"
	haModelOnOff   = "Bridged On/Off Light"
	haModelDimmer  = "Bridged Dimmable Light"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/light/matter_0123.../light/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers   []string `json:"identifiers"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	Model         string   `json:"model,omitempty"`
	Name          string   `json:"name"`
	SuggestedArea string   `json:"suggested_area,omitempty"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	PayloadOn           string   `json:"payload_on,omitempty"`
	PayloadOff          string   `json:"payload_off,omitempty"`
	StateOn             string   `json:"state_on,omitempty"`
	StateOff            string   `json:"state_off,omitempty"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	Schema              string   `json:"schema,omitempty"`
	Device              haDevice `json:"device"`
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(st device.State) string {
	if st.UniqueID != "" {
		return "matter_" + st.UniqueID
	}
	return fmt.Sprintf("matter_ep%d", st.EndpointID)
}

// deviceTopicName returns the topic name for a light: its sanitized name, or
// the endpoint number when the name has no usable characters.
func deviceTopicName(st device.State) string {
	name := strings.ToLower(strings.TrimSpace(st.Name))
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
	if strings.Trim(name, "_") == "" {
		return fmt.Sprintf("endpoint_%d", st.EndpointID)
	}
	return name
}

// buildDiscovery generates HA discovery messages for a light. Dimmable lights
// are announced as lights, on/off-only lights as switches.
func buildDiscovery(st device.State, prefix string) []discoveryMsg {
	if st.UniqueID == "" {
		return nil
	}

	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + deviceTopicName(st)
	cmdTopic := stateTopic + "/set"
	nodeID := deviceIdentifier(st)

	haDev := haDevice{
		Identifiers:   []string{nodeID},
		Manufacturer:  haManufacturer,
		Model:         haModelOnOff,
		Name:          st.Name,
		SuggestedArea: st.Location,
	}

	if st.Dimmable {
		haDev.Model = haModelDimmer
		return []discoveryMsg{{
			Topic: fmt.Sprintf("homeassistant/light/%s/light/config", nodeID),
			Payload: mustJSON(haDiscovery{
				Name:                st.Name,
				UniqueID:            nodeID + "_light",
				StateTopic:          stateTopic,
				CommandTopic:        cmdTopic,
				AvailabilityTopic:   avail,
				SupportedColorModes: []string{"brightness"},
				BrightnessScale:     int(device.DefaultMaxLevel),
				Schema:              "json",
				Device:              haDev,
			}),
		}}
	}

	return []discoveryMsg{{
		Topic: fmt.Sprintf("homeassistant/switch/%s/switch/config", nodeID),
		Payload: mustJSON(haDiscovery{
			Name:              st.Name,
			UniqueID:          nodeID + "_switch",
			StateTopic:        stateTopic,
			CommandTopic:      cmdTopic,
			AvailabilityTopic: avail,
			ValueTemplate:     "{{ value_json.state }}",
			PayloadOn:         `{"state":"ON"}`,
			PayloadOff:        `{"state":"OFF"}`,
			StateOn:           "ON",
			StateOff:          "OFF",
			Device:            haDev,
		}),
	}}
}

// buildRemoveDiscovery generates empty retained messages to remove a light from HA.
func buildRemoveDiscovery(nodeID string) []discoveryMsg {
	return []discoveryMsg{
		{Topic: fmt.Sprintf("homeassistant/light/%s/light/config", nodeID)},
		{Topic: fmt.Sprintf("homeassistant/switch/%s/switch/config", nodeID)},
	}
}
