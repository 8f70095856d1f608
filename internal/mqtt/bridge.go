//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/host"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

// Lights looks up bridged lights.
type Lights interface {
	Lights() []*device.Light
	Light(ep datamodel.EndpointID) (*device.Light, bool)
}

// AttributeWriter performs framework-path attribute writes.
type AttributeWriter interface {
	WriteAttribute(ctx context.Context, path datamodel.AttributePath, value any) (datamodel.Status, error)
}

// announcement remembers what was published for an endpoint so it can be
// withdrawn after the light is gone.
type announcement struct {
	nodeID string
	topic  string
}

// Bridge mirrors bridged light state to MQTT with HA autodiscovery.
type Bridge struct {
	client pahomqtt.Client
	lights Lights
	writer AttributeWriter
	events *host.EventBus
	prefix string
	logger *slog.Logger
	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	announced map[datamodel.EndpointID]announcement
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(lights Lights, writer AttributeWriter, events *host.EventBus, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(lights, writer, events, cfg.TopicPrefix, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "matter-light-bridge"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.prefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.announceAll()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(lights Lights, writer AttributeWriter, events *host.EventBus, prefix string, logger *slog.Logger) *Bridge {
	if prefix == "" {
		prefix = "matter-bridge"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		lights:    lights,
		writer:    writer,
		events:    events,
		prefix:    prefix,
		logger:    logger.With("component", "mqtt"),
		ctx:       ctx,
		cancel:    cancel,
		announced: make(map[datamodel.EndpointID]announcement),
	}
}

// Start subscribes to host events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.events.OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event host.Event) {
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return
	}
	ep, ok := data["endpoint"].(uint16)
	if !ok {
		return
	}
	id := datamodel.EndpointID(ep)

	switch event.Type {
	case host.EventAttributeReport:
		b.publishState(id)
	case host.EventEndpointAdded:
		// The registrar still holds the registry while this event fires.
		go b.announce(id)
	case host.EventEndpointRemoved:
		b.withdraw(id)
	case host.EventDeviceChanged:
		if changed, _ := data["changed"].([]string); containsString(changed, "name") {
			go b.announce(id)
		}
	}
}

func (b *Bridge) announceAll() {
	for _, l := range b.lights.Lights() {
		b.announceLight(l)
	}
}

func (b *Bridge) announce(ep datamodel.EndpointID) {
	if l, ok := b.lights.Light(ep); ok {
		b.announceLight(l)
	}
}

// announceLight publishes discovery, subscribes to the command topic and
// publishes the current state. A renamed light is withdrawn first.
func (b *Bridge) announceLight(l *device.Light) {
	st := l.Snapshot()
	if st.EndpointID == datamodel.InvalidEndpointID {
		return
	}
	a := announcement{nodeID: deviceIdentifier(st), topic: deviceTopicName(st)}

	b.mu.Lock()
	prev, had := b.announced[st.EndpointID]
	b.announced[st.EndpointID] = a
	b.mu.Unlock()

	if had && prev.topic != a.topic {
		b.client.Unsubscribe(b.prefix + "/" + prev.topic + "/set")
	}
	for _, msg := range buildDiscovery(st, b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}

	ep := st.EndpointID
	b.client.Subscribe(b.prefix+"/"+a.topic+"/set", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(ep, msg.Payload())
	})
	b.publish(b.prefix+"/"+a.topic, stateJSON(st), true)
	b.logger.Info("published HA discovery", "endpoint", ep, "name", st.Name, "topic", a.topic)
}

func (b *Bridge) withdraw(ep datamodel.EndpointID) {
	b.mu.Lock()
	a, ok := b.announced[ep]
	delete(b.announced, ep)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.client.Unsubscribe(b.prefix + "/" + a.topic + "/set")
	for _, msg := range buildRemoveDiscovery(a.nodeID) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.publish(b.prefix+"/"+a.topic, nil, true)
}

func (b *Bridge) publishState(ep datamodel.EndpointID) {
	l, ok := b.lights.Light(ep)
	if !ok {
		return
	}
	st := l.Snapshot()
	b.publish(b.prefix+"/"+deviceTopicName(st), stateJSON(st), true)
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

// command is a decoded /set payload.
type command struct {
	State      string   `json:"state"`
	Brightness *float64 `json:"brightness"`
}

func parseCommand(payload []byte) (command, error) {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, err
	}
	cmd.State = strings.ToUpper(cmd.State)
	switch cmd.State {
	case "", "ON", "OFF", "TOGGLE":
	default:
		return cmd, fmt.Errorf("unknown state %q", cmd.State)
	}
	if cmd.Brightness != nil && (*cmd.Brightness < 0 || *cmd.Brightness > 255) {
		return cmd, fmt.Errorf("brightness %v out of range", *cmd.Brightness)
	}
	return cmd, nil
}

// handleCommand applies a /set payload through the framework write path so it
// is treated exactly like a controller write.
func (b *Bridge) handleCommand(ep datamodel.EndpointID, payload []byte) {
	l, ok := b.lights.Light(ep)
	if !ok {
		b.logger.Warn("command for unknown endpoint", "endpoint", ep)
		return
	}
	cmd, err := parseCommand(payload)
	if err != nil {
		b.logger.Warn("invalid command", "endpoint", ep, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()

	if cmd.State != "" {
		on := cmd.State == "ON"
		if cmd.State == "TOGGLE" {
			on = !l.IsOn()
		}
		b.write(ctx, datamodel.AttributePath{Endpoint: ep, Cluster: clusters.OnOffID, Attribute: clusters.AttrOnOff}, on)
	}
	if cmd.Brightness != nil {
		b.write(ctx, datamodel.AttributePath{Endpoint: ep, Cluster: clusters.LevelControlID, Attribute: clusters.AttrCurrentLevel},
			uint8(*cmd.Brightness))
	}
}

func (b *Bridge) write(ctx context.Context, path datamodel.AttributePath, value any) {
	status, err := b.writer.WriteAttribute(ctx, path, value)
	if err != nil || !status.OK() {
		b.logger.Warn("command write failed", "path", path.String(), "value", value, "status", status, "err", err)
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// stateJSON renders the retained state payload for a light.
func stateJSON(st device.State) []byte {
	state := map[string]any{
		"state":     onOffString(st.On),
		"reachable": st.Reachable,
		"location":  st.Location,
	}
	if st.Dimmable {
		state["brightness"] = st.Level
	}
	return mustJSON(state)
}

func onOffString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
