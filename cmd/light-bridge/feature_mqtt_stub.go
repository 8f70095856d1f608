//go:build no_mqtt

package main

import (
	"log/slog"

	"matter-light-bridge/internal/bridge"
	"matter-light-bridge/internal/host"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *bridge.Bridge, _ *host.Host, _ *host.EventBus, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
