//go:build no_automation

package main

import (
	"log/slog"

	"matter-light-bridge/internal/bridge"
	"matter-light-bridge/internal/host"
	"matter-light-bridge/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *bridge.Bridge, _ *host.Host, _ *host.EventBus, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
