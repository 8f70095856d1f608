package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"matter-light-bridge/internal/cloud"
	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/history"
)

// LightConfig describes one bridged light.
type LightConfig struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	Dimmable bool   `yaml:"dimmable"`
	MinLevel uint8  `yaml:"min_level"`
	MaxLevel uint8  `yaml:"max_level"`
	Level    uint8  `yaml:"level"`
}

type Config struct {
	Bridge struct {
		AggregatorEndpoint uint16 `yaml:"aggregator_endpoint"`
		DynamicCapacity    int    `yaml:"dynamic_capacity"`
		QueueSize          int    `yaml:"queue_size"`
	} `yaml:"bridge"`
	Lights []LightConfig `yaml:"lights"`
	Cloud  cloud.Config  `yaml:"cloud"`
	Web    struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Console struct {
		Enabled bool   `yaml:"enabled"`
		Port    string `yaml:"port"`
		Baud    int    `yaml:"baud"`
	} `yaml:"console"`
	History history.Config `yaml:"history"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	if c.Bridge.AggregatorEndpoint == 0 || c.Bridge.AggregatorEndpoint == uint16(datamodel.InvalidEndpointID) {
		return fmt.Errorf("bridge.aggregator_endpoint must be 1-65534, got %d", c.Bridge.AggregatorEndpoint)
	}
	if c.Bridge.DynamicCapacity < 1 {
		return fmt.Errorf("bridge.dynamic_capacity must be positive, got %d", c.Bridge.DynamicCapacity)
	}
	if len(c.Lights) > c.Bridge.DynamicCapacity {
		return fmt.Errorf("%d lights configured but bridge.dynamic_capacity is %d", len(c.Lights), c.Bridge.DynamicCapacity)
	}
	seen := make(map[string]bool, len(c.Lights))
	for i, l := range c.Lights {
		if l.Name == "" {
			return fmt.Errorf("lights[%d].name is required", i)
		}
		if len(l.Name) > datamodel.CharStringSize-1 {
			return fmt.Errorf("lights[%d].name longer than %d bytes", i, datamodel.CharStringSize-1)
		}
		if seen[l.Name] {
			return fmt.Errorf("lights[%d].name %q is not unique", i, l.Name)
		}
		seen[l.Name] = true
		if l.MinLevel != 0 && l.MaxLevel != 0 && l.MinLevel > l.MaxLevel {
			return fmt.Errorf("lights[%d]: min_level %d above max_level %d", i, l.MinLevel, l.MaxLevel)
		}
	}
	if err := c.Cloud.Validate(); err != nil {
		return err
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.Console.Enabled && c.Console.Port == "" {
		return fmt.Errorf("console.port is required when the console is enabled")
	}
	if c.History.Enabled && (c.History.URL == "" || c.History.Bucket == "") {
		return fmt.Errorf("history.url and history.bucket are required when history is enabled")
	}
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Bridge.AggregatorEndpoint == 0 {
		cfg.Bridge.AggregatorEndpoint = 1
	}
	if cfg.Bridge.DynamicCapacity == 0 {
		cfg.Bridge.DynamicCapacity = 16
	}
	if cfg.Bridge.QueueSize == 0 {
		cfg.Bridge.QueueSize = 256
	}
	if len(cfg.Lights) == 0 {
		cfg.Lights = []LightConfig{{Name: "Light 1", Location: "Office", Dimmable: true}}
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "light-bridge.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "matter-bridge"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	cfg.Cloud = cloud.ConfigFromEnv(cfg.Cloud)
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
