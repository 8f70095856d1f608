//go:build no_automation

package automation

import (
	"context"
	"errors"
	"log/slog"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/host"
)

var errDisabled = errors.New("automation disabled")

var (
	ErrScriptNotFound  = errDisabled
	ErrInvalidScriptID = errDisabled
)

type Lights interface {
	Lights() []*device.Light
	Light(ep datamodel.EndpointID) (*device.Light, bool)
	FindLight(key string) (*device.Light, bool)
}

type AttributeWriter interface {
	WriteAttribute(ctx context.Context, path datamodel.AttributePath, value any) (datamodel.Status, error)
}

type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// Manager is a no-op when automation is compiled out.
type Manager struct{}

func NewManager(_ string) (*Manager, error) { return nil, nil }
func (m *Manager) Dir() string { return "" }
func (m *Manager) List() ([]*Script, error) { return nil, nil }
func (m *Manager) Get(_ string) (*Script, error) { return nil, errDisabled }
func (m *Manager) Save(s *Script) (*Script, error) { return nil, errDisabled }
func (m *Manager) SetEnabled(_ string, _ bool) (*Script, error) { return nil, errDisabled }
func (m *Manager) Delete(_ string) error { return errDisabled }

// Engine is a no-op when automation is compiled out.
type Engine struct{}

func NewEngine(_ Lights, _ AttributeWriter, _ *host.EventBus, _ *Manager, _ *slog.Logger) *Engine {
	return &Engine{}
}

func (e *Engine) Start() {}
func (e *Engine) Stop() {}
func (e *Engine) Running() []string { return nil }
func (e *Engine) ReloadScript(_ string) error { return nil }
func (e *Engine) StopScript(_ string) {}

func (e *Engine) RunScript(_ string) *RunResult {
	return &RunResult{Error: errDisabled.Error()}
}

func (e *Engine) RunLuaCode(_ string) *RunResult {
	return &RunResult{Error: errDisabled.Error()}
}
