//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/host"
)

const (
	runTimeout   = 5 * time.Second
	writeTimeout = 5 * time.Second
	commandQueue = 64
)

// Lights resolves script targets to bridged lights.
type Lights interface {
	Lights() []*device.Light
	Light(ep datamodel.EndpointID) (*device.Light, bool)
	FindLight(key string) (*device.Light, bool)
}

// AttributeWriter performs framework-path attribute writes, so script
// changes are mirrored to the cloud exactly like controller writes.
type AttributeWriter interface {
	WriteAttribute(ctx context.Context, path datamodel.AttributePath, value any) (datamodel.Status, error)
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// luaEventHandler is a callback registered with light.on.
type luaEventHandler struct {
	eventType string
	endpoint  datamodel.EndpointID // InvalidEndpointID matches any endpoint
	attribute string               // empty matches any attribute
	fn        *lua.LFunction
}

// scriptVM owns one Lua state. Only the goroutine draining commands touches it.
type scriptVM struct {
	state    *lua.LState
	commands chan func(*lua.LState)
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers

	// logf overrides log output, used by RunLuaCode to capture lines.
	logf func(msg string)
}

// Engine runs enabled scripts and feeds them host events.
type Engine struct {
	lights  Lights
	writer  AttributeWriter
	events  *host.EventBus
	manager *Manager
	logger  *slog.Logger

	mu    sync.Mutex
	vms   map[string]*scriptVM
	unsub func()
}

// NewEngine creates an automation engine.
func NewEngine(lights Lights, writer AttributeWriter, events *host.EventBus, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		lights:  lights,
		writer:  writer,
		events:  events,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to host events and loads every enabled script.
func (e *Engine) Start() {
	if e.events != nil {
		e.unsub = e.events.OnAll(e.dispatchEvent)
	}

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	running := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "scripts", running)
}

// Stop cancels every VM and unsubscribes from the event bus.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}

	e.mu.Lock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.mu.Unlock()

	e.logger.Info("automation engine stopped")
}

// Running returns the IDs of scripts with a live VM.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	return ids
}

// ReloadScript restarts a script from disk. Disabled scripts are only stopped.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript executes a stored script once in a throwaway VM.
func (e *Engine) RunScript(id string) *RunResult {
	start := time.Now()
	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{Error: "script not found: " + err.Error(), Duration: time.Since(start).String()}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes code in a throwaway VM with a 5s budget. Handlers the
// code registers are invoked once with a synthetic event so their actions run.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var (
		logMu sync.Mutex
		logs  []string
	)
	vm := e.newVM(ctx, cancel)
	defer vm.state.Close()
	vm.logf = func(msg string) {
		logMu.Lock()
		logs = append(logs, msg)
		logMu.Unlock()
	}
	vm.state.SetContext(ctx)

	result := func(err error) *RunResult {
		logMu.Lock()
		defer logMu.Unlock()
		r := &RunResult{OK: err == nil, Logs: append([]string(nil), logs...), Duration: time.Since(start).String()}
		if err != nil {
			r.Error = luaErrorString(err)
		}
		return r
	}

	if err := vm.state.DoString(code); err != nil {
		e.logger.Warn("run script failed", "err", err)
		return result(err)
	}

	for _, h := range vm.snapshotHandlers() {
		ev := vm.state.NewTable()
		ev.RawSetString("type", lua.LString(h.eventType))
		if h.endpoint != datamodel.InvalidEndpointID {
			ev.RawSetString("endpoint", lua.LNumber(h.endpoint))
		}
		if h.attribute != "" {
			ev.RawSetString("attribute_name", lua.LString(h.attribute))
		}
		ev.RawSetString("value", lua.LTrue)
		if err := vm.state.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, ev); err != nil {
			e.logger.Warn("run handler failed", "event", h.eventType, "err", err)
			return result(err)
		}
	}

	return result(nil)
}

func luaErrorString(err error) string {
	s := err.Error()
	if strings.Contains(s, "context deadline exceeded") {
		return fmt.Sprintf("timeout (%s)", runTimeout)
	}
	return s
}

// newVM creates a sandboxed Lua state with the light and system modules.
func (e *Engine) newVM(ctx context.Context, cancel context.CancelFunc) *scriptVM {
	L := lua.NewState()
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}

	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), commandQueue),
		ctx:      ctx,
		cancel:   cancel,
	}
	registerLightModule(L, vm, e)
	registerSystemModule(L, vm, e)
	return vm
}

func (vm *scriptVM) snapshotHandlers() []luaEventHandler {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]luaEventHandler(nil), vm.handlers...)
}

func (vm *scriptVM) log(e *Engine, level slog.Level, msg string) {
	if vm.logf != nil {
		if level == slog.LevelInfo {
			vm.logf(msg)
		} else {
			vm.logf("[" + strings.ToLower(level.String()) + "] " + msg)
		}
	}
	e.logger.Log(context.Background(), level, "script log", "msg", msg)
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	vm := e.newVM(ctx, cancel)

	if err := vm.state.DoString(s.LuaCode); err != nil {
		cancel()
		vm.state.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		old.cancel()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer vm.state.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(vm.state)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent queues matching handlers on their VMs. It never blocks, so
// it is safe to call from the host dispatch context.
func (e *Engine) dispatchEvent(event host.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		for _, h := range vm.snapshotHandlers() {
			if !matchesHandler(h, event) {
				continue
			}
			fn := h.fn
			select {
			case <-vm.ctx.Done():
			case vm.commands <- func(L *lua.LState) { e.callHandler(L, fn, event) }:
			default:
				e.logger.Warn("script command queue full, dropping event", "type", event.Type)
			}
		}
	}
}

func matchesHandler(h luaEventHandler, event host.Event) bool {
	if h.eventType != event.Type {
		return false
	}

	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return h.endpoint == datamodel.InvalidEndpointID && h.attribute == ""
	}

	if h.endpoint != datamodel.InvalidEndpointID {
		if ep, _ := data["endpoint"].(uint16); datamodel.EndpointID(ep) != h.endpoint {
			return false
		}
	}

	if h.attribute != "" {
		if name, ok := data["attribute_name"].(string); ok {
			return name == h.attribute
		}
		if changed, ok := data["changed"].([]string); ok {
			for _, c := range changed {
				if c == h.attribute {
					return true
				}
			}
		}
		return false
	}

	return true
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, event host.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	ev := L.NewTable()
	ev.RawSetString("type", lua.LString(event.Type))
	if data, ok := event.Data.(map[string]interface{}); ok {
		for k, v := range data {
			ev.RawSetString(k, goToLua(L, v))
		}
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, ev); err != nil {
		e.logger.Error("lua handler error", "type", event.Type, "err", err)
	}
}

// goToLua converts event payload values into Lua values.
func goToLua(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case []string:
		t := L.NewTable()
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	case []uint16:
		t := L.NewTable()
		for i, n := range val {
			t.RawSetInt(i+1, lua.LNumber(n))
		}
		return t
	case device.State:
		return stateTable(L, val)
	case map[string]interface{}:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []interface{}:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
