//go:build !no_automation

package automation

import (
	"context"
	"log/slog"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
	"matter-light-bridge/internal/device"
)

const maxHandlersPerScript = 100

// registerLightModule registers the `light` global table in a Lua state.
func registerLightModule(L *lua.LState, vm *scriptVM, e *Engine) {
	fns := map[string]lua.LGFunction{
		"on":        func(L *lua.LState) int { return lightOn(L, vm, e) },
		"turn_on":   func(L *lua.LState) int { return lightSetOnOff(L, e, true) },
		"turn_off":  func(L *lua.LState) int { return lightSetOnOff(L, e, false) },
		"toggle":    func(L *lua.LState) int { return lightToggle(L, e) },
		"set_level": func(L *lua.LState) int { return lightSetLevel(L, e) },
		"get":       func(L *lua.LState) int { return lightGet(L, e) },
		"devices":   func(L *lua.LState) int { return lightDevices(L, e) },
		"after":     func(L *lua.LState) int { return lightAfter(L, vm, e) },
		"log": func(L *lua.LState) int {
			vm.log(e, slog.LevelInfo, L.CheckString(1))
			return 0
		},
	}
	L.SetGlobal("light", L.SetFuncs(L.NewTable(), fns))
}

// light.on(event_type, filter, callback)
// filter may hold `endpoint` (number or light name) and `attribute`.
func lightOn(L *lua.LState, vm *scriptVM, e *Engine) int {
	h := luaEventHandler{
		eventType: L.CheckString(1),
		endpoint:  datamodel.InvalidEndpointID,
		fn:        L.CheckFunction(3),
	}
	filter := L.CheckTable(2)

	if v := filter.RawGetString("endpoint"); v != lua.LNil {
		l := resolveLight(e, v)
		if l == nil {
			L.ArgError(2, "unknown light: "+v.String())
			return 0
		}
		h.endpoint = l.EndpointID()
	}
	if v := filter.RawGetString("attribute"); v != lua.LNil {
		h.attribute = v.String()
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// light.turn_on(target) / light.turn_off(target) -> ok, status
func lightSetOnOff(L *lua.LState, e *Engine, on bool) int {
	l := checkLight(L, e)
	if l == nil {
		return pushStatus(L, datamodel.StatusUnsupportedEndpoint)
	}
	return pushStatus(L, writeAttribute(e, l, clusters.OnOffID, clusters.AttrOnOff, on))
}

// light.toggle(target) -> ok, status
func lightToggle(L *lua.LState, e *Engine) int {
	l := checkLight(L, e)
	if l == nil {
		return pushStatus(L, datamodel.StatusUnsupportedEndpoint)
	}
	return pushStatus(L, writeAttribute(e, l, clusters.OnOffID, clusters.AttrOnOff, !l.IsOn()))
}

// light.set_level(target, level) -> ok, status
func lightSetLevel(L *lua.LState, e *Engine) int {
	l := checkLight(L, e)
	level := float64(L.CheckNumber(2))
	if l == nil {
		return pushStatus(L, datamodel.StatusUnsupportedEndpoint)
	}
	if level < 0 || level > math.MaxUint8 {
		return pushStatus(L, datamodel.StatusConstraintError)
	}
	return pushStatus(L, writeAttribute(e, l, clusters.LevelControlID, clusters.AttrCurrentLevel, uint8(level)))
}

// light.get(target) -> table or nil
func lightGet(L *lua.LState, e *Engine) int {
	l := checkLight(L, e)
	if l == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(stateTable(L, l.Snapshot()))
	return 1
}

// light.devices() -> array of state tables
func lightDevices(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for i, l := range e.lights.Lights() {
		tbl.RawSetInt(i+1, stateTable(L, l.Snapshot()))
	}
	L.Push(tbl)
	return 1
}

// light.after(seconds, callback)
func lightAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	delay := time.Duration(float64(L.CheckNumber(1)) * float64(time.Second))
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		case <-vm.ctx.Done():
		default:
			e.logger.Warn("after: command queue full")
		}
	}()
	return 0
}

func checkLight(L *lua.LState, e *Engine) *device.Light {
	target := L.CheckAny(1)
	l := resolveLight(e, target)
	if l == nil {
		e.logger.Warn("light not found", "target", target.String())
	}
	return l
}

// resolveLight accepts an endpoint number, a light name or a unique ID.
func resolveLight(e *Engine, target lua.LValue) *device.Light {
	switch v := target.(type) {
	case lua.LNumber:
		if v < 0 || v > math.MaxUint16 {
			return nil
		}
		l, _ := e.lights.Light(datamodel.EndpointID(v))
		return l
	case lua.LString:
		l, _ := e.lights.FindLight(string(v))
		return l
	}
	return nil
}

func writeAttribute(e *Engine, l *device.Light, cluster datamodel.ClusterID, attr datamodel.AttributeID, value any) datamodel.Status {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	path := datamodel.AttributePath{Endpoint: l.EndpointID(), Cluster: cluster, Attribute: attr}
	status, err := e.writer.WriteAttribute(ctx, path, value)
	if err != nil || !status.OK() {
		e.logger.Warn("script write failed", "path", path.String(), "status", status, "err", err)
	}
	return status
}

func pushStatus(L *lua.LState, status datamodel.Status) int {
	L.Push(lua.LBool(status.OK()))
	L.Push(lua.LString(status.String()))
	return 2
}

func stateTable(L *lua.LState, s device.State) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("endpoint", lua.LNumber(s.EndpointID))
	t.RawSetString("name", lua.LString(s.Name))
	t.RawSetString("location", lua.LString(s.Location))
	t.RawSetString("unique_id", lua.LString(s.UniqueID))
	t.RawSetString("reachable", lua.LBool(s.Reachable))
	t.RawSetString("on", lua.LBool(s.On))
	t.RawSetString("dimmable", lua.LBool(s.Dimmable))
	if s.Dimmable {
		t.RawSetString("level", lua.LNumber(s.Level))
	}
	return t
}
