//go:build !no_automation

package automation

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/host"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeLights struct {
	lights []*device.Light
}

func (f *fakeLights) Lights() []*device.Light { return f.lights }

func (f *fakeLights) Light(ep datamodel.EndpointID) (*device.Light, bool) {
	for _, l := range f.lights {
		if l.EndpointID() == ep {
			return l, true
		}
	}
	return nil, false
}

func (f *fakeLights) FindLight(key string) (*device.Light, bool) {
	for _, l := range f.lights {
		if l.Name() == key || l.UniqueID() == key {
			return l, true
		}
	}
	return nil, false
}

type write struct {
	path  datamodel.AttributePath
	value any
}

// fakeWriter applies writes to the light directly and records them.
type fakeWriter struct {
	mu     sync.Mutex
	lights *fakeLights
	writes []write
	notify chan write
}

func (w *fakeWriter) WriteAttribute(_ context.Context, path datamodel.AttributePath, value any) (datamodel.Status, error) {
	l, ok := w.lights.Light(path.Endpoint)
	if !ok {
		return datamodel.StatusUnsupportedEndpoint, nil
	}
	switch path.Cluster {
	case clusters.OnOffID:
		l.SetOnOff(value.(bool))
	case clusters.LevelControlID:
		if err := l.SetLevel(value.(uint8)); err != nil {
			return datamodel.StatusConstraintError, nil
		}
	}
	w.mu.Lock()
	w.writes = append(w.writes, write{path, value})
	w.mu.Unlock()
	if w.notify != nil {
		w.notify <- write{path, value}
	}
	return datamodel.StatusSuccess, nil
}

func (w *fakeWriter) recorded() []write {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]write(nil), w.writes...)
}

func newTestLight(t *testing.T, name string, ep datamodel.EndpointID, dimmable bool) *device.Light {
	t.Helper()
	l, err := device.NewLight(name, "Office", device.LightOptions{Dimmable: dimmable, Level: 100})
	if err != nil {
		t.Fatal(err)
	}
	l.SetEndpoint(ep, 1)
	return l
}

func newTestEngine(t *testing.T) (*Engine, *fakeLights, *fakeWriter) {
	t.Helper()
	lights := &fakeLights{lights: []*device.Light{
		newTestLight(t, "Light 1", 3, true),
		newTestLight(t, "Porch", 4, false),
	}}
	writer := &fakeWriter{lights: lights}
	return NewEngine(lights, writer, host.NewEventBus(testLogger()), newTestManager(t), testLogger()), lights, writer
}

func TestGoToLua(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		val  interface{}
		want lua.LValueType
	}{
		{"nil", nil, lua.LTNil},
		{"bool", true, lua.LTBool},
		{"string", "hello", lua.LTString},
		{"int", 42, lua.LTNumber},
		{"float64", 3.14, lua.LTNumber},
		{"uint8", uint8(254), lua.LTNumber},
		{"uint16", uint16(3), lua.LTNumber},
		{"uint32", uint32(100000), lua.LTNumber},
		{"strings", []string{"name", "level"}, lua.LTTable},
		{"state", device.State{Name: "Light 1"}, lua.LTTable},
		{"map", map[string]interface{}{"a": 1}, lua.LTTable},
		{"slice", []interface{}{1, 2, 3}, lua.LTTable},
		{"unknown", struct{}{}, lua.LTString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goToLua(L, tt.val).Type(); got != tt.want {
				t.Errorf("goToLua(%v) type = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestGoToLuaChangedNames(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tbl := goToLua(L, []string{"on_off", "level"}).(*lua.LTable)
	if tbl.Len() != 2 {
		t.Fatalf("len = %d, want 2", tbl.Len())
	}
	if v := tbl.RawGetInt(2); v.String() != "level" {
		t.Errorf("[2] = %v, want level", v)
	}
}

func TestMatchesHandler(t *testing.T) {
	anyEP := datamodel.InvalidEndpointID
	report := map[string]interface{}{"endpoint": uint16(3), "attribute_name": "OnOff"}
	changed := map[string]interface{}{"endpoint": uint16(3), "changed": []string{"name", "reachable"}}

	tests := []struct {
		name    string
		handler luaEventHandler
		evType  string
		data    interface{}
		want    bool
	}{
		{"exact match", luaEventHandler{eventType: host.EventAttributeReport, endpoint: 3, attribute: "OnOff"}, host.EventAttributeReport, report, true},
		{"wrong type", luaEventHandler{eventType: host.EventDeviceChanged, endpoint: anyEP}, host.EventAttributeReport, report, false},
		{"endpoint mismatch", luaEventHandler{eventType: host.EventAttributeReport, endpoint: 4}, host.EventAttributeReport, report, false},
		{"attribute mismatch", luaEventHandler{eventType: host.EventAttributeReport, endpoint: anyEP, attribute: "CurrentLevel"}, host.EventAttributeReport, report, false},
		{"no filters", luaEventHandler{eventType: host.EventAttributeReport, endpoint: anyEP}, host.EventAttributeReport, report, true},
		{"changed contains", luaEventHandler{eventType: host.EventDeviceChanged, endpoint: anyEP, attribute: "reachable"}, host.EventDeviceChanged, changed, true},
		{"changed missing", luaEventHandler{eventType: host.EventDeviceChanged, endpoint: anyEP, attribute: "location"}, host.EventDeviceChanged, changed, false},
		{"non-map data with filter", luaEventHandler{eventType: host.EventCloudSync, endpoint: 3}, host.EventCloudSync, "x", false},
		{"non-map data without filter", luaEventHandler{eventType: host.EventCloudSync, endpoint: anyEP}, host.EventCloudSync, "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesHandler(tt.handler, host.Event{Type: tt.evType, Data: tt.data})
			if got != tt.want {
				t.Errorf("matchesHandler() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunLuaCodeTurnsLightOn(t *testing.T) {
	e, lights, writer := newTestEngine(t)

	res := e.RunLuaCode(`
		local ok, status = light.turn_on("Light 1")
		light.log("turn_on " .. tostring(ok) .. " " .. status)
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if !lights.lights[0].IsOn() {
		t.Error("light 1 is off, want on")
	}
	if len(res.Logs) != 1 || res.Logs[0] != "turn_on true SUCCESS" {
		t.Errorf("logs = %v", res.Logs)
	}
	w := writer.recorded()
	if len(w) != 1 || w[0].path.Cluster != clusters.OnOffID || w[0].value != true {
		t.Errorf("writes = %+v", w)
	}
}

func TestRunLuaCodeByEndpointNumber(t *testing.T) {
	e, lights, _ := newTestEngine(t)

	res := e.RunLuaCode(`light.toggle(4)`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if !lights.lights[1].IsOn() {
		t.Error("porch is off after toggle, want on")
	}
}

func TestRunLuaCodeSetLevel(t *testing.T) {
	e, lights, _ := newTestEngine(t)

	res := e.RunLuaCode(`
		local ok = light.set_level(3, 42)
		local bad, status = light.set_level(3, 300)
		light.log(tostring(ok) .. " " .. tostring(bad) .. " " .. status)
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if got := lights.lights[0].Level(); got != 42 {
		t.Errorf("level = %d, want 42", got)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "true false CONSTRAINT_ERROR" {
		t.Errorf("logs = %v", res.Logs)
	}
}

func TestRunLuaCodeGetAndDevices(t *testing.T) {
	e, _, _ := newTestEngine(t)

	res := e.RunLuaCode(`
		local l = light.get("Porch")
		light.log(l.name .. " " .. l.location .. " " .. tostring(l.dimmable) .. " " .. tostring(l.level))
		light.log(tostring(#light.devices()))
		light.log(tostring(light.get("missing")))
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	want := []string{"Porch Office false nil", "2", "nil"}
	if strings.Join(res.Logs, "|") != strings.Join(want, "|") {
		t.Errorf("logs = %v, want %v", res.Logs, want)
	}
}

func TestRunLuaCodeInvokesHandlers(t *testing.T) {
	e, lights, _ := newTestEngine(t)

	res := e.RunLuaCode(`
		light.on("attribute_report", {endpoint = "Light 1", attribute = "OnOff"}, function(ev)
			if ev.value == true then
				light.turn_on(ev.endpoint)
			end
		end)
	`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if !lights.lights[0].IsOn() {
		t.Error("handler did not run")
	}
}

func TestRunLuaCodeUnknownFilterLight(t *testing.T) {
	e, _, _ := newTestEngine(t)

	res := e.RunLuaCode(`light.on("attribute_report", {endpoint = "Garage"}, function(ev) end)`)
	if res.OK {
		t.Fatal("expected error for unknown light")
	}
	if !strings.Contains(res.Error, "unknown light") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRunLuaCodeSandbox(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for _, code := range []string{`os.exit(1)`, `io.write("x")`, `require("x")`} {
		if res := e.RunLuaCode(code); res.OK {
			t.Errorf("%s succeeded, want sandbox error", code)
		}
	}
}

func TestRunLuaCodeTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	e, _, _ := newTestEngine(t)

	res := e.RunLuaCode(`while true do end`)
	if res.OK {
		t.Fatal("infinite loop succeeded")
	}
	if !strings.Contains(res.Error, "timeout") {
		t.Errorf("error = %q, want timeout", res.Error)
	}
}

func TestEngineDispatchesEvents(t *testing.T) {
	e, lights, writer := newTestEngine(t)
	writer.notify = make(chan write, 4)

	_, err := e.manager.Save(&Script{
		Meta: ScriptMeta{Name: "Follow", Enabled: true},
		LuaCode: `light.on("device_changed", {endpoint = 4, attribute = "reachable"}, function(ev)
			if ev.state.reachable then light.turn_on("Light 1") end
		end)`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.manager.Save(&Script{Meta: ScriptMeta{Name: "Off", Enabled: false}, LuaCode: `light.turn_off(3)`}); err != nil {
		t.Fatal(err)
	}

	e.Start()
	defer e.Stop()

	if got := e.Running(); len(got) != 1 || got[0] != "follow" {
		t.Fatalf("running = %v, want [follow]", got)
	}

	porch := lights.lights[1]
	porch.SetReachable(true)
	e.events.Emit(host.Event{Type: host.EventDeviceChanged, Data: map[string]interface{}{
		"endpoint": uint16(4),
		"changed":  []string{"reachable"},
		"state":    porch.Snapshot(),
	}})

	select {
	case w := <-writer.notify:
		if w.path.Endpoint != 3 || w.value != true {
			t.Errorf("write = %+v", w)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not write")
	}
}

func TestEngineReloadAndStop(t *testing.T) {
	e, _, _ := newTestEngine(t)

	s, err := e.manager.Save(&Script{Meta: ScriptMeta{Name: "Idle", Enabled: true}, LuaCode: `light.log("hi")`})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadScript(s.ID); err != nil {
		t.Fatal(err)
	}
	if len(e.Running()) != 1 {
		t.Fatalf("running = %v", e.Running())
	}

	if _, err := e.manager.SetEnabled(s.ID, false); err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadScript(s.ID); err != nil {
		t.Fatal(err)
	}
	if len(e.Running()) != 0 {
		t.Errorf("running after disable = %v", e.Running())
	}

	if err := e.ReloadScript("missing"); err == nil {
		t.Error("reload of missing script succeeded")
	}
}

func TestStartScriptSyntaxError(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if err := e.startScript(&Script{ID: "bad", LuaCode: `light.on(`}); err == nil {
		t.Error("expected syntax error")
	}
	if len(e.Running()) != 0 {
		t.Errorf("running = %v", e.Running())
	}
}
