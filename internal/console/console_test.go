package console

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
	"matter-light-bridge/internal/device"
)

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

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteAttribute(ctx context.Context, path datamodel.AttributePath, value any) (datamodel.Status, error) {
	args := m.Called(path, value)
	return args.Get(0).(datamodel.Status), args.Error(1)
}

func newTestConsole(t *testing.T) (*Console, *mockWriter, *device.Light, *device.Light) {
	t.Helper()
	dimmer, err := device.NewLight("Light 1", "Office", device.LightOptions{Dimmable: true, Level: 100})
	require.NoError(t, err)
	dimmer.SetEndpoint(3, 1)
	dimmer.SetReachable(true)

	plain, err := device.NewLight("Porch", "Outside", device.LightOptions{})
	require.NoError(t, err)
	plain.SetEndpoint(4, 1)

	w := &mockWriter{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(&fakeLights{lights: []*device.Light{dimmer, plain}}, w, logger), w, dimmer, plain
}

func TestExecuteDeviceCommands(t *testing.T) {
	c, _, dimmer, plain := newTestConsole(t)
	ctx := context.Background()

	assert.Equal(t, "ok", c.Execute(ctx, "reachable 4 on"))
	assert.True(t, plain.Reachable())

	assert.Equal(t, "ok", c.Execute(ctx, "name 3 Desk Lamp"))
	assert.Equal(t, "Desk Lamp", dimmer.Name())

	assert.Equal(t, "ok", c.Execute(ctx, "location 3 Living Room"))
	assert.Equal(t, "Living Room", dimmer.Location())

	assert.Equal(t, "ok", c.Execute(ctx, "onoff 3 on"))
	assert.True(t, dimmer.IsOn())
	assert.Equal(t, "off", c.Execute(ctx, "ONOFF 3 toggle"))
	assert.False(t, dimmer.IsOn())

	assert.Equal(t, "ok", c.Execute(ctx, "level 0x3 0x20"))
	assert.Equal(t, uint8(0x20), dimmer.Level())
}

func TestExecuteReportsChanges(t *testing.T) {
	c, _, dimmer, _ := newTestConsole(t)

	var got device.ChangeMask
	dimmer.OnChange(func(_ *device.Light, mask device.ChangeMask) { got |= mask })

	c.Execute(context.Background(), "reachable 3 off")
	c.Execute(context.Background(), "name 3 Hall")
	assert.True(t, got.Has(device.ChangedReachable|device.ChangedName), "mask = %s", got)
}

func TestExecuteErrors(t *testing.T) {
	c, _, dimmer, _ := newTestConsole(t)

	tests := []struct {
		line string
		want string
	}{
		{"bogus", `unknown command "bogus"`},
		{"reachable 3", "usage: reachable"},
		{"reachable x on", `invalid endpoint "x"`},
		{"reachable 9 on", "no light at endpoint 9"},
		{"onoff 3 maybe", "expected on or off"},
		{"level 4 10", "not dimmable"},
		{"level 3 300", `invalid level "300"`},
		{"level 3 255", "level out of range"},
		{"name 3 " + strings.Repeat("x", datamodel.CharStringSize), "name longer than"},
		{"write 3 color 1", `unknown attribute "color"`},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			reply := c.Execute(context.Background(), tt.line)
			assert.True(t, strings.HasPrefix(reply, "error: "), "reply = %q", reply)
			assert.Contains(t, reply, tt.want)
		})
	}
	assert.Equal(t, "Light 1", dimmer.Name())
	assert.Equal(t, uint8(100), dimmer.Level())
}

func TestExecuteWriteGoesThroughHost(t *testing.T) {
	c, w, _, _ := newTestConsole(t)
	ctx := context.Background()

	onPath := datamodel.AttributePath{Endpoint: 3, Cluster: clusters.OnOffID, Attribute: clusters.AttrOnOff}
	levelPath := datamodel.AttributePath{Endpoint: 3, Cluster: clusters.LevelControlID, Attribute: clusters.AttrCurrentLevel}
	offlinePath := datamodel.AttributePath{Endpoint: 4, Cluster: clusters.OnOffID, Attribute: clusters.AttrOnOff}

	w.On("WriteAttribute", onPath, true).Return(datamodel.StatusSuccess, nil).Once()
	w.On("WriteAttribute", levelPath, uint8(80)).Return(datamodel.StatusSuccess, nil).Once()
	w.On("WriteAttribute", offlinePath, false).Return(datamodel.StatusFailure, nil).Once()

	assert.Equal(t, "SUCCESS", c.Execute(ctx, "write 3 onoff on"))
	assert.Equal(t, "SUCCESS", c.Execute(ctx, "write 3 level 80"))
	assert.Equal(t, "FAILURE", c.Execute(ctx, "write 4 onoff off"))
	w.AssertExpectations(t)
}

func TestExecuteListAndHelp(t *testing.T) {
	c, _, _, _ := newTestConsole(t)

	list := c.Execute(context.Background(), "list")
	lines := strings.Split(list, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `3 "Light 1" location="Office" reachable=true on=false level=100`, lines[0])
	assert.Equal(t, `4 "Porch" location="Outside" reachable=false on=false`, lines[1])

	assert.Contains(t, c.Execute(context.Background(), "help"), "write <ep> onoff|level <value>")
}

func TestServe(t *testing.T) {
	c, _, dimmer, _ := newTestConsole(t)
	server, client := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, server) }()

	r := bufio.NewReader(client)
	exchange := func(line string) string {
		t.Helper()
		_, err := io.WriteString(client, line+"\n")
		require.NoError(t, err)
		reply, err := r.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimSuffix(reply, "\n")
	}

	assert.Equal(t, "ok", exchange("onoff 3 on"))
	assert.True(t, dimmer.IsOn())
	assert.Contains(t, exchange("nope"), "error: ")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeEndOfStream(t *testing.T) {
	c, _, dimmer, _ := newTestConsole(t)

	rw := &bufferRW{Reader: strings.NewReader("onoff 3 on\n\nlevel 3 7\n")}
	require.NoError(t, c.Serve(context.Background(), rw))

	assert.Equal(t, "ok\nok\n", rw.out.String())
	assert.True(t, dimmer.IsOn())
	assert.Equal(t, uint8(7), dimmer.Level())
	assert.True(t, rw.closed)
}

type bufferRW struct {
	io.Reader
	out    strings.Builder
	closed bool
}

func (b *bufferRW) Write(p []byte) (int, error) { return b.out.Write(p) }
func (b *bufferRW) Close() error                { b.closed = true; return nil }

func TestOpenWithoutPort(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, ErrNoPort)
}
