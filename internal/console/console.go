// Package console implements a line-oriented command console over a serial
// port or a named pipe. It drives device-side state changes the same way the
// physical devices behind the bridge would.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
	"matter-light-bridge/internal/device"
)

const writeTimeout = 5 * time.Second

var ErrNoPort = errors.New("console: no port configured")

// Config selects the console transport. With Baud set, Port is opened as a
// serial device; otherwise it is opened as a file or named pipe.
type Config struct {
	Port string
	Baud int
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

// Console executes commands read line by line and writes one reply per line.
type Console struct {
	lights Lights
	writer AttributeWriter
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a console.
func New(lights Lights, writer AttributeWriter, logger *slog.Logger) *Console {
	return &Console{
		lights: lights,
		writer: writer,
		logger: logger.With("component", "console"),
	}
}

// Open opens the configured transport.
func Open(cfg Config) (io.ReadWriteCloser, error) {
	if cfg.Port == "" {
		return nil, ErrNoPort
	}
	if cfg.Baud > 0 {
		port, err := serial.Open(cfg.Port, &serial.Mode{
			BaudRate: cfg.Baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("console: open %s: %w", cfg.Port, err)
		}
		return port, nil
	}
	// O_RDWR keeps a FIFO open between writers instead of hitting EOF.
	f, err := os.OpenFile(cfg.Port, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("console: open %s: %w", cfg.Port, err)
	}
	return f, nil
}

// Run opens the configured transport and serves it until ctx is done.
func (c *Console) Run(ctx context.Context, cfg Config) error {
	rw, err := Open(cfg)
	if err != nil {
		return err
	}
	c.logger.Info("console listening", "port", cfg.Port, "baud", cfg.Baud)
	return c.Serve(ctx, rw)
}

// Serve reads commands from rw until ctx is done or the stream ends. rw is
// closed on return.
func (c *Console) Serve(ctx context.Context, rw io.ReadWriteCloser) error {
	var closeOnce sync.Once
	closeRW := func() { closeOnce.Do(func() { rw.Close() }) }
	defer closeRW()

	stop := context.AfterFunc(ctx, closeRW)
	defer stop()

	scanner := bufio.NewScanner(rw)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := c.Execute(ctx, line)
		if _, err := io.WriteString(rw, reply+"\n"); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("console: write reply: %w", err)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("console: read: %w", err)
	}
	return nil
}

// Execute runs a single command line and returns the reply text.
func (c *Console) Execute(ctx context.Context, line string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	c.logger.Debug("command", "cmd", cmd, "args", args)

	var (
		reply string
		err   error
	)
	switch cmd {
	case "help":
		reply = helpText
	case "list":
		reply = c.list()
	case "reachable":
		reply, err = c.setReachable(args)
	case "name":
		reply, err = c.setName(args)
	case "location":
		reply, err = c.setLocation(args)
	case "onoff":
		reply, err = c.setOnOff(args)
	case "level":
		reply, err = c.setLevel(args)
	case "write":
		reply, err = c.write(ctx, args)
	default:
		err = fmt.Errorf("unknown command %q, try help", cmd)
	}
	if err != nil {
		c.logger.Warn("command failed", "line", line, "err", err)
		return "error: " + err.Error()
	}
	return reply
}

const helpText = `commands:
  list
  reachable <ep> on|off
  name <ep> <label>
  location <ep> <text>
  onoff <ep> on|off|toggle
  level <ep> <0-255>
  write <ep> onoff|level <value>
  help`

func (c *Console) list() string {
	lights := c.lights.Lights()
	if len(lights) == 0 {
		return "no lights"
	}
	var b strings.Builder
	for i, l := range lights {
		if i > 0 {
			b.WriteByte('\n')
		}
		s := l.Snapshot()
		fmt.Fprintf(&b, "%d %q location=%q reachable=%t on=%t", s.EndpointID, s.Name, s.Location, s.Reachable, s.On)
		if s.Dimmable {
			fmt.Fprintf(&b, " level=%d", s.Level)
		}
	}
	return b.String()
}

func (c *Console) light(arg string) (*device.Light, error) {
	ep, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q", arg)
	}
	l, ok := c.lights.Light(datamodel.EndpointID(ep))
	if !ok {
		return nil, fmt.Errorf("no light at endpoint %d", ep)
	}
	return l, nil
}

func parseOnOff(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", arg)
}

func (c *Console) setReachable(args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("usage: reachable <ep> on|off")
	}
	l, err := c.light(args[0])
	if err != nil {
		return "", err
	}
	v, err := parseOnOff(args[1])
	if err != nil {
		return "", err
	}
	l.SetReachable(v)
	return "ok", nil
}

func (c *Console) setName(args []string) (string, error) {
	if len(args) < 2 {
		return "", errors.New("usage: name <ep> <label>")
	}
	l, err := c.light(args[0])
	if err != nil {
		return "", err
	}
	name := strings.Join(args[1:], " ")
	if len(name) > datamodel.CharStringSize-1 {
		return "", fmt.Errorf("name longer than %d bytes", datamodel.CharStringSize-1)
	}
	l.SetName(name)
	return "ok", nil
}

func (c *Console) setLocation(args []string) (string, error) {
	if len(args) < 2 {
		return "", errors.New("usage: location <ep> <text>")
	}
	l, err := c.light(args[0])
	if err != nil {
		return "", err
	}
	l.SetLocation(strings.Join(args[1:], " "))
	return "ok", nil
}

func (c *Console) setOnOff(args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("usage: onoff <ep> on|off|toggle")
	}
	l, err := c.light(args[0])
	if err != nil {
		return "", err
	}
	if strings.EqualFold(args[1], "toggle") {
		if l.Toggle() {
			return "on", nil
		}
		return "off", nil
	}
	v, err := parseOnOff(args[1])
	if err != nil {
		return "", err
	}
	l.SetOnOff(v)
	return "ok", nil
}

func parseLevel(arg string) (uint8, error) {
	n, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q", arg)
	}
	return uint8(n), nil
}

func (c *Console) setLevel(args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("usage: level <ep> <n>")
	}
	l, err := c.light(args[0])
	if err != nil {
		return "", err
	}
	if !l.Dimmable() {
		return "", fmt.Errorf("light at endpoint %d is not dimmable", l.EndpointID())
	}
	level, err := parseLevel(args[1])
	if err != nil {
		return "", err
	}
	if err := l.SetLevel(level); err != nil {
		return "", err
	}
	return "ok", nil
}

// write goes through the host like a controller write, so reachability is
// enforced and the change is mirrored to the cloud.
func (c *Console) write(ctx context.Context, args []string) (string, error) {
	if len(args) != 3 {
		return "", errors.New("usage: write <ep> onoff|level <value>")
	}
	ep, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q", args[0])
	}
	path := datamodel.AttributePath{Endpoint: datamodel.EndpointID(ep)}

	var value any
	switch strings.ToLower(args[1]) {
	case "onoff":
		path.Cluster, path.Attribute = clusters.OnOffID, clusters.AttrOnOff
		if value, err = parseOnOff(args[2]); err != nil {
			return "", err
		}
	case "level":
		path.Cluster, path.Attribute = clusters.LevelControlID, clusters.AttrCurrentLevel
		if value, err = parseLevel(args[2]); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown attribute %q", args[1])
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	status, err := c.writer.WriteAttribute(ctx, path, value)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return status.String(), nil
}
