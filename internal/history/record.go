package history

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/host"
)

// Measurement is the InfluxDB measurement for light attribute reports.
const Measurement = "bridged_light"

// Lights resolves endpoint IDs to light names for tagging.
type Lights interface {
	Light(ep datamodel.EndpointID) (*device.Light, bool)
}

// PointWriter accepts points for asynchronous delivery.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// Recorder turns attribute_report events into points.
type Recorder struct {
	lights Lights
	writer PointWriter
	now    func() time.Time
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(lights Lights, w PointWriter) *Recorder {
	return &Recorder{lights: lights, writer: w, now: time.Now}
}

// Record writes one point per attribute report. Other events are ignored.
// It is safe to subscribe directly to the host event bus.
func (r *Recorder) Record(event host.Event) {
	if p, ok := r.point(event); ok {
		r.writer.WritePoint(p)
	}
}

func (r *Recorder) point(event host.Event) (*write.Point, bool) {
	if event.Type != host.EventAttributeReport {
		return nil, false
	}
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return nil, false
	}
	ep, ok := data["endpoint"].(uint16)
	if !ok {
		return nil, false
	}
	value, ok := fieldValue(data["value"])
	if !ok {
		return nil, false
	}
	cluster, _ := data["cluster_name"].(string)
	attr, _ := data["attribute_name"].(string)

	tags := map[string]string{
		"endpoint":  strconv.Itoa(int(ep)),
		"cluster":   cluster,
		"attribute": attr,
	}
	if l, ok := r.lights.Light(datamodel.EndpointID(ep)); ok {
		tags["name"] = l.Name()
	}
	fields := map[string]interface{}{"value": value}
	if v, ok := data["data_version"].(uint32); ok {
		fields["data_version"] = int64(v)
	}
	ts := event.Time
	if ts.IsZero() {
		ts = r.now()
	}
	return write.NewPoint(Measurement, tags, fields, ts), true
}

// fieldValue normalises attribute values to InfluxDB field types.
func fieldValue(v any) (any, bool) {
	switch x := v.(type) {
	case bool, string:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return nil, false
}
