// Package toolbox holds the tools the agent offers out of the box.
package toolbox

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/bus"
	"github.com/go-go-golems/atomclaw/pkg/inference/tools"
	"github.com/pkg/errors"
)

const (
	CurrentTimeTool  = "get_current_time"
	DeviceStatusTool = "get_device_status"
)

// Queues exposes the bus depths to the status tool.
type Queues interface {
	Len(q bus.Queue) int
	Cap(q bus.Queue) int
}

type Toolbox struct {
	now     func() time.Time
	started time.Time
	queues  Queues
}

type Option func(*Toolbox)

func WithClock(now func() time.Time) Option {
	return func(t *Toolbox) {
		t.now = now
	}
}

func WithQueues(q Queues) Option {
	return func(t *Toolbox) {
		t.queues = q
	}
}

func New(opts ...Option) *Toolbox {
	t := &Toolbox{now: time.Now}
	for _, o := range opts {
		o(t)
	}
	t.started = t.now()
	return t
}

type TimeInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema_description:"IANA zone name like Europe/Paris. Defaults to UTC."`
}

type TimeResult struct {
	Time     string `json:"time"`
	Weekday  string `json:"weekday"`
	Timezone string `json:"timezone"`
	Unix     int64  `json:"unix"`
}

func (t *Toolbox) CurrentTime(_ context.Context, in TimeInput) (TimeResult, error) {
	zone := strings.TrimSpace(in.Timezone)
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return TimeResult{}, errors.Errorf("unknown timezone %q", zone)
	}
	now := t.now().In(loc)
	return TimeResult{
		Time:     now.Format("2006-01-02 15:04:05 MST"),
		Weekday:  now.Weekday().String(),
		Timezone: zone,
		Unix:     now.Unix(),
	}, nil
}

type DeviceStatus struct {
	UptimeSeconds  int64  `json:"uptime_seconds"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64 `json:"heap_sys_bytes"`
	Goroutines     int    `json:"goroutines"`
	InboundDepth   int    `json:"inbound_depth"`
	InboundCap     int    `json:"inbound_capacity"`
	OutboundDepth  int    `json:"outbound_depth"`
	OutboundCap    int    `json:"outbound_capacity"`
	GoVersion      string `json:"go_version"`
}

func (t *Toolbox) DeviceStatus(_ context.Context) (DeviceStatus, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	st := DeviceStatus{
		UptimeSeconds:  int64(t.now().Sub(t.started).Seconds()),
		HeapAllocBytes: ms.HeapAlloc,
		HeapSysBytes:   ms.HeapSys,
		Goroutines:     runtime.NumGoroutine(),
		GoVersion:      runtime.Version(),
	}
	if t.queues != nil {
		st.InboundDepth = t.queues.Len(bus.Inbound)
		st.InboundCap = t.queues.Cap(bus.Inbound)
		st.OutboundDepth = t.queues.Len(bus.Outbound)
		st.OutboundCap = t.queues.Cap(bus.Outbound)
	}
	return st, nil
}

// Register adds every built-in tool to reg.
func (t *Toolbox) Register(reg tools.ToolRegistry) error {
	timeTool, err := tools.NewToolFromFunc(CurrentTimeTool,
		"Get the current date and time, optionally in a given timezone.", t.CurrentTime)
	if err != nil {
		return err
	}
	statusTool, err := tools.NewToolFromFunc(DeviceStatusTool,
		"Get the agent's uptime, memory use and message queue depths.", t.DeviceStatus)
	if err != nil {
		return err
	}
	for _, def := range []*tools.ToolDefinition{timeTool, statusTool} {
		if err := reg.RegisterTool(def.Name, *def); err != nil {
			return errors.Wrapf(err, "register %s", def.Name)
		}
	}
	return nil
}
