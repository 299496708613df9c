package main

import (
	"context"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/api"
	"github.com/nerrad567/laurabot-hal/internal/device"
	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/kafka"
	"github.com/nerrad567/laurabot-hal/internal/probe"
	"github.com/nerrad567/laurabot-hal/internal/router"
	"github.com/nerrad567/laurabot-hal/internal/telemetry"
)

// hardwareAudit is the subset of the audit recorder hardware events use.
type hardwareAudit interface {
	RecordProbe(rep probe.Report)
	RecordRebind(ev device.RebindEvent)
	RecordFallback(ev router.FallbackEvent)
}

// hardwareEvents fans registry, router and probe events out to live
// clients, the audit trail and the event stream. Nil sinks are skipped.
type hardwareEvents struct {
	ctx    context.Context
	hub    telemetry.Broadcaster
	audit  hardwareAudit
	stream telemetry.EventPublisher
	log    interface {
		Warn(msg string, args ...any)
	}
}

func (h *hardwareEvents) onRebind(ev device.RebindEvent) {
	if h.hub != nil {
		h.hub.Broadcast(api.ChannelRebind, ev)
	}
	if h.audit != nil {
		h.audit.RecordRebind(ev)
	}
	h.publish(kafka.EventRebind, string(ev.Class), ev)
}

func (h *hardwareEvents) onFallback(ev router.FallbackEvent) {
	if h.hub != nil {
		h.hub.Broadcast(api.ChannelFallback, ev)
	}
	if h.audit != nil {
		h.audit.RecordFallback(ev)
	}
	h.publish(kafka.EventFallback, string(ev.Class), ev)
}

func (h *hardwareEvents) onProbe(rep probe.Report) {
	if h.hub != nil {
		h.hub.Broadcast(api.ChannelProbe, rep)
	}
	if h.audit != nil {
		h.audit.RecordProbe(rep)
	}
	h.publish(kafka.EventProbe, rep.ID, rep)
}

// publish streams one event without blocking the caller, which may be
// holding the router's call path.
func (h *hardwareEvents) publish(eventType, key string, data any) {
	if h.stream == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
		defer cancel()
		if err := h.stream.Publish(ctx, eventType, key, data); err != nil && h.log != nil {
			h.log.Warn("event publish failed", "type", eventType, "error", err)
		}
	}()
}

// commandSeries records routed command outcomes for dashboards.
type commandSeries interface {
	WriteCommand(op string, tier hal.Tier, success bool, elapsed time.Duration)
}

// commandMetrics feeds router measurements to Prometheus and, when
// configured, to InfluxDB.
type commandMetrics struct {
	collector router.Metrics
	series    commandSeries
}

func (m commandMetrics) ObserveCommand(op string, tier hal.Tier, success bool, elapsed time.Duration) {
	m.collector.ObserveCommand(op, tier, success, elapsed)
	if m.series != nil {
		m.series.WriteCommand(op, tier, success, elapsed)
	}
}

func (m commandMetrics) ObserveFallback(op string, from, to hal.Tier) {
	m.collector.ObserveFallback(op, from, to)
}
