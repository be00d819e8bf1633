//
//  Copyright 2024 The AVFS authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//  	http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

// Package metrics exports the activity of the fault evaluator as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/avfs/mungefs"
	"github.com/avfs/mungefs/fault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mungefs"

var _ fault.Observer = &Collector{}

// Collector is a fault.Observer counting evaluations and injected faults.
type Collector struct {
	evaluations *prometheus.CounterVec // evaluations counts the operations having a fault.
	injected    *prometheus.CounterVec // injected counts the injected faults by kind.
	configured  prometheus.GaugeFunc   // configured is the number of operations having a fault.
}

// NewCollector returns a new collector registered to reg.
// The number of configured faults is read from table.
func NewCollector(reg prometheus.Registerer, table *fault.Table) (*Collector, error) {
	c := &Collector{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fault_evaluations_total",
			Help:      "Number of operations evaluated against a configured fault.",
		}, []string{"op"}),
		injected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_injected_total",
			Help:      "Number of faults injected by operation and kind.",
		}, []string{"op", "kind"}),
		configured: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "faults_configured",
			Help:      "Number of operations having a fault.",
		}, func() float64 { return float64(table.Len()) }),
	}

	for _, col := range []prometheus.Collector{c.evaluations, c.injected, c.configured} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Evaluated implements fault.Observer.
func (c *Collector) Evaluated(op mungefs.Op) {
	c.evaluations.WithLabelValues(op.String()).Inc()
}

// Injected implements fault.Observer.
func (c *Collector) Injected(op mungefs.Op, kind fault.Kind) {
	c.injected.WithLabelValues(op.String(), string(kind)).Inc()
}

// Handler returns an HTTP handler serving the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
