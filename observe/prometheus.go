// Copyright 2026 The JazzPetri Authors
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

package observe

import (
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// PrometheusMetrics adapts a Prometheus registry to the MetricsCollector port.
//
// Collectors are created lazily on first use of a name. The first call
// decides the kind: Inc creates a counter, Add and Set create a gauge and
// Observe creates a histogram with the default buckets. Add on an existing
// counter adds to it when the value is positive. Calls that do not fit the
// kind already bound to a name are dropped and counted in Conflicts.
type PrometheusMetrics struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
	conflicts  int
}

// NewPrometheusMetrics creates a collector that registers into reg.
// A nil reg gets a fresh registry.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &PrometheusMetrics{
		reg:        reg,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Registry returns the underlying registry.
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.reg
}

// Inc increments the counter registered under name.
func (p *PrometheusMetrics) Inc(name string) {
	if c := p.counter(name); c != nil {
		c.Inc()
	}
}

// Add adds value to the counter or gauge registered under name.
func (p *PrometheusMetrics) Add(name string, value float64) {
	p.mu.Lock()
	c, isCounter := p.counters[name]
	p.mu.Unlock()

	if isCounter {
		if value < 0 {
			p.conflict()
			return
		}
		c.Add(value)
		return
	}
	if g := p.gauge(name); g != nil {
		g.Add(value)
	}
}

// Observe records value in the histogram registered under name.
func (p *PrometheusMetrics) Observe(name string, value float64) {
	if h := p.histogram(name); h != nil {
		h.Observe(value)
	}
}

// Set sets the gauge registered under name.
func (p *PrometheusMetrics) Set(name string, value float64) {
	if g := p.gauge(name); g != nil {
		g.Set(value)
	}
}

// Conflicts returns the number of dropped calls whose kind did not match the
// collector already registered under the same name.
func (p *PrometheusMetrics) Conflicts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conflicts
}

// WriteText writes every gathered metric family to w in the Prometheus text
// exposition format.
func (p *PrometheusMetrics) WriteText(w io.Writer) error {
	families, err := p.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns an HTTP handler serving the registry.
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *PrometheusMetrics) conflict() {
	p.mu.Lock()
	p.conflicts++
	p.mu.Unlock()
}

func (p *PrometheusMetrics) counter(name string) prometheus.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: name})
	if err := p.reg.Register(c); err != nil {
		p.conflicts++
		return nil
	}
	p.counters[name] = c
	return c
}

func (p *PrometheusMetrics) gauge(name string) prometheus.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: name})
	if err := p.reg.Register(g); err != nil {
		p.conflicts++
		return nil
	}
	p.gauges[name] = g
	return g
}

func (p *PrometheusMetrics) histogram(name string) prometheus.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Help:    name,
		Buckets: prometheus.DefBuckets,
	})
	if err := p.reg.Register(h); err != nil {
		p.conflicts++
		return nil
	}
	p.histograms[name] = h
	return h
}
