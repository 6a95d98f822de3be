/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "smoothtask"

type prometheusCollector struct {
	labelNames []string
	emitType   MetricTypeName
	counter    *prometheus.CounterVec
	gauge      *prometheus.GaugeVec
}

// PrometheusMetricsEmitter exposes stored values through a private prometheus registry.
// Every metric key keeps the label set it was first stored with.
type PrometheusMetricsEmitter struct {
	namespace string
	registry  *prometheus.Registry

	mtx        sync.Mutex
	collectors map[string]*prometheusCollector
}

var _ MetricEmitter = &PrometheusMetricsEmitter{}

// NewPrometheusMetricsEmitter creates the emitter and, when mux is non-nil,
// serves the registry at path.
func NewPrometheusMetricsEmitter(namespace, path string, mux *http.ServeMux) *PrometheusMetricsEmitter {
	if namespace == "" {
		namespace = defaultNamespace
	}

	p := &PrometheusMetricsEmitter{
		namespace:  namespace,
		registry:   prometheus.NewRegistry(),
		collectors: make(map[string]*prometheusCollector),
	}
	if mux != nil {
		mux.Handle(path, promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	}
	return p
}

// Gatherer exposes the underlying registry, mainly for tests.
func (p *PrometheusMetricsEmitter) Gatherer() prometheus.Gatherer {
	return p.registry
}

func (p *PrometheusMetricsEmitter) StoreInt64(key string, val int64, emitType MetricTypeName, tags ...MetricTag) error {
	return p.StoreFloat64(key, float64(val), emitType, tags...)
}

func (p *PrometheusMetricsEmitter) StoreFloat64(key string, val float64, emitType MetricTypeName, tags ...MetricTag) error {
	labelNames, labels := splitTags(tags)

	c, err := p.getOrCreateCollector(key, emitType, labelNames)
	if err != nil {
		return err
	}

	switch emitType {
	case MetricTypeNameCount:
		if val < 0 {
			return fmt.Errorf("counter %v can not be decreased by %v", key, val)
		}
		c.counter.With(labels).Add(val)
	case MetricTypeNameUpDownCount:
		c.gauge.With(labels).Add(val)
	default:
		c.gauge.With(labels).Set(val)
	}
	return nil
}

func (p *PrometheusMetricsEmitter) WithTags(unit string, commonTags ...MetricTag) MetricEmitter {
	newMetricTagWrapper := &MetricTagWrapper{MetricEmitter: p}
	return newMetricTagWrapper.WithTags(unit, commonTags...)
}

func (p *PrometheusMetricsEmitter) Run(_ context.Context) {}

func (p *PrometheusMetricsEmitter) getOrCreateCollector(key string, emitType MetricTypeName, labelNames []string) (*prometheusCollector, error) {
	name := sanitizeMetricName(key)

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if c, ok := p.collectors[name]; ok {
		if c.emitType != emitType {
			return nil, fmt.Errorf("metric %v already registered as %v", name, c.emitType)
		}
		if strings.Join(c.labelNames, ",") != strings.Join(labelNames, ",") {
			return nil, fmt.Errorf("metric %v already registered with labels %v", name, c.labelNames)
		}
		return c, nil
	}

	c := &prometheusCollector{labelNames: labelNames, emitType: emitType}
	var collector prometheus.Collector
	if emitType == MetricTypeNameCount {
		c.counter = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: p.namespace, Name: name, Help: key}, labelNames)
		collector = c.counter
	} else {
		c.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: p.namespace, Name: name, Help: key}, labelNames)
		collector = c.gauge
	}

	if err := p.registry.Register(collector); err != nil {
		return nil, fmt.Errorf("register metric %v failed: %v", name, err)
	}
	p.collectors[name] = c
	return c, nil
}

// splitTags returns sorted label names and the label map; duplicated keys keep the last value.
func splitTags(tags []MetricTag) ([]string, prometheus.Labels) {
	labels := make(prometheus.Labels, len(tags))
	for _, tag := range tags {
		labels[sanitizeMetricName(tag.Key)] = tag.Val
	}

	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, labels
}

func sanitizeMetricName(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
}
