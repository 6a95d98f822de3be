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

package smoothtask_base

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"k8s.io/klog/v2"

	"github.com/smoothtask/smoothtask-core/pkg/config/generic"
	"github.com/smoothtask/smoothtask-core/pkg/metrics"
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

const (
	healthZPath    = "/healthz"
	debugPrefix    = "/debug"
	metricsPath    = debugPrefix + "/metrics"
	shutdownPeriod = 5 * time.Second
)

// GenericContext carries what every component shares: the generic http
// endpoint, the health checker and the metrics emitter.
type GenericContext struct {
	*http.Server
	mux           *http.ServeMux
	healthChecker *HealthzChecker

	emitter *metrics.PrometheusMetricsEmitter
}

func NewGenericContext(genericConf *generic.GenericConfiguration) (*GenericContext, error) {
	mux := http.NewServeMux()
	emitter := metrics.NewPrometheusMetricsEmitter(genericConf.MetricsNamespace, metricsPath, mux)

	c := &GenericContext{
		mux: mux,
		Server: &http.Server{
			Handler:           mux,
			Addr:              genericConf.GenericEndpoint,
			ReadHeaderTimeout: 10 * time.Second,
		},
		healthChecker: NewHealthzChecker(emitter),
		emitter:       emitter,
	}

	// add profiling and health check http paths listening on generic endpoint
	serveProfilingHTTP(mux)
	c.serveHealthZHTTP(mux, genericConf.EnableHealthzCheck)

	return c, nil
}

// GetDefaultMetricsEmitter returns the prometheus backed emitter.
func (c *GenericContext) GetDefaultMetricsEmitter() metrics.MetricEmitter {
	return c.emitter
}

// HandleJSON serves the value returned by get as indented JSON on path.
func (c *GenericContext) HandleJSON(path string, get func() interface{}) {
	c.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		content, err := json.MarshalIndent(get(), "", "  ")
		if err != nil {
			general.Errorf("marshal %v failed: %v", path, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(content)
	})
}

// Run starts the generic components; the http server is only started
// when an endpoint is configured, and is shut down with ctx.
func (c *GenericContext) Run(ctx context.Context) {
	c.healthChecker.Run(ctx)
	c.emitter.Run(ctx)
	if c.Addr == "" {
		klog.Infof("generic endpoint disabled")
		return
	}

	go func() {
		klog.Infof("serving generic endpoint on %v", c.Addr)
		if err := c.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Fatal(err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
		defer cancel()
		if err := c.Shutdown(shutdownCtx); err != nil {
			klog.Warningf("shutdown generic endpoint: %v", err)
		}
	}()
}

// serveHealthZHTTP is used to provide health check for current running components.
func (c *GenericContext) serveHealthZHTTP(mux *http.ServeMux, enableHealthzCheck bool) {
	mux.HandleFunc(healthZPath, func(w http.ResponseWriter, r *http.Request) {
		ok, content := c.healthChecker.CheckHealthy()
		if ok || !enableHealthzCheck {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(content))
		} else {
			w.WriteHeader(500)
			_, _ = w.Write([]byte(content))
		}
	})
}

// serveProfilingHTTP is used to provide pprof metrics for current running components.
func serveProfilingHTTP(mux *http.ServeMux) {
	mux.Handle("/debug/pprof/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/pprof/cmdline", http.HandlerFunc(pprof.Cmdline))
	mux.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/pprof/symbol", http.HandlerFunc(pprof.Symbol))
	mux.Handle("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))
}
