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
	"time"

	"go.uber.org/atomic"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/smoothtask/smoothtask-core/pkg/metrics"
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

const (
	healthzSyncPeriod       = 30 * time.Second
	MetricNameUnhealthyRule = "unhealthy_healthz_check_rule"
)

// HealthzChecker periodically checks the registered heartbeat rules
type HealthzChecker struct {
	// if unhealthyReason is none-empty, it means some check failed
	unhealthyReason *atomic.String
	emitter         metrics.MetricEmitter
}

func NewHealthzChecker(emitter metrics.MetricEmitter) *HealthzChecker {
	return &HealthzChecker{
		unhealthyReason: atomic.NewString(""),
		emitter:         emitter,
	}
}

func (h *HealthzChecker) Run(ctx context.Context) {
	go wait.UntilWithContext(ctx, func(_ context.Context) {
		h.check()
	}, healthzSyncPeriod)
}

func (h *HealthzChecker) check() {
	reason := ""
	for key, result := range general.GetRegisterReadinessCheckResult() {
		var unhealthy int64
		if !result.Ready {
			unhealthy = 1
			reason = string(key) + ": " + result.Message
		}
		_ = h.emitter.StoreInt64(MetricNameUnhealthyRule, unhealthy, metrics.MetricTypeNameRaw,
			metrics.MetricTag{Key: "rule", Val: string(key)})
	}
	if reason != "" && reason != h.unhealthyReason.Load() {
		general.Warningf("healthz check failed: %v", reason)
	}
	h.unhealthyReason.Store(reason)
}

// CheckHealthy returns whether the component is healthy.
func (h *HealthzChecker) CheckHealthy() (bool, string) {
	results := general.GetRegisterReadinessCheckResult()
	healthy := true
	for _, result := range results {
		if !result.Ready {
			healthy = false
		}
	}

	resultBytes, err := json.Marshal(results)
	if err != nil {
		general.Errorf("marshal healthz content failed,err:%v", err)
	}

	return healthy, string(resultBytes)
}
