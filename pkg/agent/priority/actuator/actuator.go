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

// Package actuator plans per-process priority changes and applies them to the
// kernel, with hysteresis so that processes do not flap between classes.
package actuator // import "github.com/smoothtask/smoothtask-core/pkg/agent/priority/actuator"

import (
	"github.com/pkg/errors"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

var logger = general.LoggerWithPrefix("actuator", general.LoggingPKGFull)

// ApplyResult counts the outcomes of one ApplyPriorityAdjustments call.
type ApplyResult struct {
	Applied           int `json:"applied"`
	SkippedHysteresis int `json:"skipped_hysteresis"`
	Errors            int `json:"errors"`
}

// Add accumulates other into r.
func (r *ApplyResult) Add(other ApplyResult) {
	r.Applied += other.Applied
	r.SkippedHysteresis += other.SkippedHysteresis
	r.Errors += other.Errors
}

type Actuator struct {
	provider SyscallProvider
	cgroup   CgroupApplier
}

// NewActuator falls back to NoopCgroupApplier when cgroup is nil.
func NewActuator(provider SyscallProvider, cgroup CgroupApplier) *Actuator {
	if cgroup == nil {
		cgroup = NoopCgroupApplier{}
	}
	return &Actuator{
		provider: provider,
		cgroup:   cgroup,
	}
}

// ApplyPriorityAdjustments applies adjustments one by one, in order. A failing
// adjustment never stops the batch; only fully applied ones are recorded in hysteresis.
func (a *Actuator) ApplyPriorityAdjustments(adjustments []PriorityAdjustment, hysteresis *HysteresisTracker) ApplyResult {
	var result ApplyResult
	for i := range adjustments {
		adj := &adjustments[i]

		if !hysteresis.ShouldApplyChange(adj.PID, adj.TargetClass) {
			logger.InfofV(4, "skip %v by hysteresis", adj)
			result.SkippedHysteresis++
			continue
		}

		if err := a.provider.SetNice(adj.PID, adj.TargetNice); err != nil {
			warnFailure(adj, "set nice", err)
			result.Errors++
			continue
		}

		// latency nice is best effort; most kernels do not carry it
		if err := a.provider.SetLatencyNice(adj.PID, adj.TargetNice, adj.TargetLatencyNice); err != nil {
			logger.InfofV(5, "set latency nice %d for pid %d skipped: %v", adj.TargetLatencyNice, adj.PID, err)
		}

		if err := a.provider.SetIONice(adj.PID, adj.TargetIONice.Class, adj.TargetIONice.Level); err != nil {
			warnFailure(adj, "set ionice", err)
			result.Errors++
			continue
		}

		if err := a.cgroup.Apply(adj.PID, adj.AppGroupID, class.CgroupParams{CPUWeight: adj.TargetCPUWeight}); err != nil {
			logger.Warningf("apply cgroup for %v failed: %v", adj, err)
		}

		hysteresis.RecordChange(adj.PID, adj.TargetClass)
		result.Applied++
		logger.InfofV(4, "applied %v: %s", adj, adj.Reason)
	}
	return result
}

// warnFailure keeps vanished processes out of the warning log; they are still counted.
func warnFailure(adj *PriorityAdjustment, step string, err error) {
	if errors.Is(err, ErrProcessNotFound) {
		logger.InfofV(4, "%s for %v: process exited: %v", step, adj, err)
		return
	}
	logger.Warningf("%s for %v failed: %v", step, adj, err)
}
