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

package actuator

import (
	"fmt"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/policy"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
)

// PriorityAdjustment is one planned change for one process.
type PriorityAdjustment struct {
	PID               int                 `json:"pid"`
	AppGroupID        string              `json:"app_group_id"`
	TargetClass       class.PriorityClass `json:"target_class"`
	CurrentNice       int                 `json:"current_nice"`
	TargetNice        int                 `json:"target_nice"`
	TargetLatencyNice int                 `json:"target_latency_nice"`
	// CurrentIONice is nil when the process had no explicit I/O priority.
	CurrentIONice   *class.IONiceParams `json:"current_ionice,omitempty"`
	TargetIONice    class.IONiceParams  `json:"target_ionice"`
	TargetCPUWeight uint64              `json:"target_cpu_weight"`
	Reason          string              `json:"reason"`
}

func (a PriorityAdjustment) String() string {
	current := "none"
	if a.CurrentIONice != nil {
		current = a.CurrentIONice.String()
	}
	return fmt.Sprintf("pid=%d app=%s class=%v nice=%d->%d ionice=%s->%s",
		a.PID, a.AppGroupID, a.TargetClass, a.CurrentNice, a.TargetNice, current, a.TargetIONice)
}

// NeedsChange is true when nice differs, or the I/O priority is absent or differs.
func NeedsChange(currentNice int, currentIONice *class.IONiceParams, target class.PriorityParams) bool {
	if currentNice != target.Nice {
		return true
	}
	if currentIONice == nil {
		return true
	}
	return *currentIONice != target.IONice
}

// PlanPriorityChanges keeps snapshot order. Processes outside any app group,
// or whose group has no policy result, are out of scope and skipped silently.
func PlanPriorityChanges(snap *snapshot.Snapshot, results map[string]policy.PolicyResult) []PriorityAdjustment {
	if snap == nil {
		return nil
	}

	var adjustments []PriorityAdjustment
	for i := range snap.Processes {
		proc := &snap.Processes[i]
		if proc.AppGroupID == "" {
			continue
		}

		result, ok := results[proc.AppGroupID]
		if !ok || !result.Class.Valid() {
			continue
		}

		params := result.Class.Params()
		if !NeedsChange(proc.Nice, proc.IONice, params) {
			continue
		}

		adjustment := PriorityAdjustment{
			PID:               proc.PID,
			AppGroupID:        proc.AppGroupID,
			TargetClass:       result.Class,
			CurrentNice:       proc.Nice,
			TargetNice:        params.Nice,
			TargetLatencyNice: params.LatencyNice,
			TargetIONice:      params.IONice,
			TargetCPUWeight:   params.Cgroup.CPUWeight,
			Reason:            result.Reason,
		}
		if proc.IONice != nil {
			current := *proc.IONice
			adjustment.CurrentIONice = &current
		}
		adjustments = append(adjustments, adjustment)
	}
	return adjustments
}
