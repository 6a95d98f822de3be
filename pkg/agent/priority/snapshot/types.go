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

package snapshot

import (
	"time"

	"github.com/samber/lo"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
)

// ProcessRecord is the per-process view one tick works on.
type ProcessRecord struct {
	PID     int      `json:"pid"`
	PPID    int      `json:"ppid"`
	Comm    string   `json:"comm"`
	Exe     string   `json:"exe,omitempty"`
	Cmdline []string `json:"cmdline,omitempty"`
	Nice    int      `json:"nice"`
	// IONice is nil when the kernel reports no explicit I/O priority.
	IONice *class.IONiceParams `json:"ionice,omitempty"`
	// AppGroupID is empty for processes outside any app group.
	AppGroupID string `json:"app_group_id,omitempty"`
}

// GlobalMetrics are the host-wide inputs of the load assessor.
// PSI values are fractions in [0, 1]; nil means the kernel has no PSI for that resource.
type GlobalMetrics struct {
	CPUCount        int      `json:"cpu_count"`
	LoadAvgOne      float64  `json:"load_avg_one"`
	LoadAvgFive     float64  `json:"load_avg_five"`
	LoadAvgFifteen  float64  `json:"load_avg_fifteen"`
	PSICPUSomeAvg10 *float64 `json:"psi_cpu_some_avg10,omitempty"`
	PSIIOSomeAvg10  *float64 `json:"psi_io_some_avg10,omitempty"`
	PSIMemSomeAvg10 *float64 `json:"psi_mem_some_avg10,omitempty"`
	MemTotalKB      uint64   `json:"mem_total_kb"`
	MemAvailableKB  uint64   `json:"mem_available_kb"`
}

// Snapshot is fully materialized before it is handed to the planner and is not mutated afterwards,
// except for AppGroupID assignment done by the policy stage.
type Snapshot struct {
	ID        uint64          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Global    GlobalMetrics   `json:"global"`
	Processes []ProcessRecord `json:"processes"`
}

// PIDs returns every pid in the snapshot, in snapshot order.
func (s *Snapshot) PIDs() []int {
	return lo.Map(s.Processes, func(p ProcessRecord, _ int) int { return p.PID })
}
