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

// Package load turns host-wide pressure metrics into a load category
// and downgrades priority classes while the host is loaded.
package load // import "github.com/smoothtask/smoothtask-core/pkg/agent/priority/load"

import (
	"fmt"
	"math"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
)

type LoadCategory string

const (
	LoadCategoryLow    LoadCategory = "low"
	LoadCategoryNormal LoadCategory = "normal"
	LoadCategoryMedium LoadCategory = "medium"
	LoadCategoryHigh   LoadCategory = "high"
)

const (
	highLoadThreshold   = 0.8
	mediumLoadThreshold = 0.6
	normalLoadThreshold = 0.4

	cpuLoadWeight  = 0.4
	psiCPUWeight   = 0.2
	psiIOWeight    = 0.2
	psiMemWeight   = 0.2
	memRatioWeight = 0.2
)

// SystemLoadInfo is derived once per tick and immutable afterwards.
type SystemLoadInfo struct {
	CPULoad1Min      float64  `json:"cpu_load_1min"`
	CPULoad5Min      float64  `json:"cpu_load_5min"`
	CPULoad15Min     float64  `json:"cpu_load_15min"`
	PSICPUSomeAvg10  *float64 `json:"psi_cpu_some_avg10,omitempty"`
	PSIIOSomeAvg10   *float64 `json:"psi_io_some_avg10,omitempty"`
	PSIMemSomeAvg10  *float64 `json:"psi_mem_some_avg10,omitempty"`
	MemoryUsageRatio float64  `json:"memory_usage_ratio"`
	// LoadLevel is in [0, 1].
	LoadLevel float64 `json:"load_level"`
}

// NewSystemLoadInfo treats a non-positive cpuCount as a single cpu.
func NewSystemLoadInfo(global snapshot.GlobalMetrics, cpuCount int) SystemLoadInfo {
	if cpuCount <= 0 {
		cpuCount = 1
	}

	var memRatio float64
	if global.MemTotalKB > 0 {
		used := float64(global.MemTotalKB) - float64(global.MemAvailableKB)
		memRatio = math.Max(used, 0) / float64(global.MemTotalKB)
	}

	info := SystemLoadInfo{
		CPULoad1Min:      global.LoadAvgOne,
		CPULoad5Min:      global.LoadAvgFive,
		CPULoad15Min:     global.LoadAvgFifteen,
		PSICPUSomeAvg10:  global.PSICPUSomeAvg10,
		PSIIOSomeAvg10:   global.PSIIOSomeAvg10,
		PSIMemSomeAvg10:  global.PSIMemSomeAvg10,
		MemoryUsageRatio: memRatio,
	}

	// the weights add up to 1.2, the final clamp keeps the level in range
	level := cpuLoadWeight*(global.LoadAvgOne/float64(cpuCount)) +
		psiCPUWeight*clampOptional(global.PSICPUSomeAvg10) +
		psiIOWeight*clampOptional(global.PSIIOSomeAvg10) +
		psiMemWeight*clampOptional(global.PSIMemSomeAvg10) +
		memRatioWeight*clamp01(memRatio)
	info.LoadLevel = clamp01(level)
	return info
}

// Category buckets LoadLevel; thresholds are inclusive lower bounds.
func (i SystemLoadInfo) Category() LoadCategory {
	switch {
	case i.LoadLevel >= highLoadThreshold:
		return LoadCategoryHigh
	case i.LoadLevel >= mediumLoadThreshold:
		return LoadCategoryMedium
	case i.LoadLevel >= normalLoadThreshold:
		return LoadCategoryNormal
	default:
		return LoadCategoryLow
	}
}

func (i SystemLoadInfo) String() string {
	return fmt.Sprintf("level=%.3f category=%v load1=%.2f mem=%.3f", i.LoadLevel, i.Category(), i.CPULoad1Min, i.MemoryUsageRatio)
}

func clampOptional(v *float64) float64 {
	if v == nil {
		return 0
	}
	return clamp01(*v)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
