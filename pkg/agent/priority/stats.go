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

package priority

import (
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/actuator"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/load"
)

// Stats is written by the control loop and read concurrently by the http surface.
type Stats struct {
	totalIterations      atomic.Uint64
	successfulIterations atomic.Uint64
	errorIterations      atomic.Uint64

	totalApplied           atomic.Uint64
	totalSkippedHysteresis atomic.Uint64
	totalErrors            atomic.Uint64

	totalTickDuration atomic.Duration
	lastTickDuration  atomic.Duration
	lastLoadLevel     atomic.Float64
	lastLoadCategory  atomic.String
	lastProcesses     atomic.Int64
	trackedProcesses  atomic.Int64
	lastSuccessNanos  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalIterations        uint64    `json:"total_iterations"`
	SuccessfulIterations   uint64    `json:"successful_iterations"`
	ErrorIterations        uint64    `json:"error_iterations"`
	TotalApplied           uint64    `json:"total_applied_adjustments"`
	TotalSkippedHysteresis uint64    `json:"total_skipped_hysteresis"`
	TotalErrors            uint64    `json:"total_apply_errors"`
	AverageTickDurationMs  float64   `json:"average_tick_duration_ms"`
	LastTickDurationMs     float64   `json:"last_tick_duration_ms"`
	LastLoadLevel          float64   `json:"last_load_level"`
	LastLoadCategory       string    `json:"last_load_category,omitempty"`
	LastProcesses          int64     `json:"last_snapshot_processes"`
	TrackedProcesses       int64     `json:"hysteresis_tracked_processes"`
	LastSuccess            time.Time `json:"last_success"`
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) recordError() {
	s.totalIterations.Inc()
	s.errorIterations.Inc()
}

func (s *Stats) recordSuccess(now time.Time, elapsed time.Duration, result actuator.ApplyResult,
	info load.SystemLoadInfo, processes, tracked int,
) {
	s.totalIterations.Inc()
	s.successfulIterations.Inc()
	s.totalApplied.Add(uint64(result.Applied))
	s.totalSkippedHysteresis.Add(uint64(result.SkippedHysteresis))
	s.totalErrors.Add(uint64(result.Errors))

	s.totalTickDuration.Add(elapsed)
	s.lastTickDuration.Store(elapsed)
	s.lastLoadLevel.Store(info.LoadLevel)
	s.lastLoadCategory.Store(string(info.Category()))
	s.lastProcesses.Store(int64(processes))
	s.trackedProcesses.Store(int64(tracked))
	s.lastSuccessNanos.Store(now.UnixNano())
}

// Snapshot never blocks the writer; fields may come from two adjacent ticks.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		TotalIterations:        s.totalIterations.Load(),
		SuccessfulIterations:   s.successfulIterations.Load(),
		ErrorIterations:        s.errorIterations.Load(),
		TotalApplied:           s.totalApplied.Load(),
		TotalSkippedHysteresis: s.totalSkippedHysteresis.Load(),
		TotalErrors:            s.totalErrors.Load(),
		LastTickDurationMs:     durationMs(s.lastTickDuration.Load()),
		LastLoadLevel:          s.lastLoadLevel.Load(),
		LastLoadCategory:       s.lastLoadCategory.Load(),
		LastProcesses:          s.lastProcesses.Load(),
		TrackedProcesses:       s.trackedProcesses.Load(),
	}
	if nanos := s.lastSuccessNanos.Load(); nanos > 0 {
		snap.LastSuccess = time.Unix(0, nanos)
	}
	if snap.SuccessfulIterations > 0 {
		snap.AverageTickDurationMs = durationMs(s.totalTickDuration.Load()) / float64(snap.SuccessfulIterations)
	}
	return snap
}

// Status is the one-line summary sent to the service manager.
func (s StatsSnapshot) Status() string {
	return fmt.Sprintf("Running: %d iterations, avg %.1fms/iter, %d adjustments applied, load %s",
		s.TotalIterations, s.AverageTickDurationMs, s.TotalApplied, s.LastLoadCategory)
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
