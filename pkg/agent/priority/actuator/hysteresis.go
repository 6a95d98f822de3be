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
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
)

const (
	DefaultHysteresisMinInterval        = 5 * time.Second
	DefaultHysteresisMinClassDifference = 1
)

type changeRecord struct {
	class     class.PriorityClass
	appliedAt time.Time
}

// HysteresisTracker remembers the last class applied to each pid and
// suppresses changes that come too soon or move too little.
// It is not safe for concurrent use; the control loop owns it.
type HysteresisTracker struct {
	minInterval        time.Duration
	minClassDifference int
	clock              clock.PassiveClock

	history map[int]changeRecord
}

func NewHysteresisTracker(minInterval time.Duration, minClassDifference int, clk clock.PassiveClock) *HysteresisTracker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &HysteresisTracker{
		minInterval:        minInterval,
		minClassDifference: minClassDifference,
		clock:              clk,
		history:            make(map[int]changeRecord),
	}
}

func NewDefaultHysteresisTracker() *HysteresisTracker {
	return NewHysteresisTracker(DefaultHysteresisMinInterval, DefaultHysteresisMinClassDifference, clock.RealClock{})
}

// ShouldApplyChange accepts any pid without history. Otherwise both the
// interval and the class distance since the last recorded change must be large enough.
func (h *HysteresisTracker) ShouldApplyChange(pid int, target class.PriorityClass) bool {
	last, ok := h.history[pid]
	if !ok {
		return true
	}

	if h.clock.Since(last.appliedAt) < h.minInterval {
		return false
	}
	return class.Distance(last.class, target) >= h.minClassDifference
}

// RecordChange overwrites whatever was recorded for pid.
func (h *HysteresisTracker) RecordChange(pid int, c class.PriorityClass) {
	h.history[pid] = changeRecord{class: c, appliedAt: h.clock.Now()}
}

// LastChange returns the class last recorded for pid.
func (h *HysteresisTracker) LastChange(pid int) (class.PriorityClass, bool) {
	last, ok := h.history[pid]
	return last.class, ok
}

// Cleanup forgets every pid not in activePIDs.
func (h *HysteresisTracker) Cleanup(activePIDs []int) {
	active := sets.NewInt(activePIDs...)
	for pid := range h.history {
		if !active.Has(pid) {
			delete(h.history, pid)
		}
	}
}

func (h *HysteresisTracker) Len() int {
	return len(h.history)
}
