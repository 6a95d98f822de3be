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

package load

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/pointer"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/policy"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
)

func TestNewSystemLoadInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		global    snapshot.GlobalMetrics
		cpuCount  int
		wantLevel float64
		wantRatio float64
		wantCat   LoadCategory
	}{
		{
			name:      "idle host",
			global:    snapshot.GlobalMetrics{MemTotalKB: 1000, MemAvailableKB: 1000},
			cpuCount:  4,
			wantLevel: 0,
			wantRatio: 0,
			wantCat:   LoadCategoryLow,
		},
		{
			name:      "cpu load only",
			global:    snapshot.GlobalMetrics{LoadAvgOne: 4},
			cpuCount:  4,
			wantLevel: 0.4,
			wantCat:   LoadCategoryNormal,
		},
		{
			name: "psi and memory",
			global: snapshot.GlobalMetrics{
				LoadAvgOne:      2,
				PSICPUSomeAvg10: pointer.Float64(0.5),
				PSIIOSomeAvg10:  pointer.Float64(0.25),
				MemTotalKB:      1000,
				MemAvailableKB:  500,
			},
			cpuCount:  4,
			wantLevel: 0.4*0.5 + 0.2*0.5 + 0.2*0.25 + 0.2*0.5,
			wantRatio: 0.5,
			wantCat:   LoadCategoryNormal,
		},
		{
			name: "psi terms clamped individually",
			global: snapshot.GlobalMetrics{
				PSICPUSomeAvg10: pointer.Float64(3),
				PSIIOSomeAvg10:  pointer.Float64(-1),
				PSIMemSomeAvg10: pointer.Float64(1),
			},
			cpuCount:  1,
			wantLevel: 0.4,
			wantCat:   LoadCategoryNormal,
		},
		{
			name: "saturated host clamps to one",
			global: snapshot.GlobalMetrics{
				LoadAvgOne:      16,
				PSICPUSomeAvg10: pointer.Float64(1),
				PSIIOSomeAvg10:  pointer.Float64(1),
				PSIMemSomeAvg10: pointer.Float64(1),
				MemTotalKB:      1000,
				MemAvailableKB:  0,
			},
			cpuCount:  4,
			wantLevel: 1,
			wantRatio: 1,
			wantCat:   LoadCategoryHigh,
		},
		{
			name:      "zero cpus counts as one",
			global:    snapshot.GlobalMetrics{LoadAvgOne: 1.5},
			cpuCount:  0,
			wantLevel: 0.6,
			wantCat:   LoadCategoryMedium,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := NewSystemLoadInfo(tt.global, tt.cpuCount)
			assert.InDelta(t, tt.wantLevel, info.LoadLevel, 1e-9)
			assert.InDelta(t, tt.wantRatio, info.MemoryUsageRatio, 1e-9)
			assert.Equal(t, tt.wantCat, info.Category())
			assert.GreaterOrEqual(t, info.LoadLevel, 0.0)
			assert.LessOrEqual(t, info.LoadLevel, 1.0)
		})
	}
}

func TestCategoryThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level float64
		want  LoadCategory
	}{
		{0, LoadCategoryLow},
		{0.39, LoadCategoryLow},
		{0.4, LoadCategoryNormal},
		{0.59, LoadCategoryNormal},
		{0.6, LoadCategoryMedium},
		{0.79, LoadCategoryMedium},
		{0.8, LoadCategoryHigh},
		{1, LoadCategoryHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SystemLoadInfo{LoadLevel: tt.level}.Category(), "level %v", tt.level)
	}
}

func allClasses() map[string]class.PriorityClass {
	base := make(map[string]class.PriorityClass, len(class.All))
	for _, c := range class.All {
		base[c.String()] = c
	}
	return base
}

func TestScalePriorities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		level float64
		want  map[class.PriorityClass]class.PriorityClass
	}{
		{
			name:  "low is identity",
			level: 0.1,
			want: map[class.PriorityClass]class.PriorityClass{
				class.CritInteractive: class.CritInteractive, class.Interactive: class.Interactive,
				class.Normal: class.Normal, class.Background: class.Background, class.Idle: class.Idle,
			},
		},
		{
			name:  "normal is identity",
			level: 0.5,
			want: map[class.PriorityClass]class.PriorityClass{
				class.CritInteractive: class.CritInteractive, class.Interactive: class.Interactive,
				class.Normal: class.Normal, class.Background: class.Background, class.Idle: class.Idle,
			},
		},
		{
			name:  "medium",
			level: 0.7,
			want: map[class.PriorityClass]class.PriorityClass{
				class.CritInteractive: class.CritInteractive, class.Interactive: class.Interactive,
				class.Normal: class.Background, class.Background: class.Idle, class.Idle: class.Idle,
			},
		},
		{
			name:  "high",
			level: 0.9,
			want: map[class.PriorityClass]class.PriorityClass{
				class.CritInteractive: class.CritInteractive, class.Interactive: class.Normal,
				class.Normal: class.Background, class.Background: class.Idle, class.Idle: class.Idle,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := SystemLoadInfo{LoadLevel: tt.level}
			base := allClasses()
			scaled := ScalePriorities(info, base)

			require.Len(t, scaled, len(base))
			for id, c := range base {
				got := scaled[id]
				assert.Equal(t, tt.want[c], got, "class %v", c)
				assert.LessOrEqual(t, class.Distance(c, got), 1)
				assert.False(t, c.Less(got), "scaling never raises a class")
			}
			assert.Equal(t, allClasses(), base, "input is not modified")
		})
	}
}

func TestShouldScale(t *testing.T) {
	t.Parallel()

	assert.False(t, ShouldScale(SystemLoadInfo{LoadLevel: 0.1}))
	assert.False(t, ShouldScale(SystemLoadInfo{LoadLevel: 0.5}))
	assert.True(t, ShouldScale(SystemLoadInfo{LoadLevel: 0.6}))
	assert.True(t, ShouldScale(SystemLoadInfo{LoadLevel: 0.95}))
}

func TestScalePolicyResults(t *testing.T) {
	t.Parallel()

	results := map[string]policy.PolicyResult{
		"browser": {Class: class.Interactive, Reason: "focused"},
		"build":   {Class: class.Normal, Reason: "compiler"},
		"audio":   {Class: class.CritInteractive, Reason: "audio"},
	}

	scaled := ScalePolicyResults(SystemLoadInfo{LoadLevel: 0.7}, results)
	require.Len(t, scaled, 3)
	assert.Equal(t, policy.PolicyResult{Class: class.Interactive, Reason: "focused"}, scaled["browser"])
	assert.Equal(t, class.Background, scaled["build"].Class)
	assert.Equal(t, "compiler (scaled NORMAL->BACKGROUND under medium load)", scaled["build"].Reason)
	assert.Equal(t, class.CritInteractive, scaled["audio"].Class)
	assert.Equal(t, class.Normal, results["build"].Class)
}
