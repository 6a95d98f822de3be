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

// Package class is the static taxonomy of priority classes and
// the OS scheduling parameters each of them maps to.
package class // import "github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"

import (
	"fmt"
)

// PriorityClass is a closed set; the zero value is not a valid class.
type PriorityClass int

const (
	Idle PriorityClass = iota + 1
	Background
	Normal
	Interactive
	CritInteractive
)

// All lists every class from the most to the least important one.
var All = []PriorityClass{CritInteractive, Interactive, Normal, Background, Idle}

const (
	IOPrioClassRealtime   = 1
	IOPrioClassBestEffort = 2
	IOPrioClassIdle       = 3
)

// IONiceParams is the (class, level) pair passed to ioprio_set.
type IONiceParams struct {
	Class int `json:"class"`
	Level int `json:"level"`
}

func (p IONiceParams) String() string {
	return fmt.Sprintf("%d:%d", p.Class, p.Level)
}

// CgroupParams holds the cgroup v2 knobs of a class.
type CgroupParams struct {
	CPUWeight uint64 `json:"cpu_weight"`
}

// PriorityParams is what a class means to the kernel.
// Going down in rank, Nice and LatencyNice never decrease and CPUWeight never increases.
type PriorityParams struct {
	Nice        int          `json:"nice"`
	LatencyNice int          `json:"latency_nice"`
	IONice      IONiceParams `json:"ionice"`
	Cgroup      CgroupParams `json:"cgroup"`
}

var classParams = map[PriorityClass]PriorityParams{
	CritInteractive: {
		Nice:        -8,
		LatencyNice: -15,
		IONice:      IONiceParams{Class: IOPrioClassBestEffort, Level: 0},
		Cgroup:      CgroupParams{CPUWeight: 200},
	},
	Interactive: {
		Nice:        -4,
		LatencyNice: -10,
		IONice:      IONiceParams{Class: IOPrioClassBestEffort, Level: 2},
		Cgroup:      CgroupParams{CPUWeight: 150},
	},
	Normal: {
		Nice:        0,
		LatencyNice: 0,
		IONice:      IONiceParams{Class: IOPrioClassBestEffort, Level: 4},
		Cgroup:      CgroupParams{CPUWeight: 100},
	},
	Background: {
		Nice:        5,
		LatencyNice: 10,
		IONice:      IONiceParams{Class: IOPrioClassBestEffort, Level: 6},
		Cgroup:      CgroupParams{CPUWeight: 50},
	},
	Idle: {
		Nice:        10,
		LatencyNice: 15,
		IONice:      IONiceParams{Class: IOPrioClassIdle, Level: 0},
		Cgroup:      CgroupParams{CPUWeight: 25},
	},
}

var classNames = map[PriorityClass]string{
	CritInteractive: "CRIT_INTERACTIVE",
	Interactive:     "INTERACTIVE",
	Normal:          "NORMAL",
	Background:      "BACKGROUND",
	Idle:            "IDLE",
}

// Valid reports whether c is one of the five known classes.
func (c PriorityClass) Valid() bool {
	_, ok := classParams[c]
	return ok
}

// Params panics on an invalid class: classes only come from the constants above
// or from ParsePriorityClass.
func (c PriorityClass) Params() PriorityParams {
	params, ok := classParams[c]
	if !ok {
		panic(fmt.Sprintf("unknown priority class %d", int(c)))
	}
	return params
}

// Rank is the severity rank, 5 for CritInteractive down to 1 for Idle.
func (c PriorityClass) Rank() int {
	return int(c)
}

// Less orders classes by rank.
func (c PriorityClass) Less(other PriorityClass) bool {
	return c.Rank() < other.Rank()
}

// Compare returns -1, 0 or 1 when a ranks below, equal to or above b.
func Compare(a, b PriorityClass) int {
	switch {
	case a.Rank() < b.Rank():
		return -1
	case a.Rank() > b.Rank():
		return 1
	default:
		return 0
	}
}

// Distance is the number of rank steps between two classes.
func Distance(a, b PriorityClass) int {
	d := a.Rank() - b.Rank()
	if d < 0 {
		return -d
	}
	return d
}

// Downgrade moves one step toward Idle; Idle stays Idle.
func (c PriorityClass) Downgrade() PriorityClass {
	switch c {
	case CritInteractive:
		return Interactive
	case Interactive:
		return Normal
	case Normal:
		return Background
	case Background, Idle:
		return Idle
	}
	return c
}

func (c PriorityClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("PriorityClass(%d)", int(c))
}

// ParsePriorityClass is the inverse of String for the five known names.
func ParsePriorityClass(s string) (PriorityClass, bool) {
	switch s {
	case "CRIT_INTERACTIVE":
		return CritInteractive, true
	case "INTERACTIVE":
		return Interactive, true
	case "NORMAL":
		return Normal, true
	case "BACKGROUND":
		return Background, true
	case "IDLE":
		return Idle, true
	}
	return 0, false
}

func (c PriorityClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown priority class %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *PriorityClass) UnmarshalText(text []byte) error {
	parsed, ok := ParsePriorityClass(string(text))
	if !ok {
		return fmt.Errorf("unknown priority class %q", string(text))
	}
	*c = parsed
	return nil
}
