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
	"time"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
)

// PriorityConfiguration is the configuration of the priority manager.
type PriorityConfiguration struct {
	SyncPeriod time.Duration

	HysteresisMinInterval        time.Duration
	HysteresisMinClassDifference int

	EnableDynamicScaling bool

	EnableCgroupWeight bool
	CgroupParent       string

	PolicyRulesFile   string
	EnableRulesReload bool
	// DefaultPriorityClass is nil when unmatched processes are left alone
	DefaultPriorityClass *class.PriorityClass

	// StatusReportIntervalTicks is how many ticks pass between two status notifications
	StatusReportIntervalTicks int
}

func NewPriorityConfiguration() *PriorityConfiguration {
	return &PriorityConfiguration{}
}
