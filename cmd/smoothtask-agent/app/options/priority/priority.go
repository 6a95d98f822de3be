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

	"k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/actuator"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/config/agent/priority"
)

const maxClassDifference = 4

// PriorityOptions holds the configurations for the priority control loop.
type PriorityOptions struct {
	SyncPeriod time.Duration

	HysteresisMinInterval        time.Duration
	HysteresisMinClassDifference int

	EnableDynamicScaling bool

	EnableCgroupWeight bool
	CgroupParent       string

	PolicyRulesFile      string
	EnableRulesReload    bool
	DefaultPriorityClass string

	StatusReportIntervalTicks int
}

func NewPriorityOptions() *PriorityOptions {
	return &PriorityOptions{
		SyncPeriod:                   time.Second,
		HysteresisMinInterval:        actuator.DefaultHysteresisMinInterval,
		HysteresisMinClassDifference: actuator.DefaultHysteresisMinClassDifference,
		EnableDynamicScaling:         true,
		EnableCgroupWeight:           false,
		CgroupParent:                 "smoothtask",
		PolicyRulesFile:              "/etc/smoothtask/rules.yaml",
		EnableRulesReload:            true,
		StatusReportIntervalTicks:    60,
	}
}

// AddFlags adds flags to the specified FlagSet.
func (o *PriorityOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("priority")

	fs.DurationVar(&o.SyncPeriod, "priority-sync-period", o.SyncPeriod,
		"the period of collecting a snapshot and re-applying priorities")
	fs.DurationVar(&o.HysteresisMinInterval, "hysteresis-min-interval", o.HysteresisMinInterval,
		"the minimum time between two priority changes of the same process")
	fs.IntVar(&o.HysteresisMinClassDifference, "hysteresis-min-class-difference", o.HysteresisMinClassDifference,
		"the minimum rank distance between the last applied class and a new one")
	fs.BoolVar(&o.EnableDynamicScaling, "enable-dynamic-scaling", o.EnableDynamicScaling,
		"if set, non-critical classes are downgraded one step under medium or high system load")
	fs.BoolVar(&o.EnableCgroupWeight, "enable-cgroup-weight", o.EnableCgroupWeight,
		"if set, each app group gets a cgroup v2 child with the cpu.weight of its class")
	fs.StringVar(&o.CgroupParent, "cgroup-parent", o.CgroupParent,
		"the cgroup, relative to the cgroup v2 root, app group cgroups are created under")
	fs.StringVar(&o.PolicyRulesFile, "policy-rules-file", o.PolicyRulesFile,
		"the YAML file mapping processes to app groups and classes")
	fs.BoolVar(&o.EnableRulesReload, "enable-rules-reload", o.EnableRulesReload,
		"if set, the rules file is reloaded whenever it changes")
	fs.StringVar(&o.DefaultPriorityClass, "default-priority-class", o.DefaultPriorityClass,
		fmt.Sprintf("the class of processes no rule matched, one of %v; empty leaves them alone", class.All))
	fs.IntVar(&o.StatusReportIntervalTicks, "status-report-interval-ticks", o.StatusReportIntervalTicks,
		"how many ticks pass between two status reports to systemd; 0 disables them")
}

// ApplyTo fills up config with options
func (o *PriorityOptions) ApplyTo(c *priority.PriorityConfiguration) error {
	var errList []error

	if o.SyncPeriod <= 0 {
		errList = append(errList, fmt.Errorf("priority-sync-period must be positive, got %v", o.SyncPeriod))
	}
	if o.HysteresisMinInterval < 0 {
		errList = append(errList, fmt.Errorf("hysteresis-min-interval must not be negative, got %v", o.HysteresisMinInterval))
	}
	if o.HysteresisMinClassDifference < 0 || o.HysteresisMinClassDifference > maxClassDifference {
		errList = append(errList, fmt.Errorf("hysteresis-min-class-difference must be in [0, %d], got %d",
			maxClassDifference, o.HysteresisMinClassDifference))
	}
	if o.StatusReportIntervalTicks < 0 {
		errList = append(errList, fmt.Errorf("status-report-interval-ticks must not be negative, got %d", o.StatusReportIntervalTicks))
	}
	if o.EnableCgroupWeight && o.CgroupParent == "" {
		errList = append(errList, fmt.Errorf("cgroup-parent must be set when cgroup weight is enabled"))
	}

	c.DefaultPriorityClass = nil
	if o.DefaultPriorityClass != "" {
		defaultClass, ok := class.ParsePriorityClass(o.DefaultPriorityClass)
		if !ok {
			errList = append(errList, fmt.Errorf("unknown default-priority-class %q", o.DefaultPriorityClass))
		} else {
			c.DefaultPriorityClass = &defaultClass
		}
	}

	c.SyncPeriod = o.SyncPeriod
	c.HysteresisMinInterval = o.HysteresisMinInterval
	c.HysteresisMinClassDifference = o.HysteresisMinClassDifference
	c.EnableDynamicScaling = o.EnableDynamicScaling
	c.EnableCgroupWeight = o.EnableCgroupWeight
	c.CgroupParent = o.CgroupParent
	c.PolicyRulesFile = o.PolicyRulesFile
	c.EnableRulesReload = o.EnableRulesReload
	c.StatusReportIntervalTicks = o.StatusReportIntervalTicks

	return errors.NewAggregate(errList)
}
