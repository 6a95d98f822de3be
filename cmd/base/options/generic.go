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

package options

import (
	"flag"
	"fmt"
	"net"
	"os"

	"k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/klog/v2"

	"github.com/smoothtask/smoothtask-core/pkg/config/generic"
)

// GenericOptions holds the configurations shared by every smoothtask binary.
type GenericOptions struct {
	DryRun             bool
	EnableHealthzCheck bool

	GenericEndpoint string

	metricsOptions *MetricsOptions
	logsOptions    *LogsOptions
}

func NewGenericOptions() *GenericOptions {
	return &GenericOptions{
		DryRun:             false,
		EnableHealthzCheck: false,
		GenericEndpoint:    ":9526",
		metricsOptions:     NewMetricsOptions(),
		logsOptions:        NewLogsOptions(),
	}
}

// AddFlags adds flags  to the specified FlagSet.
func (o *GenericOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("generic")

	local := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	klog.InitFlags(local)
	local.VisitAll(func(fl *flag.Flag) {
		fs.AddGoFlag(fl)
	})

	fs.BoolVar(&o.DryRun, "dry-run", o.DryRun,
		"A bool to enable and disable dry-run; in dry-run mode priority changes are logged but never applied.")
	fs.BoolVar(&o.EnableHealthzCheck, "enable-healthz-check", o.EnableHealthzCheck, "A bool to enable and disable healthz check.")

	fs.StringVar(&o.GenericEndpoint, "generic-endpoint", o.GenericEndpoint,
		"the endpoint of generic purpose, which will use as prometheus, health check, stats and profiling; empty disables it")

	o.metricsOptions.AddFlags(fs)
	o.logsOptions.AddFlags(fs)
}

// ApplyTo fills up config with options
func (o *GenericOptions) ApplyTo(c *generic.GenericConfiguration) error {
	c.DryRun = o.DryRun
	c.EnableHealthzCheck = o.EnableHealthzCheck

	errList := make([]error, 0, 3)
	if o.GenericEndpoint != "" {
		if _, _, err := net.SplitHostPort(o.GenericEndpoint); err != nil {
			errList = append(errList, fmt.Errorf("invalid generic-endpoint %q: %v", o.GenericEndpoint, err))
		}
	}
	c.GenericEndpoint = o.GenericEndpoint

	errList = append(errList, o.metricsOptions.ApplyTo(c.MetricsConfiguration))
	errList = append(errList, o.logsOptions.ApplyTo(c.LogConfiguration))

	return errors.NewAggregate(errList)
}
