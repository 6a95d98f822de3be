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
	"k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/smoothtask/smoothtask-core/cmd/base/options"
	"github.com/smoothtask/smoothtask-core/cmd/smoothtask-agent/app/options/global"
	"github.com/smoothtask/smoothtask-core/cmd/smoothtask-agent/app/options/priority"
	"github.com/smoothtask/smoothtask-core/pkg/config"
)

// Options holds the configurations for smoothtask agent.
type Options struct {
	// those are options used by all the smoothtask components
	*options.GenericOptions

	// those are options used by all the agent components
	*global.BaseOptions

	priorityOptions *priority.PriorityOptions
}

// NewOptions creates a new Options with a default config.
func NewOptions() *Options {
	return &Options{
		GenericOptions:  options.NewGenericOptions(),
		BaseOptions:     global.NewBaseOptions(),
		priorityOptions: priority.NewPriorityOptions(),
	}
}

// AddFlags adds flags  to the specified FlagSet.
func (o *Options) AddFlags(fss *cliflag.NamedFlagSets) {
	o.GenericOptions.AddFlags(fss)
	o.BaseOptions.AddFlags(fss)
	o.priorityOptions.AddFlags(fss)
}

// ApplyTo fills up config with options
func (o *Options) ApplyTo(c *config.Configuration) error {
	var errList []error

	errList = append(errList, o.GenericOptions.ApplyTo(c.GenericConfiguration))
	errList = append(errList, o.BaseOptions.ApplyTo(c.BaseConfiguration))
	errList = append(errList, o.priorityOptions.ApplyTo(c.PriorityConfiguration))

	return errors.NewAggregate(errList)
}

// Config returns a new configuration instance.
func (o *Options) Config() (*config.Configuration, error) {
	c := config.NewConfiguration()
	if err := o.ApplyTo(c); err != nil {
		return nil, err
	}
	return c, nil
}
