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

package global

import (
	"fmt"

	cliflag "k8s.io/component-base/cli/flag"

	"github.com/smoothtask/smoothtask-core/pkg/config/agent/global"
)

// BaseOptions holds the configurations shared by all agent components.
type BaseOptions struct {
	ProcfsRoot   string
	LockFileName string
}

func NewBaseOptions() *BaseOptions {
	return &BaseOptions{
		ProcfsRoot:   "/proc",
		LockFileName: "/run/smoothtask/agent.lock",
	}
}

// AddFlags adds flags to the specified FlagSet.
func (o *BaseOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("base")

	fs.StringVar(&o.ProcfsRoot, "procfs-root", o.ProcfsRoot, "the mount point of procfs")
	fs.StringVar(&o.LockFileName, "locking-file", o.LockFileName,
		"The filename used as unique lock; empty disables locking")
}

// ApplyTo fills up config with options
func (o *BaseOptions) ApplyTo(c *global.BaseConfiguration) error {
	if o.ProcfsRoot == "" {
		return fmt.Errorf("procfs-root must not be empty")
	}
	c.ProcfsRoot = o.ProcfsRoot
	c.LockFileName = o.LockFileName
	return nil
}
