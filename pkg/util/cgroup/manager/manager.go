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

package manager

import (
	"fmt"
	"sync"

	"github.com/smoothtask/smoothtask-core/pkg/util/cgroup/common"
	v2 "github.com/smoothtask/smoothtask-core/pkg/util/cgroup/manager/v2"
)

var (
	initManagerOnce sync.Once
	manager         Manager
	managerErr      error
)

// Manager cgroup operation interface. Only the unified hierarchy is
// supported: cpu.weight does not exist on v1.
type Manager interface {
	ApplyCPU(absCgroupPath string, data *common.CPUData) error
	GetCPU(absCgroupPath string) (*common.CPUStats, error)
	// EnableCPUController makes cpu.weight available in the children of absCgroupPath.
	EnableCPUController(absCgroupPath string) error

	// AddProcess moves pid into the cgroup unless it is already a member.
	AddProcess(absCgroupPath string, pid int) error
	GetPids(absCgroupPath string) ([]string, error)
}

// GetManager returns the cgroupv2 manager, or an error on hosts without the unified hierarchy.
func GetManager() (Manager, error) {
	initManagerOnce.Do(func() {
		if !common.CheckCgroup2UnifiedMode() {
			managerErr = fmt.Errorf("cgroup v2 unified hierarchy is not mounted at %v", common.CgroupFSMountPoint)
			return
		}
		manager = v2.NewManager()
	})
	return manager, managerErr
}
