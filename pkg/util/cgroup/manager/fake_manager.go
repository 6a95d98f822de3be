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
	"strconv"
	"sync"

	"github.com/smoothtask/smoothtask-core/pkg/util/cgroup/common"
)

// FakeCgroupManager keeps cgroup state in memory.
type FakeCgroupManager struct {
	sync.Mutex

	Weights map[string]uint64
	Procs   map[string][]string
	// CPUControllerEnabled holds every path EnableCPUController was called on, in call order.
	CPUControllerEnabled []string
	// Err, when set, is returned by every mutating call.
	Err error
}

var _ Manager = &FakeCgroupManager{}

func NewFakeCgroupManager() *FakeCgroupManager {
	return &FakeCgroupManager{
		Weights: make(map[string]uint64),
		Procs:   make(map[string][]string),
	}
}

func (f *FakeCgroupManager) ApplyCPU(absCgroupPath string, data *common.CPUData) error {
	f.Lock()
	defer f.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if data.Weight != 0 {
		f.Weights[absCgroupPath] = data.Weight
	}
	return nil
}

func (f *FakeCgroupManager) GetCPU(absCgroupPath string) (*common.CPUStats, error) {
	f.Lock()
	defer f.Unlock()
	w, ok := f.Weights[absCgroupPath]
	if !ok {
		return nil, fmt.Errorf("cgroup %v not found", absCgroupPath)
	}
	return &common.CPUStats{Weight: w}, nil
}

func (f *FakeCgroupManager) EnableCPUController(absCgroupPath string) error {
	f.Lock()
	defer f.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.CPUControllerEnabled = append(f.CPUControllerEnabled, absCgroupPath)
	return nil
}

func (f *FakeCgroupManager) AddProcess(absCgroupPath string, pid int) error {
	f.Lock()
	defer f.Unlock()
	if f.Err != nil {
		return f.Err
	}

	// a process lives in exactly one cgroup
	p := strconv.Itoa(pid)
	for path, pids := range f.Procs {
		for i, existing := range pids {
			if existing == p {
				f.Procs[path] = append(pids[:i:i], pids[i+1:]...)
				break
			}
		}
	}
	f.Procs[absCgroupPath] = append(f.Procs[absCgroupPath], p)
	return nil
}

func (f *FakeCgroupManager) GetPids(absCgroupPath string) ([]string, error) {
	f.Lock()
	defer f.Unlock()
	return append([]string(nil), f.Procs[absCgroupPath]...), nil
}
