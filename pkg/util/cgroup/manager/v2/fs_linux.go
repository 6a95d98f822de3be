//go:build linux
// +build linux

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

package v2

import (
	"fmt"
	"path/filepath"
	"strconv"

	libcgroups "github.com/opencontainers/runc/libcontainer/cgroups"
	"k8s.io/klog/v2"

	"github.com/smoothtask/smoothtask-core/pkg/util/cgroup/common"
)

const (
	minCPUWeight = 1
	maxCPUWeight = 10000
)

type manager struct{}

// NewManager return a manager for cgroupv2
func NewManager() *manager {
	return &manager{}
}

func (m *manager) ApplyCPU(absCgroupPath string, data *common.CPUData) error {
	if data.Weight == 0 {
		return nil
	}
	if data.Weight < minCPUWeight || data.Weight > maxCPUWeight {
		return fmt.Errorf("cpu weight %d out of range [%d, %d]", data.Weight, minCPUWeight, maxCPUWeight)
	}

	if err, applied, oldData := common.InstrumentedWriteFileIfChange(absCgroupPath, common.CgroupCPUWeightFile, strconv.FormatUint(data.Weight, 10)); err != nil {
		return err
	} else if applied {
		klog.Infof("[CgroupV2] apply cpu weight successfully, cgroupPath: %s, data: %v, old data: %v\n", absCgroupPath, data.Weight, oldData)
	}
	return nil
}

func (m *manager) GetCPU(absCgroupPath string) (*common.CPUStats, error) {
	weight, err := common.GetCgroupParamInt(absCgroupPath, common.CgroupCPUWeightFile)
	if err != nil {
		return nil, err
	}
	return &common.CPUStats{Weight: uint64(weight)}, nil
}

func (m *manager) EnableCPUController(absCgroupPath string) error {
	applied, err := common.EnsureSubtreeControl(absCgroupPath, common.CgroupSubsysCPU)
	if err != nil {
		return err
	}
	if applied {
		klog.Infof("[CgroupV2] enabled cpu controller for children of %s", absCgroupPath)
	}
	return nil
}

func (m *manager) AddProcess(absCgroupPath string, pid int) error {
	pids, err := m.GetPids(absCgroupPath)
	if err != nil {
		return err
	}

	p := strconv.Itoa(pid)
	for _, existing := range pids {
		if existing == p {
			return nil
		}
	}

	if err := libcgroups.WriteFile(absCgroupPath, common.CgroupProcsFile, p); err != nil {
		return err
	}
	klog.V(4).Infof("[CgroupV2] moved pid %d into %s", pid, absCgroupPath)
	return nil
}

func (m *manager) GetPids(absCgroupPath string) ([]string, error) {
	return common.ReadTasksFile(filepath.Join(absCgroupPath, common.CgroupProcsFile))
}
