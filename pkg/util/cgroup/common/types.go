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

package common

const (
	// CgroupFSMountPoint default cgroup mount point
	CgroupFSMountPoint = "/sys/fs/cgroup"

	CgroupSubsysCPU = "cpu"

	// CgroupProcsFile process id file for cgroupv2
	CgroupProcsFile = "cgroup.procs"
	// CgroupSubtreeControlFile lists the controllers delegated to child cgroups
	CgroupSubtreeControlFile = "cgroup.subtree_control"
	// CgroupCPUWeightFile is the cgroupv2 proportional cpu share, in [1, 10000]
	CgroupCPUWeightFile = "cpu.weight"

	// AppGroupCgroupPrefix prefixes the leaf cgroup created per app group
	AppGroupCgroupPrefix = "app-"
)

// CPUData is the cpu configuration applied to a cgroup;
// zero fields are left untouched.
type CPUData struct {
	Weight uint64
}

// CPUStats is the cpu configuration read back from a cgroup.
type CPUStats struct {
	Weight uint64
}
