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

package actuator

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/util/cgroup/common"
	cgroupmgr "github.com/smoothtask/smoothtask-core/pkg/util/cgroup/manager"
)

// CgroupApplier places a process into the cgroup of its app group.
// Its errors are logged by the actuator and never counted.
type CgroupApplier interface {
	Apply(pid int, appGroupID string, params class.CgroupParams) error
}

// NoopCgroupApplier only logs what it would do.
type NoopCgroupApplier struct{}

func (NoopCgroupApplier) Apply(pid int, appGroupID string, params class.CgroupParams) error {
	logger.InfofV(5, "cgroup weight not applied for pid %d (app group %s, cpu.weight %d)", pid, appGroupID, params.CPUWeight)
	return nil
}

// CgroupV2Applier keeps one leaf cgroup per app group under <root>/<parent>.
// The cpu controller is delegated down from root to every leaf's parent.
type CgroupV2Applier struct {
	root    string
	parent  string
	manager cgroupmgr.Manager

	// delegated holds the paths whose subtree_control already carries cpu
	delegated sets.String
}

// NewCgroupV2Applier fails when the unified hierarchy is not available.
func NewCgroupV2Applier(parent string) (*CgroupV2Applier, error) {
	mgr, err := cgroupmgr.GetManager()
	if err != nil {
		return nil, err
	}
	return NewCgroupV2ApplierWithManager(common.GetCgroupRootPath(common.CgroupSubsysCPU), parent, mgr), nil
}

func NewCgroupV2ApplierWithManager(root, parent string, mgr cgroupmgr.Manager) *CgroupV2Applier {
	return &CgroupV2Applier{
		root:      root,
		parent:    parent,
		manager:   mgr,
		delegated: sets.NewString(),
	}
}

func (c *CgroupV2Applier) Apply(pid int, appGroupID string, params class.CgroupParams) error {
	absPath, err := common.GetAppGroupAbsCgroupPath(c.root, c.parent, appGroupID)
	if err != nil {
		return err
	}

	if err := common.EnsureCgroupDir(absPath); err != nil {
		return errors.Wrapf(err, "create cgroup %v", absPath)
	}
	if err := c.delegateCPU(filepath.Dir(absPath)); err != nil {
		return err
	}
	if err := c.manager.ApplyCPU(absPath, &common.CPUData{Weight: params.CPUWeight}); err != nil {
		return errors.Wrapf(err, "apply cpu.weight %d to %v", params.CPUWeight, absPath)
	}
	if err := c.manager.AddProcess(absPath, pid); err != nil {
		return errors.Wrapf(err, "move pid %d into %v", pid, absPath)
	}
	return nil
}

// delegateCPU enables the cpu controller top-down on root and every
// cgroup between root and dir, dir included.
func (c *CgroupV2Applier) delegateCPU(dir string) error {
	for _, p := range delegationPaths(c.root, dir) {
		if c.delegated.Has(p) {
			continue
		}
		if err := c.manager.EnableCPUController(p); err != nil {
			return errors.Wrapf(err, "enable cpu controller in %v", p)
		}
		c.delegated.Insert(p)
	}
	return nil
}

func delegationPaths(root, dir string) []string {
	paths := []string{root}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return paths
	}

	current := root
	for _, elem := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, elem)
		paths = append(paths, current)
	}
	return paths
}
