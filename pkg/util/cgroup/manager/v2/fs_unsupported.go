//go:build !linux
// +build !linux

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

	"github.com/smoothtask/smoothtask-core/pkg/util/cgroup/common"
)

type unsupportedManager struct{}

// NewManager return a manager for cgroupv2
func NewManager() *unsupportedManager {
	return &unsupportedManager{}
}

func (m *unsupportedManager) ApplyCPU(_ string, _ *common.CPUData) error {
	return fmt.Errorf("unsupported manager v2")
}

func (m *unsupportedManager) GetCPU(_ string) (*common.CPUStats, error) {
	return nil, fmt.Errorf("unsupported manager v2")
}

func (m *unsupportedManager) EnableCPUController(_ string) error {
	return fmt.Errorf("unsupported manager v2")
}

func (m *unsupportedManager) AddProcess(_ string, _ int) error {
	return fmt.Errorf("unsupported manager v2")
}

func (m *unsupportedManager) GetPids(_ string) ([]string, error) {
	return nil, fmt.Errorf("unsupported manager v2")
}
