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

package common

import (
	"fmt"
)

func ReadTasksFile(file string) ([]string, error) {
	return []string{}, fmt.Errorf("unsupported read file")
}

func GetCgroupParamInt(cgroupPath, cgroupFile string) (int64, error) {
	return 0, fmt.Errorf("unsupported read file")
}

func EnsureCgroupDir(absCgroupPath string) error {
	return fmt.Errorf("unsupported cgroup dir")
}

func EnsureSubtreeControl(absCgroupPath, controller string) (bool, error) {
	return false, fmt.Errorf("unsupported subtree control")
}

func InstrumentedWriteFileIfChange(dir, file, data string) (error, bool, string) {
	return fmt.Errorf("unsupported write file"), false, ""
}

func CheckCgroup2UnifiedMode() bool {
	return false
}
