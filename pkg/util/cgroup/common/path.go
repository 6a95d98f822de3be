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
	"path/filepath"
	"regexp"
	"strings"
)

var invalidCgroupNameChars = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// GetCgroupRootPath get cgroupfs root path compatible with v1 and v2
func GetCgroupRootPath(subsys string) string {
	if CheckCgroup2UnifiedMode() {
		return CgroupFSMountPoint
	}

	return filepath.Join(CgroupFSMountPoint, subsys)
}

// AppGroupCgroupName returns the leaf directory name used for an app group.
// Characters that are not safe in a path element are replaced by '_'.
func AppGroupCgroupName(appGroupID string) (string, error) {
	if strings.TrimSpace(appGroupID) == "" {
		return "", fmt.Errorf("empty app group id")
	}
	return AppGroupCgroupPrefix + invalidCgroupNameChars.ReplaceAllString(appGroupID, "_"), nil
}

// GetAppGroupAbsCgroupPath joins root, parent and the app group leaf.
func GetAppGroupAbsCgroupPath(root, parent, appGroupID string) (string, error) {
	name, err := AppGroupCgroupName(appGroupID)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.Clean("/"+parent), name), nil
}
