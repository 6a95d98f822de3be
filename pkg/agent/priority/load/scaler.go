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

package load

import (
	"fmt"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/policy"
)

// ShouldScale is true only for medium and high load.
func ShouldScale(info SystemLoadInfo) bool {
	switch info.Category() {
	case LoadCategoryMedium, LoadCategoryHigh:
		return true
	default:
		return false
	}
}

// scaleClass moves a class at most one step toward Idle.
// CritInteractive is never touched; Interactive only gives way under high load.
func scaleClass(category LoadCategory, c class.PriorityClass) class.PriorityClass {
	switch category {
	case LoadCategoryHigh:
		switch c {
		case class.Interactive, class.Normal, class.Background:
			return c.Downgrade()
		}
	case LoadCategoryMedium:
		switch c {
		case class.Normal, class.Background:
			return c.Downgrade()
		}
	}
	return c
}

// ScalePriorities returns a new map with the same keys; base is never modified.
func ScalePriorities(info SystemLoadInfo, base map[string]class.PriorityClass) map[string]class.PriorityClass {
	category := info.Category()
	scaled := make(map[string]class.PriorityClass, len(base))
	for appGroupID, c := range base {
		scaled[appGroupID] = scaleClass(category, c)
	}
	return scaled
}

// ScalePolicyResults is ScalePriorities over policy results; the reason of
// every downgraded group records the load category that caused it.
func ScalePolicyResults(info SystemLoadInfo, results map[string]policy.PolicyResult) map[string]policy.PolicyResult {
	base := make(map[string]class.PriorityClass, len(results))
	for appGroupID, result := range results {
		base[appGroupID] = result.Class
	}

	scaled := ScalePriorities(info, base)
	out := make(map[string]policy.PolicyResult, len(results))
	for appGroupID, result := range results {
		target := scaled[appGroupID]
		if target != result.Class {
			result.Reason = fmt.Sprintf("%s (scaled %v->%v under %v load)", result.Reason, result.Class, target, info.Category())
			result.Class = target
		}
		out[appGroupID] = result
	}
	return out
}
