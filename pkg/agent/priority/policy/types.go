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

package policy

import (
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
)

// PolicyResult is the class decided for one app group and why.
type PolicyResult struct {
	Class  class.PriorityClass `json:"class"`
	Reason string              `json:"reason"`
}

// Engine decides a class per app group. It may assign AppGroupID on the
// snapshot processes it recognizes; results are keyed by that id.
type Engine interface {
	Evaluate(snap *snapshot.Snapshot) map[string]PolicyResult
}
