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

package agent

import (
	"github.com/smoothtask/smoothtask-core/pkg/config/agent/global"
	"github.com/smoothtask/smoothtask-core/pkg/config/agent/priority"
)

type GenericAgentConfiguration struct {
	// those configurations should be used as generic configurations, and
	// be shared by all agent components.
	*global.BaseConfiguration
}

type AgentConfiguration struct {
	*priority.PriorityConfiguration
}

func NewGenericAgentConfiguration() *GenericAgentConfiguration {
	return &GenericAgentConfiguration{
		BaseConfiguration: global.NewBaseConfiguration(),
	}
}

func NewAgentConfiguration() *AgentConfiguration {
	return &AgentConfiguration{
		PriorityConfiguration: priority.NewPriorityConfiguration(),
	}
}
