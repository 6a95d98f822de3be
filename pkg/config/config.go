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

// Package config is the package that contains those important configurations
// for the smoothtask agent.
package config // import "github.com/smoothtask/smoothtask-core/pkg/config"

import (
	"github.com/smoothtask/smoothtask-core/pkg/config/agent"
	"github.com/smoothtask/smoothtask-core/pkg/config/generic"
)

// Configuration stores all the configurations needed by the agent;
// it is only modified by flags.
type Configuration struct {
	// those configurations for multi components
	*generic.GenericConfiguration

	// those configurations are used by agents
	*agent.GenericAgentConfiguration
	*agent.AgentConfiguration
}

func NewConfiguration() *Configuration {
	return &Configuration{
		GenericConfiguration:      generic.NewGenericConfiguration(),
		GenericAgentConfiguration: agent.NewGenericAgentConfiguration(),
		AgentConfiguration:        agent.NewAgentConfiguration(),
	}
}
