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

package generic

import (
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

// GenericConfiguration stores the configurations shared by all components.
type GenericConfiguration struct {
	DryRun             bool
	EnableHealthzCheck bool

	// GenericEndpoint serves prometheus, health check, stats and profiling
	GenericEndpoint string

	*MetricsConfiguration
	*LogConfiguration
}

type MetricsConfiguration struct {
	// MetricsNamespace prefixes every exported prometheus metric
	MetricsNamespace string
}

type LogConfiguration struct {
	LogPackageLevel general.LoggingPKG
}

func NewGenericConfiguration() *GenericConfiguration {
	return &GenericConfiguration{
		MetricsConfiguration: &MetricsConfiguration{},
		LogConfiguration:     &LogConfiguration{},
	}
}
