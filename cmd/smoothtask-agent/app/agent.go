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

package app

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	smoothtaskbase "github.com/smoothtask/smoothtask-core/cmd/base"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority"
	"github.com/smoothtask/smoothtask-core/pkg/config"
	"github.com/smoothtask/smoothtask-core/pkg/metrics"
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
	"github.com/smoothtask/smoothtask-core/pkg/util/process"
)

const (
	metricsNameAgentStarted = "agent_started"

	statsPath = "/stats"
)

// Run starts the generic endpoint and the priority manager, and blocks
// until the first shutdown signal.
func Run(conf *config.Configuration) error {
	// Set up signals so that we handle the first shutdown signal gracefully.
	ctx := process.SetupSignalHandler()

	if conf.LockFileName != "" {
		lock, err := general.GetUniqueLock(conf.LockFileName)
		if err != nil {
			return err
		}
		defer general.ReleaseUniqueLock(lock)
	}

	baseCtx, err := smoothtaskbase.NewGenericContext(conf.GenericConfiguration)
	if err != nil {
		return err
	}

	manager, err := priority.NewPriorityManager(conf, baseCtx.GetDefaultMetricsEmitter(), process.NewSystemdNotifier())
	if err != nil {
		return err
	}
	baseCtx.HandleJSON(statsPath, func() interface{} {
		return manager.Stats().Snapshot()
	})

	startAgent(ctx, baseCtx, manager)
	return nil
}

// startAgent returns once every component has stopped.
func startAgent(ctx context.Context, baseCtx *smoothtaskbase.GenericContext, manager *priority.PriorityManager) {
	_ = baseCtx.GetDefaultMetricsEmitter().StoreInt64(metricsNameAgentStarted, 1, metrics.MetricTypeNameCount)

	// start generic ctx first
	baseCtx.Run(ctx)

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		manager.Run(ctx)
		klog.Infof("component %q stopped", priority.PriorityManagerName)
	}()
	klog.Infof("started %q", priority.PriorityManagerName)

	wg.Wait()
}
