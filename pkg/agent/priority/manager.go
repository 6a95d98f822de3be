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

// Package priority runs the control loop that keeps app group priorities applied:
// snapshot, policy, load scaling, planning, hysteresis and actuation on every tick.
package priority // import "github.com/smoothtask/smoothtask-core/pkg/agent/priority"

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/actuator"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/load"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/policy"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
	"github.com/smoothtask/smoothtask-core/pkg/config"
	priorityconfig "github.com/smoothtask/smoothtask-core/pkg/config/agent/priority"
	"github.com/smoothtask/smoothtask-core/pkg/metrics"
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

const (
	PriorityManagerName = "priority-manager"

	// HealthzCheckName turns not ready when snapshots keep failing.
	HealthzCheckName general.HealthzCheckName = "PriorityManagerTick"

	healthzTolerationTicks = 10
)

const (
	metricsNameTickDuration      = "priority_tick_duration_ms"
	metricsNameTickFailed        = "priority_tick_failed"
	metricsNameLoadLevel         = "priority_load_level"
	metricsNameAdjustmentPlanned = "priority_adjustment_planned"
	metricsNameApplied           = "priority_adjustment_applied"
	metricsNameSkipped           = "priority_adjustment_skipped_hysteresis"
	metricsNameApplyErrors       = "priority_adjustment_errors"
	metricsNameTrackedProcesses  = "priority_hysteresis_tracked_processes"
	metricsNameSnapshotProcesses = "priority_snapshot_processes"

	metricsTagKeyCategory = "category"
)

// StatusNotifier receives readiness and periodic status, e.g. the systemd notify socket.
type StatusNotifier interface {
	NotifyReady() error
	NotifyStatus(status string) error
}

type noopNotifier struct{}

func (noopNotifier) NotifyReady() error        { return nil }
func (noopNotifier) NotifyStatus(string) error { return nil }

// PriorityManager owns the hysteresis tracker; every field except stats is
// only touched from the sync goroutine.
type PriorityManager struct {
	conf *priorityconfig.PriorityConfiguration

	collector  snapshot.Provider
	engine     policy.Engine
	actuator   *actuator.Actuator
	hysteresis *actuator.HysteresisTracker

	// rulesWatcher reloads the rules behind engine; nil when reload is disabled
	rulesWatcher interface{ Run(ctx context.Context) }

	emitter  metrics.MetricEmitter
	notifier StatusNotifier
	clock    clock.Clock

	healthzName general.HealthzCheckName
	readyOnce   sync.Once
	ticks       uint64
	stats       *Stats
}

// NewPriorityManager wires the real procfs collector, rule engine and syscall
// provider from conf. notifier may be nil.
func NewPriorityManager(conf *config.Configuration, emitter metrics.MetricEmitter,
	notifier StatusNotifier,
) (*PriorityManager, error) {
	provider := actuator.NewSyscallProvider()
	if conf.DryRun {
		general.Infof("dry-run enabled, priority changes are only logged")
		provider = actuator.NewDryRunSyscallProvider(provider)
	}

	collector, err := snapshot.NewCollector(conf.ProcfsRoot, provider, nil)
	if err != nil {
		return nil, err
	}

	engine, err := policy.NewFileRuleEngine(conf.PolicyRulesFile, conf.DefaultPriorityClass)
	if err != nil {
		return nil, errors.Wrapf(err, "load rules file %v", conf.PolicyRulesFile)
	}

	cgroupApplier, err := newCgroupApplier(conf)
	if err != nil {
		return nil, err
	}

	clk := clock.RealClock{}
	hysteresis := actuator.NewHysteresisTracker(conf.HysteresisMinInterval, conf.HysteresisMinClassDifference, clk)

	m := newPriorityManager(conf.PriorityConfiguration, collector, engine,
		actuator.NewActuator(provider, cgroupApplier), hysteresis, emitter, notifier, clk)
	if conf.EnableRulesReload {
		m.rulesWatcher = engine
	}
	return m, nil
}

func newPriorityManager(conf *priorityconfig.PriorityConfiguration, collector snapshot.Provider,
	engine policy.Engine, act *actuator.Actuator, hysteresis *actuator.HysteresisTracker,
	emitter metrics.MetricEmitter, notifier StatusNotifier, clk clock.Clock,
) *PriorityManager {
	if emitter == nil {
		emitter = metrics.DummyMetrics{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &PriorityManager{
		conf:        conf,
		collector:   collector,
		engine:      engine,
		actuator:    act,
		hysteresis:  hysteresis,
		emitter:     emitter.WithTags(PriorityManagerName),
		notifier:    notifier,
		clock:       clk,
		healthzName: HealthzCheckName,
		stats:       NewStats(),
	}
}

func newCgroupApplier(conf *config.Configuration) (actuator.CgroupApplier, error) {
	if !conf.EnableCgroupWeight {
		return actuator.NoopCgroupApplier{}, nil
	}
	if conf.DryRun {
		general.Warningf("cgroup weight is not written in dry-run mode")
		return actuator.NoopCgroupApplier{}, nil
	}
	applier, err := actuator.NewCgroupV2Applier(conf.CgroupParent)
	if err != nil {
		return nil, err
	}
	return applier, nil
}

// Stats is safe to read while Run is in progress.
func (m *PriorityManager) Stats() *Stats {
	return m.stats
}

// Run blocks until ctx is done and the tick in progress, if any, has finished.
func (m *PriorityManager) Run(ctx context.Context) {
	general.RegisterHeartbeatCheck(m.healthzName, healthzTolerationTicks*m.conf.SyncPeriod,
		general.HealthzCheckStateNotReady)
	defer general.UnregisterHeartbeatCheck(m.healthzName)

	if m.rulesWatcher != nil {
		go m.rulesWatcher.Run(ctx)
	}

	general.Infof("priority manager started, sync period %v", m.conf.SyncPeriod)
	wait.UntilWithContext(ctx, m.sync, m.conf.SyncPeriod)
	general.Infof("priority manager stopped, %s", m.stats.Snapshot().Status())
}

func (m *PriorityManager) sync(ctx context.Context) {
	start := m.clock.Now()
	m.ticks++

	snap, err := m.collector.Collect(ctx)
	if err != nil {
		general.Errorf("collect snapshot failed: %v", err)
		m.stats.recordError()
		_ = m.emitter.StoreInt64(metricsNameTickFailed, 1, metrics.MetricTypeNameCount)
		_ = general.UpdateHealthzState(m.healthzName, general.HealthzCheckStateNotReady, err.Error())
		return
	}

	results := m.engine.Evaluate(snap)
	general.InfofV(6, "policy groups: %v", lo.Keys(results))

	info := load.NewSystemLoadInfo(snap.Global, snap.Global.CPUCount)
	if m.conf.EnableDynamicScaling && load.ShouldScale(info) {
		general.InfofV(4, "scaling priorities under %v", info)
		results = load.ScalePolicyResults(info, results)
	}

	adjustments := actuator.PlanPriorityChanges(snap, results)
	result := m.actuator.ApplyPriorityAdjustments(adjustments, m.hysteresis)
	m.hysteresis.Cleanup(snap.PIDs())

	elapsed := m.clock.Since(start)
	m.stats.recordSuccess(m.clock.Now(), elapsed, result, info, len(snap.Processes), m.hysteresis.Len())
	m.emitTick(elapsed, info, len(adjustments), result, len(snap.Processes))

	general.InfofV(4, "tick %d: snapshot %d with %d processes, %d groups, %d planned, %+v, %v",
		m.ticks, snap.ID, len(snap.Processes), len(results), len(adjustments), result, info)
	if elapsed > m.conf.SyncPeriod {
		general.Warningf("tick %d took %v, longer than sync period %v", m.ticks, elapsed, m.conf.SyncPeriod)
	}

	_ = general.UpdateHealthzState(m.healthzName, general.HealthzCheckStateReady, "")
	m.notify()
}

func (m *PriorityManager) notify() {
	m.readyOnce.Do(func() {
		if err := m.notifier.NotifyReady(); err != nil {
			general.Warningf("notify ready failed: %v", err)
		}
	})

	if m.conf.StatusReportIntervalTicks <= 0 || m.ticks%uint64(m.conf.StatusReportIntervalTicks) != 0 {
		return
	}

	status := m.stats.Snapshot().Status()
	general.Infof("%s", status)
	if err := m.notifier.NotifyStatus(status); err != nil {
		general.Warningf("notify status failed: %v", err)
	}
}

func (m *PriorityManager) emitTick(elapsed time.Duration, info load.SystemLoadInfo, planned int,
	result actuator.ApplyResult, processes int,
) {
	_ = m.emitter.StoreFloat64(metricsNameTickDuration, durationMs(elapsed), metrics.MetricTypeNameRaw)
	_ = m.emitter.StoreFloat64(metricsNameLoadLevel, info.LoadLevel, metrics.MetricTypeNameRaw,
		metrics.MetricTag{Key: metricsTagKeyCategory, Val: string(info.Category())})
	_ = m.emitter.StoreInt64(metricsNameAdjustmentPlanned, int64(planned), metrics.MetricTypeNameRaw)
	_ = m.emitter.StoreInt64(metricsNameApplied, int64(result.Applied), metrics.MetricTypeNameCount)
	_ = m.emitter.StoreInt64(metricsNameSkipped, int64(result.SkippedHysteresis), metrics.MetricTypeNameCount)
	_ = m.emitter.StoreInt64(metricsNameApplyErrors, int64(result.Errors), metrics.MetricTypeNameCount)
	_ = m.emitter.StoreInt64(metricsNameTrackedProcesses, int64(m.hysteresis.Len()), metrics.MetricTypeNameRaw)
	_ = m.emitter.StoreInt64(metricsNameSnapshotProcesses, int64(processes), metrics.MetricTypeNameRaw)
}
