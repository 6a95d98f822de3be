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

package priority

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/pointer"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/actuator"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/policy"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
	"github.com/smoothtask/smoothtask-core/pkg/config"
	priorityconfig "github.com/smoothtask/smoothtask-core/pkg/config/agent/priority"
	"github.com/smoothtask/smoothtask-core/pkg/metrics"
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

type fakeCollector struct {
	sync.Mutex
	build func(id uint64) (*snapshot.Snapshot, error)
	calls uint64
}

func (f *fakeCollector) Collect(_ context.Context) (*snapshot.Snapshot, error) {
	f.Lock()
	defer f.Unlock()
	f.calls++
	return f.build(f.calls)
}

type staticEngine map[string]policy.PolicyResult

func (e staticEngine) Evaluate(_ *snapshot.Snapshot) map[string]policy.PolicyResult {
	results := make(map[string]policy.PolicyResult, len(e))
	for k, v := range e {
		results[k] = v
	}
	return results
}

type recordingNotifier struct {
	sync.Mutex
	ready    int
	statuses []string
}

func (n *recordingNotifier) NotifyReady() error {
	n.Lock()
	defer n.Unlock()
	n.ready++
	return nil
}

func (n *recordingNotifier) NotifyStatus(status string) error {
	n.Lock()
	defer n.Unlock()
	n.statuses = append(n.statuses, status)
	return nil
}

func idleGlobal() snapshot.GlobalMetrics {
	return snapshot.GlobalMetrics{
		CPUCount:       4,
		LoadAvgOne:     0.2,
		MemTotalKB:     16 << 20,
		MemAvailableKB: 12 << 20,
	}
}

func overloadedGlobal() snapshot.GlobalMetrics {
	return snapshot.GlobalMetrics{
		CPUCount:        4,
		LoadAvgOne:      8,
		PSICPUSomeAvg10: pointer.Float64(0.9),
		PSIIOSomeAvg10:  pointer.Float64(0.9),
		PSIMemSomeAvg10: pointer.Float64(0.9),
		MemTotalKB:      16 << 20,
		MemAvailableKB:  1 << 20,
	}
}

func browserSnapshot(global snapshot.GlobalMetrics) func(uint64) (*snapshot.Snapshot, error) {
	return func(id uint64) (*snapshot.Snapshot, error) {
		return &snapshot.Snapshot{
			ID:     id,
			Global: global,
			Processes: []snapshot.ProcessRecord{
				{PID: 1, Comm: "systemd"},
				{PID: 1234, Comm: "firefox", Nice: 0, AppGroupID: "browser"},
			},
		}, nil
	}
}

type testManager struct {
	*PriorityManager
	provider  *actuator.FakeSyscallProvider
	collector *fakeCollector
	notifier  *recordingNotifier
	clock     *testingclock.FakeClock
}

func newTestManager(t *testing.T, conf *priorityconfig.PriorityConfiguration,
	build func(uint64) (*snapshot.Snapshot, error),
) *testManager {
	t.Helper()

	clk := testingclock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	provider := actuator.NewFakeSyscallProvider()
	collector := &fakeCollector{build: build}
	notifier := &recordingNotifier{}
	engine := staticEngine{"browser": {Class: class.Interactive, Reason: "rule browser"}}

	m := newPriorityManager(conf, collector, engine, actuator.NewActuator(provider, nil),
		actuator.NewHysteresisTracker(conf.HysteresisMinInterval, conf.HysteresisMinClassDifference, clk),
		metrics.DummyMetrics{}, notifier, clk)
	m.healthzName = general.HealthzCheckName(fmt.Sprintf("%s-%s", HealthzCheckName, t.Name()))
	general.RegisterHeartbeatCheck(m.healthzName, 0, general.HealthzCheckStateNotReady)
	t.Cleanup(func() { general.UnregisterHeartbeatCheck(m.healthzName) })

	return &testManager{
		PriorityManager: m,
		provider:        provider,
		collector:       collector,
		notifier:        notifier,
		clock:           clk,
	}
}

func testPriorityConfiguration() *priorityconfig.PriorityConfiguration {
	return &priorityconfig.PriorityConfiguration{
		SyncPeriod:                   time.Second,
		HysteresisMinInterval:        5 * time.Second,
		HysteresisMinClassDifference: 1,
		EnableDynamicScaling:         true,
		StatusReportIntervalTicks:    2,
	}
}

func healthzReady(t *testing.T, name general.HealthzCheckName) bool {
	result, ok := general.GetRegisterReadinessCheckResult()[name]
	require.True(t, ok)
	return result.Ready
}

func TestPriorityManagerSync(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testPriorityConfiguration(), browserSnapshot(idleGlobal()))
	m.sync(context.Background())

	assert.Equal(t, -4, m.provider.Nice[1234])
	assert.Equal(t, class.IONiceParams{Class: 2, Level: 2}, m.provider.IONice[1234])
	_, touched := m.provider.Nice[1]
	assert.False(t, touched, "processes outside app groups are left alone")

	stats := m.Stats().Snapshot()
	assert.Equal(t, uint64(1), stats.TotalIterations)
	assert.Equal(t, uint64(1), stats.SuccessfulIterations)
	assert.Equal(t, uint64(1), stats.TotalApplied)
	assert.Equal(t, int64(2), stats.LastProcesses)
	assert.Equal(t, int64(1), stats.TrackedProcesses)
	assert.Equal(t, "low", stats.LastLoadCategory)
	assert.Equal(t, m.clock.Now(), stats.LastSuccess.UTC())
	assert.Equal(t, 1, m.notifier.ready)
	assert.Empty(t, m.notifier.statuses)
	assert.True(t, healthzReady(t, m.healthzName))

	// the snapshot still reports the old nice, hysteresis holds the change back
	m.sync(context.Background())
	stats = m.Stats().Snapshot()
	assert.Equal(t, uint64(1), stats.TotalApplied)
	assert.Equal(t, uint64(1), stats.TotalSkippedHysteresis)
	assert.Equal(t, 1, m.notifier.ready, "ready is sent once")
	require.Len(t, m.notifier.statuses, 1)
	assert.Contains(t, m.notifier.statuses[0], "Running: 2 iterations")
	assert.Contains(t, m.notifier.statuses[0], "1 adjustments applied")

	m.clock.Step(6 * time.Second)
	m.sync(context.Background())
	assert.Equal(t, uint64(2), m.Stats().Snapshot().TotalSkippedHysteresis,
		"same class stays below the minimum class difference")
}

func TestPriorityManagerDynamicScaling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		scaling  bool
		wantNice int
		wantIO   class.IONiceParams
	}{
		{name: "scaled down one step", scaling: true, wantNice: 0, wantIO: class.IONiceParams{Class: 2, Level: 4}},
		{name: "scaling disabled", scaling: false, wantNice: -4, wantIO: class.IONiceParams{Class: 2, Level: 2}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conf := testPriorityConfiguration()
			conf.EnableDynamicScaling = tt.scaling
			m := newTestManager(t, conf, browserSnapshot(overloadedGlobal()))
			m.sync(context.Background())

			assert.Equal(t, tt.wantNice, m.provider.Nice[1234])
			assert.Equal(t, tt.wantIO, m.provider.IONice[1234])
			stats := m.Stats().Snapshot()
			assert.Equal(t, "high", stats.LastLoadCategory)
			assert.Equal(t, 1.0, stats.LastLoadLevel)
		})
	}
}

func TestPriorityManagerCollectFailure(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testPriorityConfiguration(), func(id uint64) (*snapshot.Snapshot, error) {
		if id == 1 {
			return nil, fmt.Errorf("procfs unavailable")
		}
		return browserSnapshot(idleGlobal())(id)
	})

	m.sync(context.Background())
	stats := m.Stats().Snapshot()
	assert.Equal(t, uint64(1), stats.TotalIterations)
	assert.Equal(t, uint64(1), stats.ErrorIterations)
	assert.Equal(t, uint64(0), stats.SuccessfulIterations)
	assert.Equal(t, 0, m.provider.CallCount())
	assert.Equal(t, 0, m.notifier.ready)
	assert.False(t, healthzReady(t, m.healthzName))

	m.sync(context.Background())
	stats = m.Stats().Snapshot()
	assert.Equal(t, uint64(2), stats.TotalIterations)
	assert.Equal(t, uint64(1), stats.SuccessfulIterations)
	assert.Equal(t, 1, m.notifier.ready)
	assert.True(t, healthzReady(t, m.healthzName))
}

func TestPriorityManagerCleansUpExitedProcesses(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testPriorityConfiguration(), func(id uint64) (*snapshot.Snapshot, error) {
		if id == 1 {
			return browserSnapshot(idleGlobal())(id)
		}
		return &snapshot.Snapshot{ID: id, Global: idleGlobal(), Processes: []snapshot.ProcessRecord{{PID: 1, Comm: "systemd"}}}, nil
	})

	m.sync(context.Background())
	_, ok := m.hysteresis.LastChange(1234)
	require.True(t, ok)

	m.sync(context.Background())
	_, ok = m.hysteresis.LastChange(1234)
	assert.False(t, ok)
	assert.Equal(t, int64(0), m.Stats().Snapshot().TrackedProcesses)
}

func TestPriorityManagerRun(t *testing.T) {
	t.Parallel()

	conf := testPriorityConfiguration()
	conf.SyncPeriod = 10 * time.Millisecond
	m := newTestManager(t, conf, browserSnapshot(idleGlobal()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return m.Stats().Snapshot().SuccessfulIterations >= 2
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPriorityManagerRunWaitsForTick(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	build := browserSnapshot(idleGlobal())

	conf := testPriorityConfiguration()
	conf.SyncPeriod = time.Hour
	m := newTestManager(t, conf, func(id uint64) (*snapshot.Snapshot, error) {
		if id == 1 {
			close(started)
			<-release
		}
		return build(id)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	<-started
	cancel()
	select {
	case <-done:
		t.Fatal("Run returned while a tick was still applying")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the tick finished")
	}
	assert.Equal(t, uint64(1), m.Stats().Snapshot().SuccessfulIterations)
	assert.NotZero(t, m.provider.CallCount(), "the tick ran to completion")
}

func writeFixtureFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixtureStat(pid, ppid int, comm string, nice int) string {
	return fmt.Sprintf("%d (%s) S %d %d %d 0 -1 4194560 100 0 0 0 10 5 0 0 20 %d 1 0 1000 10000000 500 "+
		"18446744073709551615 1 1 0 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0 0 0 0 0 0 0 0 0\n",
		pid, comm, ppid, pid, pid, nice)
}

func TestNewPriorityManagerDryRun(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	procRoot := filepath.Join(root, "proc")
	writeFixtureFile(t, filepath.Join(procRoot, "loadavg"), "0.10 0.10 0.10 1/100 4242\n")
	writeFixtureFile(t, filepath.Join(procRoot, "meminfo"), "MemTotal:       16000000 kB\nMemAvailable:   12000000 kB\n")
	writeFixtureFile(t, filepath.Join(procRoot, "1", "stat"), fixtureStat(1, 0, "systemd", 0))
	writeFixtureFile(t, filepath.Join(procRoot, "4242", "stat"), fixtureStat(4242, 1, "firefox", 5))

	rules := filepath.Join(root, "rules.yaml")
	writeFixtureFile(t, rules, "rules:\n  - app_group: browser\n    comm: [firefox]\n    class: INTERACTIVE\n")

	conf := config.NewConfiguration()
	conf.DryRun = true
	conf.ProcfsRoot = procRoot
	conf.PriorityConfiguration = testPriorityConfiguration()
	conf.PolicyRulesFile = rules

	m, err := NewPriorityManager(conf, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, m.rulesWatcher)

	m.sync(context.Background())
	stats := m.Stats().Snapshot()
	assert.Equal(t, uint64(1), stats.SuccessfulIterations)
	assert.Equal(t, uint64(1), stats.TotalApplied, "dry-run reports intended changes as applied")
	assert.Equal(t, int64(2), stats.LastProcesses)

	conf.PolicyRulesFile = filepath.Join(root, "missing.yaml")
	conf.EnableRulesReload = true
	m, err = NewPriorityManager(conf, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, m.rulesWatcher)

	writeFixtureFile(t, rules, "rules: [\n")
	conf.PolicyRulesFile = rules
	_, err = NewPriorityManager(conf, nil, nil)
	require.Error(t, err)
}
