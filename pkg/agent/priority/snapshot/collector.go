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

package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"runtime"
	"sort"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"k8s.io/utils/clock"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

const (
	psiResourceCPU    = "cpu"
	psiResourceIO     = "io"
	psiResourceMemory = "memory"

	kthreaddPID = 2
)

// IONiceReader reads the current I/O priority of a process.
// ok is false when the process has no explicit priority or it can not be read.
type IONiceReader interface {
	GetIONice(pid int) (params class.IONiceParams, ok bool)
}

// Provider produces one snapshot per control loop tick.
type Provider interface {
	Collect(ctx context.Context) (*Snapshot, error)
}

// Collector builds snapshots from procfs.
type Collector struct {
	fs     procfs.FS
	ionice IONiceReader
	clock  clock.Clock
	lastID uint64

	logger general.Logger
}

var _ Provider = &Collector{}

// NewCollector reads procfs mounted at procRoot; ionice may be nil,
// in which case every process is reported without an I/O priority.
func NewCollector(procRoot string, ionice IONiceReader, clk clock.Clock) (*Collector, error) {
	procFS, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open procfs at %v", procRoot)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Collector{
		fs:     procFS,
		ionice: ionice,
		clock:  clk,
		logger: general.LoggerWithPrefix("snapshot", general.LoggingPKGShort),
	}, nil
}

// Collect fails only when the host-wide metrics can not be read;
// processes that vanish during the scan are silently dropped.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	global, err := c.collectGlobal()
	if err != nil {
		return nil, err
	}

	procs, err := c.fs.AllProcs()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list processes")
	}

	processes := make([]ProcessRecord, 0, len(procs))
	for _, proc := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		record, ok := c.collectProcess(proc)
		if !ok {
			continue
		}
		processes = append(processes, record)
	}

	sort.Slice(processes, func(i, j int) bool {
		return processes[i].PID < processes[j].PID
	})

	c.lastID++
	return &Snapshot{
		ID:        c.lastID,
		Timestamp: c.clock.Now(),
		Global:    global,
		Processes: processes,
	}, nil
}

func (c *Collector) collectGlobal() (GlobalMetrics, error) {
	global := GlobalMetrics{CPUCount: c.cpuCount()}

	loadAvg, err := c.fs.LoadAvg()
	if err != nil {
		return global, pkgerrors.Wrap(err, "read loadavg")
	}
	global.LoadAvgOne = loadAvg.Load1
	global.LoadAvgFive = loadAvg.Load5
	global.LoadAvgFifteen = loadAvg.Load15

	meminfo, err := c.fs.Meminfo()
	if err != nil {
		return global, pkgerrors.Wrap(err, "read meminfo")
	}
	if meminfo.MemTotal != nil {
		global.MemTotalKB = *meminfo.MemTotal
	}
	if meminfo.MemAvailable != nil {
		global.MemAvailableKB = *meminfo.MemAvailable
	}

	global.PSICPUSomeAvg10 = c.psiSomeAvg10(psiResourceCPU)
	global.PSIIOSomeAvg10 = c.psiSomeAvg10(psiResourceIO)
	global.PSIMemSomeAvg10 = c.psiSomeAvg10(psiResourceMemory)
	return global, nil
}

// psiSomeAvg10 converts the kernel percentage into a fraction.
func (c *Collector) psiSomeAvg10(resource string) *float64 {
	stats, err := c.fs.PSIStatsForResource(resource)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.InfofV(4, "read psi for %v failed: %v", resource, err)
		}
		return nil
	}
	if stats.Some == nil {
		return nil
	}

	v := stats.Some.Avg10 / 100
	return &v
}

func (c *Collector) cpuCount() int {
	cpus, err := c.fs.CPUInfo()
	if err != nil || len(cpus) == 0 {
		return runtime.NumCPU()
	}
	return len(cpus)
}

func (c *Collector) collectProcess(proc procfs.Proc) (ProcessRecord, bool) {
	stat, err := proc.Stat()
	if err != nil {
		return ProcessRecord{}, false
	}
	if stat.PID == kthreaddPID || stat.PPID == kthreaddPID {
		return ProcessRecord{}, false
	}

	record := ProcessRecord{
		PID:  stat.PID,
		PPID: stat.PPID,
		Comm: stat.Comm,
		Nice: stat.Nice,
	}
	if exe, err := proc.Executable(); err == nil {
		record.Exe = exe
	}
	if cmdline, err := proc.CmdLine(); err == nil {
		record.Cmdline = cmdline
	}
	if c.ionice != nil {
		if params, ok := c.ionice.GetIONice(stat.PID); ok {
			record.IONice = &params
		}
	}
	return record, true
}
