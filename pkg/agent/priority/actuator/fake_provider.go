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

package actuator

import (
	"fmt"
	"sync"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
)

// FakeSyscallProvider keeps per-pid priorities in memory and records every call.
type FakeSyscallProvider struct {
	sync.Mutex

	Nice        map[int]int
	IONice      map[int]class.IONiceParams
	LatencyNice map[int]int
	Calls       []string

	// per-pid failures injected by tests
	NiceErr        map[int]error
	IONiceErr      map[int]error
	LatencyNiceErr error
}

var _ SyscallProvider = &FakeSyscallProvider{}

func NewFakeSyscallProvider() *FakeSyscallProvider {
	return &FakeSyscallProvider{
		Nice:        make(map[int]int),
		IONice:      make(map[int]class.IONiceParams),
		LatencyNice: make(map[int]int),
		NiceErr:     make(map[int]error),
		IONiceErr:   make(map[int]error),
	}
}

func (f *FakeSyscallProvider) SetNice(pid, nice int) error {
	f.Lock()
	defer f.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("nice:%d:%d", pid, nice))
	if err := f.NiceErr[pid]; err != nil {
		return wrapOSError(err, "setpriority(pid=%d, nice=%d)", pid, nice)
	}
	f.Nice[pid] = nice
	return nil
}

func (f *FakeSyscallProvider) SetIONice(pid, ioClass, level int) error {
	f.Lock()
	defer f.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("ionice:%d:%d:%d", pid, ioClass, level))
	if err := f.IONiceErr[pid]; err != nil {
		return wrapOSError(err, "ioprio_set(pid=%d, class=%d, level=%d)", pid, ioClass, level)
	}
	f.IONice[pid] = class.IONiceParams{Class: ioClass, Level: level}
	return nil
}

func (f *FakeSyscallProvider) SetLatencyNice(pid, _, latencyNice int) error {
	f.Lock()
	defer f.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("latency:%d:%d", pid, latencyNice))
	if f.LatencyNiceErr != nil {
		return wrapOSError(f.LatencyNiceErr, "sched_setattr(pid=%d, latency_nice=%d)", pid, latencyNice)
	}
	f.LatencyNice[pid] = latencyNice
	return nil
}

func (f *FakeSyscallProvider) GetNice(pid int) (int, bool) {
	f.Lock()
	defer f.Unlock()
	nice, ok := f.Nice[pid]
	return nice, ok
}

func (f *FakeSyscallProvider) GetIONice(pid int) (class.IONiceParams, bool) {
	f.Lock()
	defer f.Unlock()
	params, ok := f.IONice[pid]
	return params, ok
}

// CallCount returns how many calls were made so far.
func (f *FakeSyscallProvider) CallCount() int {
	f.Lock()
	defer f.Unlock()
	return len(f.Calls)
}
