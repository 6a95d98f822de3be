//go:build linux
// +build linux

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
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
)

const (
	ioprioWhoProcess = 1
	ioprioClassShift = 13
	ioprioClassMask  = 0x3
	ioprioLevelMask  = 0xff

	// getpriority(2) returns 20 - nice so that the result is never negative
	getpriorityNiceBase = 20

	schedNormal          = 0
	schedFlagKeepPolicy  = 0x08
	schedFlagLatencyNice = 0x80
	schedAttrSizeVer2    = 60
)

// schedAttr mirrors struct sched_attr including the latency_nice extension.
type schedAttr struct {
	Size          uint32
	SchedPolicy   uint32
	SchedFlags    uint64
	SchedNice     int32
	SchedPriority uint32
	SchedRuntime  uint64
	SchedDeadline uint64
	SchedPeriod   uint64
	SchedUtilMin  uint32
	SchedUtilMax  uint32
	LatencyNice   int32
}

type linuxSyscallProvider struct{}

// NewSyscallProvider returns the provider backed by the real kernel.
func NewSyscallProvider() SyscallProvider {
	return &linuxSyscallProvider{}
}

func encodeIOPrio(ioClass, level int) uintptr {
	return uintptr(ioClass<<ioprioClassShift | level)
}

// decodeIOPrio reports false for IOPRIO_CLASS_NONE.
func decodeIOPrio(v uintptr) (class.IONiceParams, bool) {
	ioClass := int(v>>ioprioClassShift) & ioprioClassMask
	if ioClass == 0 {
		return class.IONiceParams{}, false
	}
	return class.IONiceParams{Class: ioClass, Level: int(v) & ioprioLevelMask}, true
}

func (p *linuxSyscallProvider) SetNice(pid, nice int) error {
	return wrapOSError(unix.Setpriority(unix.PRIO_PROCESS, pid, nice), "setpriority(pid=%d, nice=%d)", pid, nice)
}

func (p *linuxSyscallProvider) SetIONice(pid, ioClass, level int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOPRIO_SET, ioprioWhoProcess, uintptr(pid), encodeIOPrio(ioClass, level))
	if errno != 0 {
		return wrapOSError(errno, "ioprio_set(pid=%d, class=%d, level=%d)", pid, ioClass, level)
	}
	return nil
}

// latencyNiceAttr leaves the scheduling policy of the task untouched,
// so realtime and batch tasks keep theirs.
func latencyNiceAttr(nice, latencyNice int) schedAttr {
	return schedAttr{
		Size:        schedAttrSizeVer2,
		SchedPolicy: schedNormal,
		SchedFlags:  schedFlagKeepPolicy | schedFlagLatencyNice,
		SchedNice:   int32(nice),
		LatencyNice: int32(latencyNice),
	}
}

func (p *linuxSyscallProvider) SetLatencyNice(pid, nice, latencyNice int) error {
	attr := latencyNiceAttr(nice, latencyNice)
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETATTR, uintptr(pid), uintptr(unsafe.Pointer(&attr)), 0)
	if errno != 0 {
		return wrapOSError(errno, "sched_setattr(pid=%d, latency_nice=%d)", pid, latencyNice)
	}
	return nil
}

func (p *linuxSyscallProvider) GetNice(pid int) (int, bool) {
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, pid)
	if err != nil {
		return 0, false
	}
	return getpriorityNiceBase - prio, true
}

func (p *linuxSyscallProvider) GetIONice(pid int) (class.IONiceParams, bool) {
	v, _, errno := unix.Syscall(unix.SYS_IOPRIO_GET, ioprioWhoProcess, uintptr(pid), 0)
	if errno != 0 {
		return class.IONiceParams{}, false
	}
	return decodeIOPrio(v)
}
