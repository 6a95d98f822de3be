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
	"syscall"

	"github.com/pkg/errors"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
)

var (
	// ErrProcessNotFound is matched with errors.Is when the target process exited.
	ErrProcessNotFound = errors.New("process not found")
	// ErrNotSupported is matched with errors.Is when the kernel lacks the syscall or knob.
	ErrNotSupported = errors.New("not supported by the kernel")
)

// SyscallProvider is the seam between the actuator and the kernel.
type SyscallProvider interface {
	snapshot.IONiceReader

	SetNice(pid, nice int) error
	SetIONice(pid, ioClass, level int) error
	// SetLatencyNice re-states nice because sched_setattr rewrites it together with latency nice.
	SetLatencyNice(pid, nice, latencyNice int) error

	GetNice(pid int) (int, bool)
}

// osCallError keeps the errno reachable through errors.Is while adding the call site.
type osCallError struct {
	call string
	err  error
}

func (e *osCallError) Error() string {
	return e.call + ": " + e.err.Error()
}

func (e *osCallError) Unwrap() error {
	return e.err
}

func (e *osCallError) Is(target error) bool {
	switch target {
	case ErrProcessNotFound:
		return isProcessNotFound(e.err)
	case ErrNotSupported:
		return isNotSupported(e.err)
	}
	return false
}

// wrapOSError returns nil for a nil err.
func wrapOSError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&osCallError{call: fmt.Sprintf(format, args...), err: err})
}

func isProcessNotFound(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}

func isNotSupported(err error) bool {
	return errors.Is(err, syscall.ENOSYS) || errors.Is(err, syscall.EOPNOTSUPP)
}

var _ SyscallProvider = &DryRunSyscallProvider{}

// DryRunSyscallProvider logs the changes it would make and reports success;
// reads are delegated so planning sees real values.
type DryRunSyscallProvider struct {
	reader SyscallProvider
	record func(call string, pid int, args ...int)
}

// NewDryRunSyscallProvider delegates reads to reader, which may be nil.
func NewDryRunSyscallProvider(reader SyscallProvider) *DryRunSyscallProvider {
	return &DryRunSyscallProvider{reader: reader, record: logDryRun}
}

func logDryRun(call string, pid int, args ...int) {
	logger.Infof("dry-run: %s pid=%d args=%v", call, pid, args)
}

func (d *DryRunSyscallProvider) SetNice(pid, nice int) error {
	d.record("setpriority", pid, nice)
	return nil
}

func (d *DryRunSyscallProvider) SetIONice(pid, ioClass, level int) error {
	d.record("ioprio_set", pid, ioClass, level)
	return nil
}

func (d *DryRunSyscallProvider) SetLatencyNice(pid, nice, latencyNice int) error {
	d.record("sched_setattr", pid, nice, latencyNice)
	return nil
}

func (d *DryRunSyscallProvider) GetNice(pid int) (int, bool) {
	if d.reader == nil {
		return 0, false
	}
	return d.reader.GetNice(pid)
}

func (d *DryRunSyscallProvider) GetIONice(pid int) (class.IONiceParams, bool) {
	if d.reader == nil {
		return class.IONiceParams{}, false
	}
	return d.reader.GetIONice(pid)
}
