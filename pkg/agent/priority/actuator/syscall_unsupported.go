//go:build !linux
// +build !linux

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
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
)

type unsupportedSyscallProvider struct{}

// NewSyscallProvider returns a provider whose writes always fail with ErrNotSupported.
func NewSyscallProvider() SyscallProvider {
	return &unsupportedSyscallProvider{}
}

func (p *unsupportedSyscallProvider) SetNice(pid, nice int) error {
	return wrapOSError(ErrNotSupported, "setpriority(pid=%d, nice=%d)", pid, nice)
}

func (p *unsupportedSyscallProvider) SetIONice(pid, ioClass, level int) error {
	return wrapOSError(ErrNotSupported, "ioprio_set(pid=%d, class=%d, level=%d)", pid, ioClass, level)
}

func (p *unsupportedSyscallProvider) SetLatencyNice(pid, nice, latencyNice int) error {
	return wrapOSError(ErrNotSupported, "sched_setattr(pid=%d, latency_nice=%d)", pid, latencyNice)
}

func (p *unsupportedSyscallProvider) GetNice(_ int) (int, bool) {
	return 0, false
}

func (p *unsupportedSyscallProvider) GetIONice(_ int) (class.IONiceParams, bool) {
	return class.IONiceParams{}, false
}
