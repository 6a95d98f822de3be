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

package v2

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	libcgroups "github.com/opencontainers/runc/libcontainer/cgroups"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smoothtask/smoothtask-core/pkg/util/cgroup/common"
)

func init() {
	libcgroups.TestMode = true
}

func newFakeCgroup(t *testing.T, weight string, procs string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, common.CgroupCPUWeightFile), []byte(weight), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, common.CgroupProcsFile), []byte(procs), 0o644))
	return dir
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	if got := NewManager(); !reflect.DeepEqual(got, &manager{}) {
		t.Errorf("NewManager() = %v, want %v", got, &manager{})
	}
}

func Test_manager_ApplyCPU(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		data       *common.CPUData
		wantErr    bool
		wantWeight uint64
	}{
		{
			name:       "weight changed",
			data:       &common.CPUData{Weight: 150},
			wantWeight: 150,
		},
		{
			name:       "weight unchanged",
			data:       &common.CPUData{Weight: 100},
			wantWeight: 100,
		},
		{
			name:       "zero weight is a no-op",
			data:       &common.CPUData{},
			wantWeight: 100,
		},
		{
			name:       "weight out of range",
			data:       &common.CPUData{Weight: 20000},
			wantErr:    true,
			wantWeight: 100,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := newFakeCgroup(t, "100\n", "")
			m := NewManager()
			err := m.ApplyCPU(dir, tt.data)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			stats, err := m.GetCPU(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWeight, stats.Weight)
		})
	}

	err := NewManager().ApplyCPU("test-fake-path", &common.CPUData{Weight: 100})
	require.Error(t, err)
}

func Test_manager_AddProcess(t *testing.T) {
	t.Parallel()

	dir := newFakeCgroup(t, "100\n", "1\n42\n")
	m := NewManager()

	require.NoError(t, m.AddProcess(dir, 42))
	pids, err := m.GetPids(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "42"}, pids, "existing member is not rewritten")

	require.NoError(t, m.AddProcess(dir, 1234))
	pids, err = m.GetPids(dir)
	require.NoError(t, err)
	assert.Contains(t, pids, "1234")

	require.Error(t, m.AddProcess(filepath.Join(dir, "missing"), 1))
}

func Test_manager_EnableCPUController(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, common.CgroupSubtreeControlFile)
	require.NoError(t, os.WriteFile(file, []byte("memory\n"), 0o644))

	m := NewManager()
	require.NoError(t, m.EnableCPUController(dir))
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "+cpu", string(data))

	require.NoError(t, os.WriteFile(file, []byte("cpu memory\n"), 0o644))
	require.NoError(t, m.EnableCPUController(dir))
	data, err = os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "cpu memory\n", string(data), "delegated controller is not rewritten")

	require.Error(t, m.EnableCPUController(filepath.Join(dir, "missing")))
}
