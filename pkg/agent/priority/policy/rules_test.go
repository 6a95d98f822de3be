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

package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
)

const testRules = `
default_class: NORMAL
rules:
  - app_group: audio
    comm: ["pipewire*", "pulseaudio"]
    class: CRIT_INTERACTIVE
    reason: audio server
  - app_group: browser
    comm: ["firefox", "chromium"]
    exe: ["/usr/lib/firefox/*"]
    class: INTERACTIVE
  - app_group: build
    comm: ["cc1*", "ld", "rustc"]
    class: BACKGROUND
    reason: compiler
`

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Processes: []snapshot.ProcessRecord{
			{PID: 1, Comm: "systemd"},
			{PID: 100, Comm: "pipewire-pulse"},
			{PID: 200, Comm: "Web Content", Exe: "/usr/lib/firefox/firefox"},
			{PID: 201, Comm: "firefox"},
			{PID: 300, Comm: "cc1plus"},
			{PID: 400, Comm: "custom", AppGroupID: "preassigned"},
		},
	}
}

func TestParseRuleSet(t *testing.T) {
	t.Parallel()

	set, err := ParseRuleSet([]byte(testRules))
	require.NoError(t, err)
	require.Len(t, set.Rules, 3)
	require.NotNil(t, set.DefaultClass)
	assert.Equal(t, class.Normal, *set.DefaultClass)
	assert.Equal(t, class.CritInteractive, set.Rules[0].Class)
	assert.Equal(t, []string{"/usr/lib/firefox/*"}, set.Rules[1].Exe)
}

func TestParseRuleSetInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{name: "unknown class", data: "rules:\n  - app_group: a\n    comm: [a]\n    class: LOUD\n"},
		{name: "missing class", data: "rules:\n  - app_group: a\n    comm: [a]\n"},
		{name: "missing group", data: "rules:\n  - comm: [a]\n    class: IDLE\n"},
		{name: "reserved group", data: "rules:\n  - app_group: default\n    comm: [a]\n    class: IDLE\n"},
		{name: "no patterns", data: "rules:\n  - app_group: a\n    class: IDLE\n"},
		{name: "bad pattern", data: "rules:\n  - app_group: a\n    comm: [\"[\"]\n    class: IDLE\n"},
		{name: "conflicting classes", data: "rules:\n  - app_group: a\n    comm: [a]\n    class: IDLE\n  - app_group: a\n    comm: [b]\n    class: NORMAL\n"},
		{name: "not yaml", data: "rules: [\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRuleSet([]byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestLoadRuleSet(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(file, []byte(testRules), 0o644))

	set, err := LoadRuleSet(file)
	require.NoError(t, err)
	assert.Len(t, set.Rules, 3)

	_, err = LoadRuleSet(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRuleEngineEvaluate(t *testing.T) {
	t.Parallel()

	set, err := ParseRuleSet([]byte(testRules))
	require.NoError(t, err)

	snap := testSnapshot()
	results := NewRuleEngine(set, nil).Evaluate(snap)

	assert.Equal(t, map[string]PolicyResult{
		"audio":           {Class: class.CritInteractive, Reason: "audio server"},
		"browser":         {Class: class.Interactive, Reason: "rule browser"},
		"build":           {Class: class.Background, Reason: "compiler"},
		DefaultAppGroupID: {Class: class.Normal, Reason: "default class"},
	}, results)

	groups := make(map[int]string)
	for _, p := range snap.Processes {
		groups[p.PID] = p.AppGroupID
	}
	assert.Equal(t, map[int]string{
		1:   DefaultAppGroupID,
		100: "audio",
		200: "browser",
		201: "browser",
		300: "build",
		400: "preassigned",
	}, groups)
}

func TestRuleEngineDefaultOverride(t *testing.T) {
	t.Parallel()

	set, err := ParseRuleSet([]byte(testRules))
	require.NoError(t, err)

	idle := class.Idle
	results := NewRuleEngine(set, &idle).Evaluate(testSnapshot())
	assert.Equal(t, class.Idle, results[DefaultAppGroupID].Class)

	set.DefaultClass = nil
	snap := testSnapshot()
	results = NewRuleEngine(set, nil).Evaluate(snap)
	_, ok := results[DefaultAppGroupID]
	assert.False(t, ok)
	assert.Empty(t, snap.Processes[0].AppGroupID, "unmatched processes stay out of scope")

	assert.Empty(t, NewRuleEngine(nil, nil).Evaluate(testSnapshot()))
	assert.Empty(t, NewRuleEngine(set, nil).Evaluate(nil))
}

func TestRuleEngineProcessTree(t *testing.T) {
	t.Parallel()

	set, err := ParseRuleSet([]byte(testRules))
	require.NoError(t, err)

	snap := &snapshot.Snapshot{
		Processes: []snapshot.ProcessRecord{
			// children listed before their parents still inherit
			{PID: 212, PPID: 210, Comm: "Isolated Web Co"},
			{PID: 210, PPID: 201, Comm: "forkserver"},
			{PID: 201, PPID: 50, Comm: "firefox"},
			{PID: 50, PPID: 1, Comm: "gnome-shell"},
			{PID: 1, Comm: "systemd"},
			{PID: 301, PPID: 300, Comm: "as"},
			{PID: 300, PPID: 290, Comm: "cc1plus"},
			{PID: 290, PPID: 50, Comm: "make"},
			// a rule match inside another group's tree starts its own group
			{PID: 220, PPID: 201, Comm: "pipewire"},
			// an unknown parent ends the walk
			{PID: 400, PPID: 9999, Comm: "orphan"},
		},
	}
	results := NewRuleEngine(set, nil).Evaluate(snap)

	groups := make(map[int]string)
	for _, p := range snap.Processes {
		groups[p.PID] = p.AppGroupID
	}
	assert.Equal(t, map[int]string{
		212: "browser",
		210: "browser",
		201: "browser",
		50:  "",
		1:   "",
		301: "build",
		300: "build",
		290: "",
		220: "audio",
		400: "",
	}, groups)
	assert.Len(t, results, 3)

	// with a default class only processes outside every matched tree fall back
	idle := class.Idle
	for i := range snap.Processes {
		snap.Processes[i].AppGroupID = ""
	}
	results = NewRuleEngine(set, &idle).Evaluate(snap)
	assert.Equal(t, "browser", snap.Processes[0].AppGroupID)
	assert.Equal(t, DefaultAppGroupID, snap.Processes[3].AppGroupID)
	assert.Equal(t, class.Idle, results[DefaultAppGroupID].Class)
}

func TestRuleEngineParentCycle(t *testing.T) {
	t.Parallel()

	set, err := ParseRuleSet([]byte(testRules))
	require.NoError(t, err)

	snap := &snapshot.Snapshot{
		Processes: []snapshot.ProcessRecord{
			{PID: 10, PPID: 11, Comm: "a"},
			{PID: 11, PPID: 10, Comm: "b"},
			{PID: 12, PPID: 12, Comm: "c"},
		},
	}
	results := NewRuleEngine(set, nil).Evaluate(snap)
	assert.Empty(t, results)
	for _, p := range snap.Processes {
		assert.Empty(t, p.AppGroupID)
	}
}

func TestRuleCmdlineContains(t *testing.T) {
	t.Parallel()

	set, err := ParseRuleSet([]byte(`
rules:
  - app_group: renderer
    cmdline_contains: ["--type=renderer"]
    class: BACKGROUND
  - app_group: browser
    comm: ["chrome"]
    class: INTERACTIVE
`))
	require.NoError(t, err)

	snap := &snapshot.Snapshot{
		Processes: []snapshot.ProcessRecord{
			{PID: 1, Comm: "chrome", Cmdline: []string{"/opt/google/chrome/chrome"}},
			{PID: 2, PPID: 1, Comm: "chrome", Cmdline: []string{"/opt/google/chrome/chrome", "--type=renderer"}},
			{PID: 3, PPID: 2, Comm: "helper"},
			{PID: 4, Comm: "other", Cmdline: []string{"--type=gpu-process"}},
		},
	}
	results := NewRuleEngine(set, nil).Evaluate(snap)

	assert.Equal(t, class.Background, results["renderer"].Class)
	assert.Equal(t, "browser", snap.Processes[0].AppGroupID)
	assert.Equal(t, "renderer", snap.Processes[1].AppGroupID)
	assert.Equal(t, "renderer", snap.Processes[2].AppGroupID)
	assert.Empty(t, snap.Processes[3].AppGroupID)

	_, err = ParseRuleSet([]byte("rules:\n  - app_group: a\n    cmdline_contains: [\"\"]\n    class: IDLE\n"))
	require.Error(t, err)
}
