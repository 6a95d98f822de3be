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
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

// DefaultAppGroupID groups every process no rule matched when a default class is configured.
const DefaultAppGroupID = "default"

// maxAncestorDepth bounds the ppid walk; pid reuse can form cycles in a snapshot.
const maxAncestorDepth = 64

// Rule assigns matching processes to an app group with a fixed class.
// A process matches when any comm or exe glob matches it, or when its
// command line contains any of CmdlineContains.
type Rule struct {
	AppGroup        string              `yaml:"app_group"`
	Comm            []string            `yaml:"comm,omitempty"`
	Exe             []string            `yaml:"exe,omitempty"`
	CmdlineContains []string            `yaml:"cmdline_contains,omitempty"`
	Class           class.PriorityClass `yaml:"class"`
	Reason          string              `yaml:"reason,omitempty"`
}

// RuleSet is the content of the rules file.
type RuleSet struct {
	// DefaultClass, when set, applies to processes no rule matched.
	DefaultClass *class.PriorityClass `yaml:"default_class,omitempty"`
	Rules        []Rule               `yaml:"rules"`
}

func (r *Rule) matches(proc *snapshot.ProcessRecord) bool {
	for _, pattern := range r.Comm {
		if ok, _ := path.Match(pattern, proc.Comm); ok {
			return true
		}
	}
	if proc.Exe != "" {
		for _, pattern := range r.Exe {
			if ok, _ := path.Match(pattern, proc.Exe); ok {
				return true
			}
		}
	}
	if len(r.CmdlineContains) > 0 && len(proc.Cmdline) > 0 {
		cmdline := strings.Join(proc.Cmdline, " ")
		for _, part := range r.CmdlineContains {
			if part != "" && strings.Contains(cmdline, part) {
				return true
			}
		}
	}
	return false
}

// Validate reports every problem at once.
func (s *RuleSet) Validate() error {
	var errList []error
	classByGroup := make(map[string]class.PriorityClass, len(s.Rules))

	if s.DefaultClass != nil && !s.DefaultClass.Valid() {
		errList = append(errList, fmt.Errorf("invalid default class %v", *s.DefaultClass))
	}

	for i := range s.Rules {
		rule := &s.Rules[i]
		if rule.AppGroup == "" {
			errList = append(errList, fmt.Errorf("rule %d: empty app_group", i))
		}
		if rule.AppGroup == DefaultAppGroupID {
			errList = append(errList, fmt.Errorf("rule %d: app_group %q is reserved", i, DefaultAppGroupID))
		}
		if !rule.Class.Valid() {
			errList = append(errList, fmt.Errorf("rule %d: missing or invalid class", i))
		}
		if len(rule.Comm) == 0 && len(rule.Exe) == 0 && len(rule.CmdlineContains) == 0 {
			errList = append(errList, fmt.Errorf("rule %d: no comm, exe or cmdline pattern", i))
		}
		for _, part := range rule.CmdlineContains {
			if part == "" {
				errList = append(errList, fmt.Errorf("rule %d: empty cmdline_contains entry", i))
			}
		}
		for _, pattern := range lo.Flatten([][]string{rule.Comm, rule.Exe}) {
			if _, err := path.Match(pattern, ""); err != nil {
				errList = append(errList, fmt.Errorf("rule %d: bad pattern %q: %v", i, pattern, err))
			}
		}

		if prev, ok := classByGroup[rule.AppGroup]; ok && prev != rule.Class {
			errList = append(errList, fmt.Errorf("rule %d: app_group %q already has class %v", i, rule.AppGroup, prev))
		} else if !ok {
			classByGroup[rule.AppGroup] = rule.Class
		}
	}
	return utilerrors.NewAggregate(errList)
}

// LoadRuleSet reads and validates a YAML rules file.
func LoadRuleSet(file string) (*RuleSet, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read rules file %v", file)
	}
	return ParseRuleSet(data)
}

func ParseRuleSet(data []byte) (*RuleSet, error) {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, errors.Wrap(err, "decode rules")
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// RuleEngine is the rule-based Engine; the first matching rule wins.
type RuleEngine struct {
	rules        []Rule
	defaultClass *class.PriorityClass
}

var _ Engine = &RuleEngine{}

// NewRuleEngine uses defaultClass instead of the one in set when it is non-nil.
func NewRuleEngine(set *RuleSet, defaultClass *class.PriorityClass) *RuleEngine {
	e := &RuleEngine{}
	if set != nil {
		e.rules = set.Rules
		e.defaultClass = set.DefaultClass
	}
	if defaultClass != nil {
		e.defaultClass = defaultClass
	}
	defaultName := "none"
	if e.defaultClass != nil {
		defaultName = e.defaultClass.String()
	}
	general.InfoS("rule engine created", "rules", len(e.rules), "defaultClass", defaultName)
	return e
}

// Evaluate assigns AppGroupID to the processes it classifies. Processes that
// already carry an app group keep it and are not reclassified.
//
// A process no rule matched joins the app group of its nearest ancestor
// matched by a rule, so a browser's helpers follow the browser. Only what
// is left after that falls into the default group.
func (e *RuleEngine) Evaluate(snap *snapshot.Snapshot) map[string]PolicyResult {
	results := make(map[string]PolicyResult)
	if snap == nil {
		return results
	}

	matched := make(map[int]string, len(snap.Processes))
	var unmatched []*snapshot.ProcessRecord
	for i := range snap.Processes {
		proc := &snap.Processes[i]
		if proc.AppGroupID != "" {
			continue
		}

		if rule := e.match(proc); rule != nil {
			proc.AppGroupID = rule.AppGroup
			matched[proc.PID] = rule.AppGroup
			if _, ok := results[rule.AppGroup]; !ok {
				results[rule.AppGroup] = PolicyResult{Class: rule.Class, Reason: ruleReason(rule)}
			}
			continue
		}
		unmatched = append(unmatched, proc)
	}

	if len(unmatched) == 0 {
		return results
	}

	parents := make(map[int]int, len(snap.Processes))
	for i := range snap.Processes {
		parents[snap.Processes[i].PID] = snap.Processes[i].PPID
	}

	for _, proc := range unmatched {
		if group, ok := ancestorGroup(proc.PPID, parents, matched); ok {
			proc.AppGroupID = group
			continue
		}

		if e.defaultClass != nil {
			proc.AppGroupID = DefaultAppGroupID
			results[DefaultAppGroupID] = PolicyResult{Class: *e.defaultClass, Reason: "default class"}
		}
	}
	return results
}

// ancestorGroup walks up from pid and returns the first app group a rule assigned.
func ancestorGroup(pid int, parents map[int]int, matched map[int]string) (string, bool) {
	for depth := 0; depth < maxAncestorDepth && pid > 0; depth++ {
		if group, ok := matched[pid]; ok {
			return group, true
		}
		ppid, ok := parents[pid]
		if !ok || ppid == pid {
			return "", false
		}
		pid = ppid
	}
	return "", false
}

func (e *RuleEngine) match(proc *snapshot.ProcessRecord) *Rule {
	for i := range e.rules {
		if e.rules[i].matches(proc) {
			return &e.rules[i]
		}
	}
	return nil
}

func ruleReason(rule *Rule) string {
	if rule.Reason != "" {
		return rule.Reason
	}
	return "rule " + rule.AppGroup
}
