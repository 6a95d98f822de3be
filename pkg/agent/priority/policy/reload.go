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
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/class"
	"github.com/smoothtask/smoothtask-core/pkg/agent/priority/snapshot"
	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

const (
	rulesFileEvents = fsnotify.Create | fsnotify.Write | fsnotify.Rename | fsnotify.Remove

	defaultWatchRetryPeriod = 10 * time.Second
)

// FileRuleEngine is a RuleEngine backed by a rules file that can be reloaded
// while the control loop evaluates it.
type FileRuleEngine struct {
	file         string
	defaultClass *class.PriorityClass
	// watchRetryPeriod paces watcher registration while the rules directory is missing
	watchRetryPeriod time.Duration

	mtx    sync.RWMutex
	engine *RuleEngine
}

var _ Engine = &FileRuleEngine{}

// NewFileRuleEngine starts without rules when file does not exist yet;
// a malformed file is an error.
func NewFileRuleEngine(file string, defaultClass *class.PriorityClass) (*FileRuleEngine, error) {
	e := &FileRuleEngine{
		file:             file,
		defaultClass:     defaultClass,
		watchRetryPeriod: defaultWatchRetryPeriod,
		engine:           NewRuleEngine(nil, defaultClass),
	}
	if file == "" {
		return e, nil
	}

	err := e.Reload()
	if errors.Is(err, os.ErrNotExist) {
		general.Warningf("rules file %v does not exist, running without rules", file)
		return e, nil
	}
	return e, err
}

// Reload keeps the current rules when the file can not be loaded.
func (e *FileRuleEngine) Reload() error {
	set, err := LoadRuleSet(e.file)
	if err != nil {
		return err
	}

	engine := NewRuleEngine(set, e.defaultClass)
	e.mtx.Lock()
	e.engine = engine
	e.mtx.Unlock()
	return nil
}

func (e *FileRuleEngine) Evaluate(snap *snapshot.Snapshot) map[string]PolicyResult {
	e.mtx.RLock()
	engine := e.engine
	e.mtx.RUnlock()
	return engine.Evaluate(snap)
}

// Run reloads the rules on every change of the file until ctx is done.
// The parent directory is watched so that editors replacing the file are seen;
// while it does not exist, registration is retried every watchRetryPeriod.
func (e *FileRuleEngine) Run(ctx context.Context) {
	if e.file == "" {
		return
	}

	changes, ok := e.watch(ctx)
	if !ok {
		return
	}

	for {
		select {
		case <-changes:
			if err := e.Reload(); err != nil {
				general.Warningf("reload rules file %v failed, keeping previous rules: %v", e.file, err)
				continue
			}
			general.Infof("rules file %v reloaded", e.file)
		case <-ctx.Done():
			return
		}
	}
}

// watch returns false only when ctx is done before the watcher could be registered.
func (e *FileRuleEngine) watch(ctx context.Context) (<-chan struct{}, bool) {
	var (
		changes  <-chan struct{}
		attempts int
	)
	err := wait.PollImmediateUntil(e.watchRetryPeriod, func() (bool, error) {
		attempts++
		var err error
		changes, err = general.RegisterFileEventWatcher(ctx.Done(), general.FileWatcherInfo{
			Filename: filepath.Base(e.file),
			Path:     []string{filepath.Dir(e.file)},
			Op:       rulesFileEvents,
		})
		if err == nil {
			return true, nil
		}

		if attempts == 1 {
			general.Warningf("watch rules file %v failed, retrying every %v: %v", e.file, e.watchRetryPeriod, err)
		} else {
			general.InfofV(4, "watch rules file %v failed: %v", e.file, err)
		}
		return false, nil
	}, ctx.Done())
	if err != nil {
		return nil, false
	}

	// the file may have been written before the watcher existed
	if attempts > 1 {
		if err := e.Reload(); err == nil {
			general.Infof("rules file %v reloaded", e.file)
		} else if !errors.Is(err, os.ErrNotExist) {
			general.Warningf("reload rules file %v failed, keeping previous rules: %v", e.file, err)
		}
	}
	general.Infof("watching rules file %v", e.file)
	return changes, true
}
