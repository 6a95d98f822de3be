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

package general

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

const (
	FlockCoolingInterval = 6 * time.Second
	FlockTryLockMaxTimes = 10
)

type FileWatcherInfo struct {
	// if Filename is empty, every file event in Path is reported,
	// otherwise only events of this base name are
	Filename string
	Path     []string
	Op       fsnotify.Op
}

// RegisterFileEventWatcher watches the given directories with inotify and sends
// one value on the returned channel per matching event. Events arriving while the
// receiver is busy are coalesced into the pending one.
func RegisterFileEventWatcher(stop <-chan struct{}, fileWatcherInfo FileWatcherInfo) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new fsnotify watcher failed: %w", err)
	}

	for _, p := range fileWatcherInfo.Path {
		if err := watcher.Add(p); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("watch %s failed: %w", p, err)
		}
	}

	watcherCh := make(chan struct{}, 1)
	go func() {
		defer func() {
			if err := watcher.Close(); err != nil {
				klog.Errorf("failed close watcher: %v", err)
			}
		}()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				filename := filepath.Base(event.Name)
				if (fileWatcherInfo.Filename == "" || filename == fileWatcherInfo.Filename) &&
					(event.Op&fileWatcherInfo.Op) > 0 {
					klog.V(4).Infof("fsnotify watcher notify %s", event)
					select {
					case watcherCh <- struct{}{}:
					default:
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				klog.Warningf("%v watcher error: %v", fileWatcherInfo, err)
			case <-stop:
				klog.Infof("shutting down event watcher %v", fileWatcherInfo)
				return
			}
		}
	}()

	return watcherCh, nil
}

// IsPathExists reports false only when the path is known not to exist.
func IsPathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

type Flock struct {
	LockFile string
	lock     *os.File
}

func createFlock(file string) (*Flock, error) {
	if file == "" {
		return nil, errors.New("cannot create flock on empty path")
	}
	lock, err := os.OpenFile(file, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &Flock{LockFile: file, lock: lock}, nil
}

func (f *Flock) release() {
	if f != nil && f.lock != nil {
		_ = f.lock.Close()
	}
}

func (f *Flock) tryLock() error {
	if f == nil {
		return errors.New("cannot use lock on a nil flock")
	}
	return syscall.Flock(int(f.lock.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (f *Flock) unlock() {
	if f != nil && f.lock != nil {
		_ = syscall.Flock(int(f.lock.Fd()), syscall.LOCK_UN)
	}
}

// getUniqueLockWithTimeout tries to acquire the file lock tries times, sleeping
// duration in between.
func getUniqueLockWithTimeout(filename string, duration time.Duration, tries int) (*Flock, error) {
	lockDirPath := filepath.Dir(filename)
	if err := os.MkdirAll(lockDirPath, 0o755); err != nil {
		klog.Errorf("[GetUniqueLock] ensure lock directory: %s failed with error: %v", lockDirPath, err)
		return nil, err
	}

	lock, err := createFlock(filename)
	if err != nil {
		klog.Errorf("[GetUniqueLock] create lock failed with error: %v", err)
		return nil, err
	}

	for tryCount := 1; ; tryCount++ {
		err = lock.tryLock()
		if err == nil || tryCount >= tries {
			break
		}
		klog.Infof("[GetUniqueLock] %s is held by another process, retry count: %d", filename, tryCount)
		time.Sleep(duration)
	}

	if err != nil {
		lock.release()
		return nil, fmt.Errorf("lock %s: %w", filename, err)
	}

	klog.Infof("[GetUniqueLock] get lock %s successfully", filename)
	return lock, nil
}

// GetUniqueLock makes sure only one agent runs on the host.
func GetUniqueLock(filename string) (*Flock, error) {
	return getUniqueLockWithTimeout(filename, FlockCoolingInterval, FlockTryLockMaxTimes)
}

// ReleaseUniqueLock release the given file lock
func ReleaseUniqueLock(lock *Flock) {
	if lock == nil {
		return
	}

	lock.unlock()
	lock.release()
	klog.Infof("[GetUniqueLock] release lock successfully")
}
