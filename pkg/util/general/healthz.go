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
	"fmt"
	"sync"
	"time"
)

// HealthzCheckName describes which rule name for this check
type HealthzCheckName string

// HealthzCheckState describes the checking results
type HealthzCheckState string

const (
	HealthzCheckStateReady    HealthzCheckState = "Ready"
	HealthzCheckStateNotReady HealthzCheckState = "NotReady"
	HealthzCheckStateUnknown  HealthzCheckState = "Unknown"
	HealthzCheckStateFailed   HealthzCheckState = "Failed"
)

type healthzCheckStatus struct {
	State          HealthzCheckState `json:"state"`
	Message        string            `json:"message"`
	LastUpdateTime time.Time         `json:"lastUpdateTime"`
	// TolerationPeriod is how long a rule may go without heartbeat before it
	// is considered not ready; zero disables the staleness check.
	TolerationPeriod time.Duration `json:"-"`
}

// HealthzCheckResult is the externally visible result of one rule.
type HealthzCheckResult struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

var (
	healthzCheckMap  = make(map[HealthzCheckName]*healthzCheckStatus)
	healthzCheckLock sync.RWMutex
)

// RegisterHeartbeatCheck registers a rule that callers keep alive with UpdateHealthzState.
// Registering an existing name resets it.
func RegisterHeartbeatCheck(name HealthzCheckName, tolerationPeriod time.Duration, initState HealthzCheckState) {
	healthzCheckLock.Lock()
	defer healthzCheckLock.Unlock()

	healthzCheckMap[name] = &healthzCheckStatus{
		State:            initState,
		LastUpdateTime:   time.Now(),
		TolerationPeriod: tolerationPeriod,
	}
}

// UpdateHealthzState refreshes the heartbeat of a registered rule.
func UpdateHealthzState(name HealthzCheckName, state HealthzCheckState, message string) error {
	healthzCheckLock.Lock()
	defer healthzCheckLock.Unlock()

	status, ok := healthzCheckMap[name]
	if !ok {
		return fmt.Errorf("healthz check %v is not registered", name)
	}
	status.State = state
	status.Message = message
	status.LastUpdateTime = time.Now()
	return nil
}

// GetRegisterReadinessCheckResult walks through the registered rules
// and reports whether each of them is ready at this moment.
func GetRegisterReadinessCheckResult() map[HealthzCheckName]HealthzCheckResult {
	healthzCheckLock.RLock()
	defer healthzCheckLock.RUnlock()

	now := time.Now()
	results := make(map[HealthzCheckName]HealthzCheckResult, len(healthzCheckMap))
	for name, status := range healthzCheckMap {
		ready := status.State == HealthzCheckStateReady
		message := status.Message
		if ready && status.TolerationPeriod > 0 && now.Sub(status.LastUpdateTime) > status.TolerationPeriod {
			ready = false
			message = fmt.Sprintf("last heartbeat %v ago exceeds %v", now.Sub(status.LastUpdateTime).Round(time.Second), status.TolerationPeriod)
		}
		results[name] = HealthzCheckResult{Ready: ready, Message: message}
	}
	return results
}

// UnregisterHeartbeatCheck is mainly used by tests.
func UnregisterHeartbeatCheck(name HealthzCheckName) {
	healthzCheckLock.Lock()
	defer healthzCheckLock.Unlock()
	delete(healthzCheckMap, name)
}
