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

package process

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/errors"

	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

// MaxSystemdStatusLength bounds the STATUS= payload sent to the service manager.
const MaxSystemdStatusLength = 200

type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

// SystemdNotifier reports readiness and status through the sd_notify protocol.
// Every call is a no-op when NOTIFY_SOCKET is not set.
type SystemdNotifier struct {
	notify notifyFunc
}

func NewSystemdNotifier() *SystemdNotifier {
	return &SystemdNotifier{notify: daemon.SdNotify}
}

// NotifyReady sends READY=1.
func (s *SystemdNotifier) NotifyReady() error {
	return s.send(daemon.SdNotifyReady)
}

// NotifyStatus sends STATUS=<status>, truncated to MaxSystemdStatusLength bytes.
func (s *SystemdNotifier) NotifyStatus(status string) error {
	return s.send("STATUS=" + TruncateStatus(status))
}

func (s *SystemdNotifier) send(state string) error {
	sent, err := s.notify(false, state)
	if err != nil {
		return errors.Wrapf(err, "sd_notify %q", state)
	}
	if !sent {
		general.InfofV(6, "sd_notify %q skipped: not running under systemd", state)
	}
	return nil
}

// TruncateStatus cuts status to at most MaxSystemdStatusLength bytes without
// splitting a UTF-8 sequence.
func TruncateStatus(status string) string {
	if len(status) <= MaxSystemdStatusLength {
		return status
	}
	cut := MaxSystemdStatusLength
	for cut > 0 && status[cut]&0xc0 == 0x80 {
		cut--
	}
	return status[:cut]
}
