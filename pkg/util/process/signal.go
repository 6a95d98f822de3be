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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/smoothtask/smoothtask-core/pkg/util/general"
)

var onlyOneSignalHandler = make(chan struct{})

// SetupSignalHandler returns a context cancelled on the first SIGINT or SIGTERM;
// a second signal terminates the process with exit code 1.
// It panics when called twice.
func SetupSignalHandler() context.Context {
	close(onlyOneSignalHandler)

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		general.Infof("received signal %v, shutting down", sig)
		cancel()
		<-c
		os.Exit(1)
	}()

	return ctx
}
