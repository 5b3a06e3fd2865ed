// Copyright 2020 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// nsinsider runs small chores inside the namespaces of another process, such
// as mounting a fresh procfs or making the root mount shared. It re-executes
// itself as a helper which first enters the namespaces of the target process
// and then carries out the chore, reporting back as JSON.
//
//	nsinsider --target 1234 --mount --pid mount-proc --target-dir /proc
//
// Flags can also be set through environment variables prefixed with
// NSINSIDER_, such as NSINSIDER_TARGET=1234.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/thediveo/nsenter/reexec"
)

func main() {
	// Hand over to the chore if we've been re-executed as a helper; this
	// must come first, before anything else gets done.
	reexec.CheckAction()
	if err := newRootCmd().Execute(); err != nil {
		log.Debugf("nsinsider failed: %s", err.Error())
		os.Exit(1)
	}
}
