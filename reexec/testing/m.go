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

package testing

import (
	"fmt"
	"io"
	"os"
	gotesting "testing"

	"github.com/thediveo/nsenter/reexec/internal/testsupport"
)

// M is an "enhanced" version of Golang's testing.M which runs a pending
// re-execution action instead of the tests, if there is any.
type M struct {
	*gotesting.M
}

// ExitActionPanicked is the exit code of a re-executed test binary whose
// action panicked.
const ExitActionPanicked = 2

// Run either runs the action a re-executed test binary has been asked to
// run, or otherwise the tests. Run returns an exit code to pass to os.Exit.
func (m *M) Run() (exitcode int) {
	if reexeced, exitcode := runAction(os.Stderr); reexeced {
		return exitcode
	}
	// We're the parent test process, so tell nsenter/reexec that re-executed
	// children must not run tests again.
	testsupport.EnableTesting()
	return m.M.Run()
}

// runAction runs the requested action, if any, reporting whether this was a
// re-execution. Please note that we cannot use nsenter/reexec.RunAction()
// directly, as this would result in an import cycle. To break this vicious
// cycle we use testsupport's RunAction instead, which nsenter/reexec will
// initialize to point to its real implementation of RunAction.
func runAction(stderr io.Writer) (reexeced bool, exitcode int) {
	if testsupport.RunAction == nil {
		panic("nsenter/reexec/testing: nsenter/reexec must be imported")
	}
	// RunAction() panics when it is asked to run a non-registered action, and
	// actions might panic too. Either way, the parent should learn about it
	// via our stderr.
	defer func() {
		if recovered := recover(); recovered != nil {
			fmt.Fprint(stderr, recovered)
			reexeced, exitcode = true, ExitActionPanicked
		}
	}()
	reexeced = testsupport.RunAction()
	return
}
