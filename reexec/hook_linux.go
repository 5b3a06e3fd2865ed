// Copyright 2021 Harald Albrecht.
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

package reexec

import (
	"os"
	"strings"
	"syscall"
	"unsafe"

	"github.com/thediveo/nsenter"
	"golang.org/x/sys/unix"
)

// enterNamespaces runs the nsenter join sequence if we've been started as a
// namespace-joining helper. In the forked child it then re-executes our own
// binary, so that the action gets run by a pristine Go runtime that lives
// completely inside the joined namespaces. As the forked child must not do
// anything involving the Go scheduler, everything needed for exec'ing is
// prepared before entering any namespaces.
func enterNamespaces() {
	on, err := nsenter.Enabled(os.LookupEnv)
	if err != nil {
		nsenter.Abort(err)
		return
	}
	if !on {
		return
	}
	rx, err := newReexecution(os.Args, os.Environ())
	if err != nil {
		nsenter.Abort(err)
		return
	}
	if !nsenter.Enter() {
		return
	}
	// Welcome to the forked child. Please don't touch anything.
	err = rx.exec()
	nsenter.Abort(nsenter.NewFatalError(nsenter.HandoffFailure, err,
		"cannot re-execute workload"))
}

// reexecution is an execveat(2) of our own binary, with its arguments and
// environment already converted into what the kernel expects.
type reexecution struct {
	exefd int
	path  *byte
	argv  []*byte
	envv  []*byte
}

// newReexecution opens our own executable and prepares the argument and
// environment pointers for re-executing it. The nsenter environment variables
// are dropped, so the re-executed workload won't try to enter namespaces
// again. The executable is opened now, as later, after changing root, there
// might be no /proc anymore.
func newReexecution(args []string, environ []string) (*reexecution, error) {
	exefd, err := unix.Open("/proc/self/exe", unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, nsenter.NewFatalError(nsenter.HandoffFailure, err,
			"cannot open own executable")
	}
	rx := &reexecution{exefd: exefd, path: &emptyPath[0]}
	if rx.argv, err = syscall.SlicePtrFromStrings(args); err != nil {
		unix.Close(exefd)
		return nil, nsenter.NewFatalError(nsenter.HandoffFailure, err,
			"invalid workload arguments")
	}
	if rx.envv, err = syscall.SlicePtrFromStrings(scrubbedEnv(environ)); err != nil {
		unix.Close(exefd)
		return nil, nsenter.NewFatalError(nsenter.HandoffFailure, err,
			"invalid workload environment")
	}
	return rx, nil
}

// emptyPath is the "" path for execveat(..., AT_EMPTY_PATH).
var emptyPath = [1]byte{0}

// exec replaces the current process with a fresh copy of our binary. It only
// returns on failure.
func (rx *reexecution) exec() error {
	_, _, errno := unix.RawSyscall6(unix.SYS_EXECVEAT,
		uintptr(rx.exefd),
		uintptr(unsafe.Pointer(rx.path)),
		uintptr(unsafe.Pointer(&rx.argv[0])),
		uintptr(unsafe.Pointer(&rx.envv[0])),
		uintptr(unix.AT_EMPTY_PATH), 0)
	return errno
}

// scrubbedEnv returns the environment without any nsenter variables.
func scrubbedEnv(environ []string) []string {
	env := make([]string, 0, len(environ))
NextVar:
	for _, v := range environ {
		for _, name := range nsenter.EnvVars {
			if strings.HasPrefix(v, name+"=") {
				continue NextVar
			}
		}
		env = append(env, v)
	}
	return env
}
