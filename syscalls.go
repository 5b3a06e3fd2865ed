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

package nsenter

import "golang.org/x/sys/unix"

// Syscalls are the process-level operations the join sequence is made of.
// HostSyscalls returns the real thing; tests plug in recording fakes.
type Syscalls interface {
	// SetDumpable sets or clears the process' dumpable attribute.
	SetDumpable(dumpable bool) error
	// SetName sets the (diagnostic) name of the calling thread.
	SetName(name string) error
	// Setns joins the namespace referenced by fd.
	Setns(fd int, kind Kind) error
	// Fchdir changes the working directory to the directory referenced by
	// fd.
	Fchdir(fd int) error
	// Chroot changes the root directory.
	Chroot(path string) error
	// Close closes a file descriptor.
	Close(fd int) error
	// Fork forks the calling thread into a new process, returning 0 in the
	// child and the child's PID in the parent.
	Fork() (pid int, err error)
	// Wait waits for the specified child process to terminate.
	Wait(pid int) (unix.WaitStatus, error)
	// Write writes all of p to fd.
	Write(fd int, p []byte) error
}
