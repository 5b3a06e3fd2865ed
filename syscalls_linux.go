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

//go:build linux
// +build linux

package nsenter

import (
	"runtime/debug"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hostSyscalls implements Syscalls on top of the real kernel. All operations
// act on the calling OS thread wherever the kernel allows for it, so the
// caller must have locked its goroutine to its thread.
type hostSyscalls struct{}

var _ Syscalls = (*hostSyscalls)(nil)

// HostSyscalls returns the Syscalls operating on the current process.
func HostSyscalls() Syscalls { return &hostSyscalls{} }

func (*hostSyscalls) SetDumpable(dumpable bool) error {
	var flag uintptr
	if dumpable {
		flag = 1
	}
	return unix.Prctl(unix.PR_SET_DUMPABLE, flag, 0, 0, 0)
}

func (*hostSyscalls) SetName(name string) error {
	// The kernel silently truncates to 15 characters plus the terminating
	// zero.
	b, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(b)), 0, 0, 0)
}

func (*hostSyscalls) Setns(fd int, kind Kind) error {
	if kind == Mount {
		// The kernel refuses to switch the mount namespace as long as the
		// filesystem attributes are shared with other threads, which is
		// always the case with the Go runtime. So give this thread its own
		// copy first; this also scopes the following chroot to this thread.
		if err := unix.Unshare(unix.CLONE_FS); err != nil {
			return err
		}
	}
	return unix.Setns(fd, kind.CloneFlag())
}

func (*hostSyscalls) Fchdir(fd int) error { return unix.Fchdir(fd) }

func (*hostSyscalls) Chroot(path string) error { return unix.Chroot(path) }

// Close uses a raw syscall as it also gets called in the freshly forked
// child, where we must not get the Go scheduler involved.
func (*hostSyscalls) Close(fd int) error {
	if _, _, errno := unix.RawSyscall(unix.SYS_CLOSE, uintptr(fd), 0, 0); errno != 0 {
		return errno
	}
	return nil
}

// Fork clones the calling thread into a new process. The child ends up with
// only this single thread, so it must restrict itself to raw syscalls until
// it execs. To keep the garbage collector from stopping the world in the
// child, the GC is switched off around the fork; the parent switches it back
// on.
func (*hostSyscalls) Fork() (int, error) {
	gcpercent := debug.SetGCPercent(-1)
	syscall.ForkLock.Lock()
	// clone(SIGCHLD, 0, ...) is fork(2); note that s390x has the first two
	// clone parameters swapped.
	pid, _, errno := unix.RawSyscall6(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0, 0, 0, 0)
	if pid == 0 && errno == 0 {
		return 0, nil
	}
	syscall.ForkLock.Unlock()
	debug.SetGCPercent(gcpercent)
	if errno != 0 {
		return -1, errno
	}
	return int(pid), nil
}

func (*hostSyscalls) Wait(pid int) (unix.WaitStatus, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		return ws, err
	}
}

// Write uses a raw syscall, as it also gets called in the freshly forked
// child.
func (*hostSyscalls) Write(fd int, p []byte) error {
	for len(p) > 0 {
		n, _, errno := unix.RawSyscall(unix.SYS_WRITE, uintptr(fd),
			uintptr(unsafe.Pointer(&p[0])), uintptr(len(p)))
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return errno
		}
		p = p[n:]
	}
	return nil
}
