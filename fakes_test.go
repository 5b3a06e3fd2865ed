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

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// call is a single recorded system call, such as "setns(3,mnt)".
type call string

// fakeSyscalls records the system calls of the join sequence in the order
// they were issued. A call fails when its recording is listed in fail.
type fakeSyscalls struct {
	calls  []call
	fail   map[call]error
	pid    int             // returned from Fork; 0 makes us the child.
	status unix.WaitStatus // returned from Wait.
	writes map[int][]byte  // data written per fd.
}

var _ Syscalls = (*fakeSyscalls)(nil)

func newFakeSyscalls() *fakeSyscalls {
	return &fakeSyscalls{
		fail:   map[call]error{},
		pid:    4242,
		writes: map[int][]byte{},
	}
}

// failing makes the specified call fail with err.
func (f *fakeSyscalls) failing(c call, err error) *fakeSyscalls {
	f.fail[c] = err
	return f
}

func (f *fakeSyscalls) record(format string, args ...interface{}) error {
	c := call(fmt.Sprintf(format, args...))
	f.calls = append(f.calls, c)
	return f.fail[c]
}

// count returns how often the specified call was issued.
func (f *fakeSyscalls) count(c call) int {
	n := 0
	for _, cc := range f.calls {
		if cc == c {
			n++
		}
	}
	return n
}

func (f *fakeSyscalls) SetDumpable(dumpable bool) error {
	return f.record("dumpable(%t)", dumpable)
}

func (f *fakeSyscalls) SetName(name string) error {
	return f.record("name(%s)", name)
}

func (f *fakeSyscalls) Setns(fd int, kind Kind) error {
	return f.record("setns(%d,%s)", fd, kind)
}

func (f *fakeSyscalls) Fchdir(fd int) error {
	return f.record("fchdir(%d)", fd)
}

func (f *fakeSyscalls) Chroot(path string) error {
	return f.record("chroot(%s)", path)
}

func (f *fakeSyscalls) Close(fd int) error {
	return f.record("close(%d)", fd)
}

func (f *fakeSyscalls) Fork() (int, error) {
	if err := f.record("fork()"); err != nil {
		return -1, err
	}
	return f.pid, nil
}

func (f *fakeSyscalls) Wait(pid int) (unix.WaitStatus, error) {
	if err := f.record("wait(%d)", pid); err != nil {
		return 0, err
	}
	return f.status, nil
}

func (f *fakeSyscalls) Write(fd int, p []byte) error {
	if err := f.record("write(%d,%q)", fd, p); err != nil {
		return err
	}
	f.writes[fd] = append(f.writes[fd], p...)
	return nil
}

// exited returns the wait status of a child that exited with code.
func exited(code int) unix.WaitStatus {
	return unix.WaitStatus(code << 8)
}

// signaled returns the wait status of a child killed by sig.
func signaled(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(sig)
}

// env returns a Lookup serving the specified "key=value" settings.
func env(settings ...string) Lookup {
	vars := map[string]string{}
	for _, s := range settings {
		if key, val, ok := strings.Cut(s, "="); ok {
			vars[key] = val
		}
	}
	return func(key string) (string, bool) {
		val, ok := vars[key]
		return val, ok
	}
}
