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

// ExitSignaled is the exit code of the supervising parent when its child got
// terminated by a signal. It is never the signal number and never 0.
const ExitSignaled = 255

// HandoffSentinel is the single byte written by the child to the handoff
// channel to tell the orchestrator that it is ready to exec the workload.
const HandoffSentinel byte = 'R'

// sentinel lives outside the stack so that writing it in the forked child
// doesn't need any allocation.
var sentinel = [1]byte{HandoffSentinel}

// ForkResult is either Child or Parent.
type ForkResult interface {
	forkResult()
}

// Child is the ForkResult in the newly forked process.
type Child struct{}

// Parent is the ForkResult in the original process; PID is the child's PID.
type Parent struct {
	PID int
}

func (Child) forkResult()  {}
func (Parent) forkResult() {}

// Fork forks the hardened and namespace-switched process. A failed fork is
// not retried.
func Fork(sys Syscalls) (ForkResult, error) {
	pid, err := sys.Fork()
	if err != nil {
		return nil, fatalf(ForkFailure, err, "cannot fork")
	}
	if pid == 0 {
		return Child{}, nil
	}
	return Parent{PID: pid}, nil
}

// Handoff signals on the handoff channel that the child is ready, and then
// closes the child's end. Without a handoff channel there's nobody to tell.
func Handoff(sys Syscalls, handoff *Descriptor) error {
	if handoff == nil {
		return nil
	}
	err := sys.Write(handoff.FD(), sentinel[:])
	_ = handoff.Close(sys)
	if err != nil {
		return fatalf(HandoffFailure, err, "cannot signal readiness via fd %d", handoff.FD())
	}
	return nil
}

// Supervise waits for the child to terminate and returns the exit code the
// parent should exit with. The parent's copy of the handoff channel gets
// closed first, as only the child is allowed to signal on it.
func Supervise(sys Syscalls, child Parent, handoff *Descriptor) (int, error) {
	_ = handoff.Close(sys)
	ws, err := sys.Wait(child.PID)
	if err != nil {
		return 1, fatalf(WaitFailure, err, "cannot wait for child PID %d", child.PID)
	}
	return ExitCode(ws), nil
}

// ExitCode maps the wait status of the child to the exit code of the parent:
// the child's exit code if it exited normally, ExitSignaled otherwise.
func ExitCode(ws unix.WaitStatus) int {
	if ws.Exited() {
		return ws.ExitStatus()
	}
	return ExitSignaled
}
