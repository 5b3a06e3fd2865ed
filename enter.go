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
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
)

// Role tells where a run of the join sequence ended up.
type Role int

const (
	// RoleNone: the sequence wasn't triggered and nothing has been done.
	RoleNone Role = iota
	// RoleChild: namespaces joined, forked, readiness signalled; the caller
	// should now exec the workload.
	RoleChild
	// RoleParent: the supervisor, whose child has terminated. The process
	// should exit with the Outcome's ExitCode.
	RoleParent
)

// Outcome of a successful run of the join sequence.
type Outcome struct {
	Role     Role
	ExitCode int // only for RoleParent.
}

// Run runs the complete join sequence as configured: trigger detection,
// hardening, joining, forking, and then either signalling readiness (child)
// or supervising (parent). Failures are returned as *FatalError; Run never
// terminates the process itself.
func Run(lookup Lookup, sys Syscalls) (Outcome, error) {
	cfg, err := LoadConfig(lookup)
	if err != nil {
		return Outcome{}, err
	}
	if !cfg.Enabled {
		return Outcome{Role: RoleNone}, nil
	}
	req := cfg.Request()
	hardened, err := Harden(sys)
	if err != nil {
		req.Release(sys)
		return Outcome{}, err
	}
	if err := Join(hardened, req, sys); err != nil {
		req.Release(sys)
		return Outcome{}, err
	}
	forked, err := Fork(sys)
	if err != nil {
		req.Release(sys)
		return Outcome{}, err
	}
	switch f := forked.(type) {
	case Child:
		if err := Handoff(sys, req.Handoff); err != nil {
			return Outcome{}, err
		}
		return Outcome{Role: RoleChild}, nil
	case Parent:
		code, err := Supervise(sys, f, req.Handoff)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Role: RoleParent, ExitCode: code}, nil
	default:
		panic(fmt.Sprintf("nsenter: unknown fork result %T", forked))
	}
}

// Enter runs the join sequence on the current process, as configured through
// its environment. It returns false if the sequence wasn't triggered, and
// true in the forked child which now must exec its workload, and nothing
// else. The supervising parent never returns, and neither does any fatal
// failure.
//
// Enter must be called from package initialization, while the main
// goroutine is still locked to the main OS thread.
func Enter() bool {
	runtime.LockOSThread()
	return finish(Run(os.LookupEnv, HostSyscalls()))
}

// finish is where the process gets terminated, if necessary.
func finish(outcome Outcome, err error) bool {
	return finishWith(fatalLog, outcome, err)
}

func finishWith(log *logrus.Logger, outcome Outcome, err error) bool {
	if err != nil {
		fail(log, err)
		return false // only when osExit has been replaced.
	}
	switch outcome.Role {
	case RoleChild:
		return true
	case RoleParent:
		osExit(outcome.ExitCode)
		return false
	default:
		runtime.UnlockOSThread()
		return false
	}
}
