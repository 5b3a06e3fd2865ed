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
	"runtime"
	"strings"
)

// FatalKind classifies the step of the join sequence that failed.
type FatalKind int

// All failures of the join sequence are fatal; the only non-fatal one is
// failing to set the process name, and that one doesn't get reported at all.
const (
	ConfigFailure FatalKind = iota + 1
	HardeningFailure
	JoinFailure
	FilesystemTransitionFailure
	ForkFailure
	WaitFailure
	HandoffFailure
)

var fatalKindNames = map[FatalKind]string{
	ConfigFailure:               "config",
	HardeningFailure:            "hardening",
	JoinFailure:                 "join",
	FilesystemTransitionFailure: "filesystem transition",
	ForkFailure:                 "fork",
	WaitFailure:                 "wait",
	HandoffFailure:              "handoff",
}

func (k FatalKind) String() string {
	if name, ok := fatalKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FatalKind(%d)", int(k))
}

// FatalError reports a failed step of the join sequence, together with the
// site it was detected at.
type FatalError struct {
	Kind FatalKind // what kind of step failed.
	Site string    // function where the failure was detected.
	Line int       // source line where the failure was detected.
	Msg  string    // what went wrong.
	Err  error     // underlying (OS) error, if any.
}

// Error returns the "<site>:<line> <msg>: <err>" description of the failure,
// as it will be logged.
func (e *FatalError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d %s", e.Site, e.Line, e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying OS error, if any.
func (e *FatalError) Unwrap() error { return e.Err }

// NewFatalError returns a FatalError of the specified kind, recording its
// caller as the site.
func NewFatalError(kind FatalKind, err error, format string, args ...interface{}) *FatalError {
	return newFatalError(2, kind, err, format, args...)
}

// fatalf is the package-internal variant of NewFatalError.
func fatalf(kind FatalKind, err error, format string, args ...interface{}) *FatalError {
	return newFatalError(2, kind, err, format, args...)
}

func newFatalError(skip int, kind FatalKind, err error, format string, args ...interface{}) *FatalError {
	site, line := "?", 0
	if pc, _, l, ok := runtime.Caller(skip); ok {
		line = l
		if fn := runtime.FuncForPC(pc); fn != nil {
			site = fn.Name()
			// Keep only "package.function", the import path is just noise.
			if idx := strings.LastIndex(site, "/"); idx >= 0 {
				site = site[idx+1:]
			}
		}
	}
	return &FatalError{
		Kind: kind,
		Site: site,
		Line: line,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}
