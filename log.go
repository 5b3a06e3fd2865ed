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
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// fatalLog writes the single fatal record to stdout, where the supervisor
// expects it. Only "level" and "msg" get logged, so no timestamps.
var fatalLog = NewFatalLogger(os.Stdout)

// For the sake of code coverage ;)
var osExit = os.Exit

// NewFatalLogger returns a logger writing fatal records as single JSON lines
// of the form {"level":"fatal","msg":"..."} to w.
func NewFatalLogger(w io.Writer) *logrus.Logger {
	return &logrus.Logger{
		Out:       w,
		Formatter: &logrus.JSONFormatter{DisableTimestamp: true},
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.FatalLevel,
		ExitFunc:  os.Exit,
	}
}

// Abort logs err as a single fatal record and then terminates the process
// with exit code 1. It must only be used from within the join sequence and
// its hand-over to the workload.
func Abort(err error) {
	fail(fatalLog, err)
}

func fail(log *logrus.Logger, err error) {
	// Log at fatal level, but do not use log.Fatal(), as we want to stay in
	// control of how we terminate.
	log.Log(logrus.FatalLevel, err.Error())
	osExit(1)
}
