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

package testsupport

// RunAction is set by nsenter/reexec to its RunAction function, so that
// nsenter/reexec/testing can run actions without importing nsenter/reexec.
var RunAction func() bool

// TestingEnabled is set to true when we're under testing.
var TestingEnabled = false

// NoTests is a -test.run pattern which (hopefully) doesn't match any test.
// Let's suppose for a moment that no sane developer will ever use the
// following name for one of her/his tests ... except for "THEM" :p
const NoTests = "nadazilchnixdairgendwoimnirvanavonbielefeld"

// EnableTesting tells nsenter/reexec that we're under test, so re-executed
// children need to be told to not run any tests.
func EnableTesting() {
	TestingEnabled = true
}

// TestingArgs returns additional testing arguments while under test;
// otherwise it returns an empty slice of arguments. Coverage data of
// re-executed children is gathered by setting GOCOVERDIR, so there's no need
// to pass any coverage profile arguments.
func TestingArgs() []string {
	if !TestingEnabled {
		return []string{}
	}
	return []string{"-test.run=" + NoTests}
}
