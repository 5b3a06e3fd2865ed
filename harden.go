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

// ProcessName is the diagnostic name given to the hardened process.
const ProcessName = "nsenter"

// Hardened proves that the process has been made non-dumpable. Only Harden
// hands out valid proofs; a zero Hardened is rejected by Join.
type Hardened struct {
	valid bool
}

// Harden clears the dumpable attribute of the process, so that nothing can
// ptrace it anymore while it joins namespaces, and then sets the diagnostic
// process name. Failing to set the name is ignored.
func Harden(sys Syscalls) (Hardened, error) {
	if err := sys.SetDumpable(false); err != nil {
		return Hardened{}, fatalf(HardeningFailure, err, "cannot make process non-dumpable")
	}
	_ = sys.SetName(ProcessName)
	return Hardened{valid: true}, nil
}
