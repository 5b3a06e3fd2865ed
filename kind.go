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

	"github.com/thediveo/lxkns/species"
)

// Kind is the type of a namespace that can be joined.
type Kind int

// The namespace kinds supported for joining. User, IPC, UTS, cgroup and time
// namespaces are out of scope.
const (
	Mount Kind = iota
	Network
	PID
)

// Kinds lists all supported namespace kinds in the order in which they get
// joined. Please note that the root and working directory change happens in
// between Mount and Network.
var Kinds = []Kind{Mount, Network, PID}

// CloneFlag returns the CLONE_NEWxxx flag to pass to setns(2) for this kind
// of namespace, or 0 for an unknown kind.
func (k Kind) CloneFlag() int {
	switch k {
	case Mount:
		return int(species.CLONE_NEWNS)
	case Network:
		return int(species.CLONE_NEWNET)
	case PID:
		return int(species.CLONE_NEWPID)
	}
	return 0
}

// String returns the name of the namespace kind as used in /proc/$PID/ns/.
func (k Kind) String() string {
	switch k {
	case Mount:
		return "mnt"
	case Network:
		return "net"
	case PID:
		return "pid"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// EnvVar returns the name of the environment variable which references an
// open namespace descriptor of this kind.
func (k Kind) EnvVar() string {
	switch k {
	case Mount:
		return EnvMountFD
	case Network:
		return EnvNetworkFD
	case PID:
		return EnvPIDFD
	}
	return ""
}
