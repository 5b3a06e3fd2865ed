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
	"strings"

	"github.com/spf13/cast"
)

// Names of the environment variables controlling the join sequence.
const (
	EnvInit      = "nsenter_init"
	EnvMountFD   = "nsenter_mntfd"
	EnvRootFD    = "nsenter_rootfd"
	EnvCwdFD     = "nsenter_cwdfd"
	EnvNetworkFD = "nsenter_netfd"
	EnvPIDFD     = "nsenter_pidfd"
	EnvHandoffFD = "nsenter_handofffd"
)

// EnvVars lists all environment variables understood by LoadConfig. A helper
// handing over to its workload scrubs these, so the workload doesn't try to
// enter namespaces all over again.
var EnvVars = []string{
	EnvInit, EnvMountFD, EnvRootFD, EnvCwdFD, EnvNetworkFD, EnvPIDFD, EnvHandoffFD,
}

// NoFD marks an absent descriptor in Config.
const NoFD = -1

// Config is what the join sequence has been told to do. Descriptors not
// configured are set to NoFD.
type Config struct {
	Enabled   bool
	MountFD   int
	RootFD    int
	CwdFD     int
	NetworkFD int
	PIDFD     int
	HandoffFD int
}

// Lookup returns the value of a configuration key and whether it was set, in
// the same way as os.LookupEnv does.
type Lookup func(key string) (string, bool)

// Enabled returns true if the join sequence has been triggered. It looks at
// nothing else than the trigger, so it is safe (and cheap) to call for every
// process start. An unparsable trigger value is reported as an error, as
// silently ignoring it would start a workload outside its namespaces.
func Enabled(lookup Lookup) (bool, error) {
	val, ok := lookup(EnvInit)
	if !ok || strings.TrimSpace(val) == "" {
		return false, nil
	}
	on, err := cast.ToBoolE(strings.TrimSpace(val))
	if err != nil {
		return false, fatalf(ConfigFailure, err, "invalid %s value %q", EnvInit, val)
	}
	return on, nil
}

// LoadConfig reads the configuration once. If the trigger isn't set then no
// other keys are looked at and a disabled Config is returned.
func LoadConfig(lookup Lookup) (Config, error) {
	cfg := Config{
		MountFD:   NoFD,
		RootFD:    NoFD,
		CwdFD:     NoFD,
		NetworkFD: NoFD,
		PIDFD:     NoFD,
		HandoffFD: NoFD,
	}
	on, err := Enabled(lookup)
	if err != nil || !on {
		return cfg, err
	}
	cfg.Enabled = true
	for _, fd := range []struct {
		key string
		val *int
	}{
		{EnvMountFD, &cfg.MountFD},
		{EnvRootFD, &cfg.RootFD},
		{EnvCwdFD, &cfg.CwdFD},
		{EnvNetworkFD, &cfg.NetworkFD},
		{EnvPIDFD, &cfg.PIDFD},
		{EnvHandoffFD, &cfg.HandoffFD},
	} {
		val, ok := lookup(fd.key)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		n, err := cast.ToIntE(strings.TrimSpace(val))
		if err != nil {
			return cfg, fatalf(ConfigFailure, err, "invalid %s descriptor %q", fd.key, val)
		}
		if n < 0 {
			return cfg, fatalf(ConfigFailure, nil, "invalid %s descriptor %q", fd.key, val)
		}
		*fd.val = n
	}
	return cfg, nil
}

// Request returns a join request taking ownership of the configured
// descriptors.
func (c Config) Request() *Request {
	own := func(fd int) *Descriptor {
		if fd == NoFD {
			return nil
		}
		return NewDescriptor(fd)
	}
	return &Request{
		Mount:   own(c.MountFD),
		Root:    own(c.RootFD),
		Cwd:     own(c.CwdFD),
		Network: own(c.NetworkFD),
		PID:     own(c.PIDFD),
		Handoff: own(c.HandoffFD),
	}
}
