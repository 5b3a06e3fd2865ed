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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thediveo/nsenter"
	"github.com/thediveo/nsenter/reexec"
)

// Names of the persistent flags, and thus also of the configuration keys.
const (
	targetFlag  = "target"
	mountFlag   = "mount"
	netFlag     = "net"
	pidFlag     = "pid"
	rootFlag    = "root"
	cwdFlag     = "cwd"
	verboseFlag = "verbose"
)

// envPrefix is the prefix of environment variables setting flags.
const envPrefix = "NSINSIDER"

// newRootCmd returns the nsinsider root command with all its chores as
// subcommands. Every root command gets its own viper instance, so the flags
// of one command don't bleed into another.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "nsinsider",
		Short: "nsinsider runs chores inside the namespaces of another process",
		Long: `nsinsider enters the mount, network and PID namespaces of a target
process, optionally changes root and working directory, and then carries out
a single chore, such as mounting procfs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			log.SetFormatter(&log.TextFormatter{})
			log.SetOutput(cmd.ErrOrStderr())
			if v.GetBool(verboseFlag) {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.InfoLevel)
			}
			return nil
		},
	}
	pf := rootCmd.PersistentFlags()
	pf.Int(targetFlag, 0, "PID of the process whose namespaces to enter")
	pf.Bool(mountFlag, false, "enter the mount namespace of the target process")
	pf.Bool(netFlag, false, "enter the network namespace of the target process")
	pf.Bool(pidFlag, false, "enter the PID namespace of the target process")
	pf.String(rootFlag, "", "change root to this directory, such as /proc/$PID/root")
	pf.String(cwdFlag, "", "change the working directory to this directory")
	pf.BoolP(verboseFlag, "v", false, "log what's going on")

	rootCmd.AddCommand(
		newMakeSharedCmd(v),
		newMountProcCmd(v),
		newUnmountCmd(v),
		newNamespacesCmd(v),
	)
	return rootCmd
}

// enterOptions returns the reexec options for entering the namespaces and
// directories as configured.
func enterOptions(v *viper.Viper) ([]reexec.Option, error) {
	target := v.GetInt(targetFlag)
	kinds := []nsenter.Kind{}
	for _, kind := range []struct {
		flag string
		kind nsenter.Kind
	}{
		{mountFlag, nsenter.Mount},
		{netFlag, nsenter.Network},
		{pidFlag, nsenter.PID},
	} {
		if v.GetBool(kind.flag) {
			kinds = append(kinds, kind.kind)
		}
	}
	if len(kinds) > 0 && target <= 0 {
		return nil, errors.New("entering namespaces requires a --target PID")
	}
	opts := []reexec.Option{reexec.Namespaces(reexec.NamespacesOf(target, kinds...)...)}
	if root := v.GetString(rootFlag); root != "" {
		opts = append(opts, reexec.Root(root))
	}
	if cwd := v.GetString(cwdFlag); cwd != "" {
		opts = append(opts, reexec.Cwd(cwd))
	}
	log.WithFields(log.Fields{
		"target": target,
		"kinds":  kinds,
		"root":   v.GetString(rootFlag),
		"cwd":    v.GetString(cwdFlag),
	}).Debug("entering")
	return opts, nil
}

// runInside runs the specified chore inside the configured namespaces and
// writes its result to out.
func runInside(v *viper.Viper, out io.Writer, chore string, envvars ...string) error {
	opts, err := enterOptions(v)
	if err != nil {
		return err
	}
	var result json.RawMessage
	opts = append(opts, reexec.Environment(envvars...), reexec.Result(&result))
	if err := reexec.RunReexecAction(chore, opts...); err != nil {
		return errors.Wrapf(err, "chore %s failed", chore)
	}
	log.Debugf("chore %s done", chore)
	_, err = fmt.Fprintln(out, string(result))
	return err
}
