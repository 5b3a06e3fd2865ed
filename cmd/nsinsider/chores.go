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
	"os"

	"github.com/moby/sys/mount"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thediveo/nsenter"
	"github.com/thediveo/nsenter/reexec"
)

// Names of the chores, as registered reexec actions.
const (
	makeSharedChore = "nsinsider-make-shared"
	mountProcChore  = "nsinsider-mount-proc"
	unmountChore    = "nsinsider-unmount"
	namespacesChore = "nsinsider-namespaces"
)

// targetDirEnvVar passes the --target-dir to chores.
const targetDirEnvVar = "nsinsider_target_dir"

const targetDirFlag = "target-dir"

// choreResult is the result of chores that have nothing to tell, except
// where they did what they did.
type choreResult struct {
	Done   bool   `json:"done"`
	Target string `json:"target,omitempty"`
}

func init() {
	reexec.Register(makeSharedChore, func() {
		chore(func() (interface{}, error) {
			return choreResult{Done: true, Target: "/"}, errors.Wrap(
				mount.MakeShared("/"), "cannot make / shared")
		})
	})
	reexec.Register(mountProcChore, func() {
		chore(func() (interface{}, error) {
			dir, err := targetDir()
			if err != nil {
				return nil, err
			}
			return choreResult{Done: true, Target: dir}, errors.Wrapf(
				mount.Mount("proc", dir, "proc", "nosuid,nodev,noexec"),
				"cannot mount proc on %s", dir)
		})
	})
	reexec.Register(unmountChore, func() {
		chore(func() (interface{}, error) {
			dir, err := targetDir()
			if err != nil {
				return nil, err
			}
			return choreResult{Done: true, Target: dir}, errors.Wrapf(
				mount.Unmount(dir), "cannot unmount %s", dir)
		})
	})
	reexec.Register(namespacesChore, func() {
		chore(func() (interface{}, error) {
			return ownNamespaces()
		})
	})
}

// chore runs fn and writes its result as JSON to stdout. Failures are logged
// to stderr, where the parent picks them up.
func chore(fn func() (interface{}, error)) {
	result, err := fn()
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Error(err.Error())
		osExit(1)
		return
	}
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		log.Error(err.Error())
		osExit(1)
	}
}

// For the sake of code coverage ;)
var osExit = os.Exit

func targetDir() (string, error) {
	dir := os.Getenv(targetDirEnvVar)
	if dir == "" {
		return "", errors.New("missing target directory")
	}
	return dir, nil
}

// ownNamespaces returns the namespace references of the joinable kinds of
// the calling process, such as "net:[4026531992]".
func ownNamespaces() (map[string]string, error) {
	namespaces := map[string]string{}
	for _, kind := range nsenter.Kinds {
		ref, err := os.Readlink(fmt.Sprintf("/proc/self/ns/%s", kind))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read %s namespace reference", kind)
		}
		namespaces[kind.String()] = ref
	}
	return namespaces, nil
}

func newMakeSharedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "make-shared",
		Short: "make the root mount shared",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInside(v, cmd.OutOrStdout(), makeSharedChore)
		},
	}
}

// newTargetDirCmd returns a chore command working on the directory given by
// its --target-dir flag.
func newTargetDirCmd(v *viper.Viper, use, short, chore string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := v.GetString(targetDirFlag)
			if dir == "" {
				return errors.New("missing --target-dir")
			}
			return runInside(v, cmd.OutOrStdout(), chore, targetDirEnvVar+"="+dir)
		},
	}
	cmd.Flags().String(targetDirFlag, "", "directory to work on")
	return cmd
}

func newMountProcCmd(v *viper.Viper) *cobra.Command {
	return newTargetDirCmd(v, "mount-proc", "mount a fresh procfs", mountProcChore)
}

func newUnmountCmd(v *viper.Viper) *cobra.Command {
	return newTargetDirCmd(v, "unmount", "unmount a filesystem", unmountChore)
}

func newNamespacesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "namespaces",
		Short: "show the namespaces chores run in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInside(v, cmd.OutOrStdout(), namespacesChore)
		},
	}
}
