// Copyright 2019 Harald Albrecht.
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

package reexec

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/thediveo/nsenter"
	"github.com/thediveo/lxkns/ops"
	"github.com/thediveo/lxkns/species"
	"github.com/thediveo/testbasher"
	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func init() {
	Register("action", func() {
		fmt.Fprint(os.Stdout, `"done"`)
	})
	Register("sleepy", func() {
		fmt.Fprint(os.Stdout, `"sleeping"`)
		// Just keep this re-executed child action sleeping; we will be killed
		// by our parent when the test is done. What a lovely family.
		for {
			time.Sleep(time.Hour)
		}
	})
	Register("slowpoke", func() {
		time.Sleep(HelperGracePeriod + 500*time.Millisecond)
		fmt.Fprint(os.Stdout, `"late"`)
	})
	Register("unintelligible", func() {
		// Return something the parent process didn't expect.
		println(42)
	})
	Register("exit42", func() {
		fmt.Fprint(os.Stdout, `"bye"`)
		os.Exit(42)
	})
	Register("suicide", func() {
		fmt.Fprint(os.Stdout, `"bye"`)
		_ = unix.Kill(os.Getpid(), unix.SIGKILL)
		time.Sleep(time.Hour)
	})
	Register("cwd", func() {
		cwd, _ := os.Getwd()
		_ = json.NewEncoder(os.Stdout).Encode(cwd)
	})
	Register("netns", func() {
		id, err := ops.NamespacePath("/proc/self/ns/net").ID()
		if err != nil {
			panic(err)
		}
		_ = json.NewEncoder(os.Stdout).Encode(id)
	})
}

var _ = Describe("reexec", func() {

	It("runs action and decodes answer", func() {
		var s string
		Expect(ForkReexec("action", []Namespace{}, &s)).NotTo(HaveOccurred())
		Expect(s).To(Equal("done"))
	})

	It("doesn't accept registering the same action name twice", func() {
		Expect(func() { Register("foo", func() {}) }).NotTo(Panic())
		Expect(func() { Register("foo", func() {}) }).To(Panic())
	})

	It("refuses to re-execute into unregistered actions", func() {
		Expect(func() { _ = RunReexecAction("nada") }).To(Panic())
	})

	It("doesn't run the child for a non-preregistered action", func() {
		// Note how registering the bar action here will cause the re-executed
		// package test child to fail, because this will trigger CheckAction()
		// without the bar action being registered early enough in the child.
		Expect(func() { Register("bar", func() {}) }).NotTo(Panic())
		Expect(ForkReexec("bar", []Namespace{}, nil)).To(
			MatchError(MatchRegexp(`RunReexecAction: child failed with stderr message:`)))
	})

	It("reports unintelligible results", func() {
		var s string
		Expect(RunReexecAction("unintelligible", Result(&s))).To(HaveOccurred())
	})

	It("terminates a hanging re-executed child", func() {
		var s string
		done := make(chan error)
		go func() {
			defer GinkgoRecover()
			Expect(RunReexecAction("sleepy", Result(&s))).ToNot(HaveOccurred())
			Expect(s).To(Equal("sleeping"))
			close(done)
		}()
		Eventually(done, 5*time.Second).Should(BeClosed())
	})

	It("waits for a silent action to deliver its result", func() {
		var s string
		Expect(RunReexecAction("slowpoke", Result(&s))).To(Succeed())
		Expect(s).To(Equal("late"))
	})

	It("passes on the action's exit code", func() {
		err := RunReexecAction("exit42")
		Expect(err).To(HaveOccurred())
		var ee *exec.ExitError
		Expect(errors.As(err, &ee)).To(BeTrue())
		Expect(ee.ExitCode()).To(Equal(42))
	})

	It("reports a signalled action with the sentinel exit code", func() {
		err := RunReexecAction("suicide")
		var ee *exec.ExitError
		Expect(errors.As(err, &ee)).To(BeTrue())
		Expect(ee.ExitCode()).To(Equal(255))
	})

	It("changes the working directory", func() {
		tmpdir, err := os.MkdirTemp("", "nsenter-cwd-")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(tmpdir)
		tmpdir, err = filepath.EvalSymlinks(tmpdir)
		Expect(err).NotTo(HaveOccurred())
		var cwd string
		Expect(RunReexecAction("cwd", Cwd(tmpdir), Result(&cwd))).To(Succeed())
		Expect(cwd).To(Equal(tmpdir))
	})

	It("reports helpers failing to join", func() {
		err := RunReexecAction("action", Namespaces(Namespace{
			Kind: nsenter.Network,
			Path: "/dev/null",
		}))
		var fatal *HelperFatalError
		Expect(errors.As(err, &fatal)).To(BeTrue())
		Expect(fatal.ExitCode).To(Equal(1))
		Expect(fatal.Level).To(Equal("fatal"))
		Expect(fatal.Msg).To(MatchRegexp(
			`^nsenter\.join:\d+ cannot join net namespace via fd 3: invalid argument$`))
	})

	It("rejects duplicate namespace kinds", func() {
		Expect(RunReexecAction("action", Namespaces(
			NamespacesOf(os.Getpid(), nsenter.Network, nsenter.Network)...))).To(
			MatchError(MatchRegexp(`duplicate net namespace`)))
	})

	It("reports unopenable namespace references", func() {
		Expect(RunReexecAction("action", Namespaces(Namespace{
			Kind: nsenter.Network,
			Path: "/nada/zilch",
		}))).To(MatchError(MatchRegexp(`cannot open net namespace reference`)))
	})

	It("switches into another network namespace", func() {
		if os.Geteuid() != 0 {
			Skip("needs root")
		}
		scripts := testbasher.Basher{}
		defer scripts.Done()
		scripts.Common(`set -e`)
		scripts.Script("main", `
unshare -n $stage2
`)
		scripts.Script("stage2", `
echo $$
read
`)
		cmd := scripts.Start("main")
		defer cmd.Close()
		var pid int
		cmd.Decode(&pid)
		ns := NamespacesOf(pid, nsenter.Network)
		expected, err := ops.NamespacePath(ns[0].Path).ID()
		Expect(err).NotTo(HaveOccurred())
		own, err := ops.NamespacePath("/proc/self/ns/net").ID()
		Expect(err).NotTo(HaveOccurred())
		Expect(expected).NotTo(Equal(own))

		var id species.NamespaceID
		Expect(ForkReexec("netns", ns, &id)).To(Succeed())
		Expect(id).To(Equal(expected))
	})

})
