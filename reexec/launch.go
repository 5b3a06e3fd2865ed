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

package reexec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/thediveo/nsenter"
	"github.com/thediveo/nsenter/reexec/internal/testsupport"
	"golang.org/x/sys/unix"
)

// HelperGracePeriod is how long a re-executed helper gets to terminate after
// it has delivered its result, or after its output has gone quiet, before it
// gets killed.
var HelperGracePeriod = 1 * time.Second

// Namespace describes a Linux kernel namespace into which a re-executed
// helper should switch: its kind and a path to reference it.
type Namespace struct {
	Kind nsenter.Kind // namespace kind, such as nsenter.Network.
	Path string       // path reference to namespace in filesystem.
}

// NamespacesOf returns the namespace references of the specified kinds for
// the process with the specified PID.
func NamespacesOf(pid int, kinds ...nsenter.Kind) []Namespace {
	namespaces := make([]Namespace, 0, len(kinds))
	for _, kind := range kinds {
		namespaces = append(namespaces, Namespace{
			Kind: kind,
			Path: fmt.Sprintf("/proc/%d/ns/%s", pid, kind),
		})
	}
	return namespaces
}

// Option configures a re-execution.
type Option func(*reexecOptions)

type reexecOptions struct {
	namespaces []Namespace
	root       string
	cwd        string
	envvars    []string
	result     interface{}
}

// Namespaces adds namespaces to switch into. The order in which the
// namespaces are specified doesn't matter, nsenter always joins in the same
// order. Each kind of namespace can be specified only once.
func Namespaces(namespaces ...Namespace) Option {
	return func(o *reexecOptions) {
		o.namespaces = append(o.namespaces, namespaces...)
	}
}

// Root sets the directory that becomes the root directory, after switching
// mount namespaces. The path is resolved by the caller, not the helper.
func Root(path string) Option {
	return func(o *reexecOptions) { o.root = path }
}

// Cwd sets the working directory after changing the root directory. The path
// is resolved by the caller, not the helper.
func Cwd(path string) Option {
	return func(o *reexecOptions) { o.cwd = path }
}

// Environment passes additional environment variables ("name=value") to the
// action.
func Environment(envvars ...string) Option {
	return func(o *reexecOptions) {
		o.envvars = append(o.envvars, envvars...)
	}
}

// Result sets the element into which the JSON output of the action gets
// deserialized.
func Result(v interface{}) Option {
	return func(o *reexecOptions) { o.result = v }
}

// HelperFatalError reports a helper which could not enter its namespaces and
// thus never handed over to the action.
type HelperFatalError struct {
	Level    string `json:"level"` // as logged by the helper, "fatal".
	Msg      string `json:"msg"`   // as logged by the helper.
	ExitCode int    `json:"-"`     // exit code of the helper.
}

// Error returns the helper's fatal log message.
func (e *HelperFatalError) Error() string {
	return fmt.Sprintf("nsenter/reexec: helper failed (exit code %d): %s",
		e.ExitCode, e.Msg)
}

// ForkReexec restarts the application using reexec as a new helper process
// which first switches into the specified namespaces and then executes only
// the specified action (actionname). The output of the action gets
// deserialized as JSON into the passed result element. The call returns
// after the helper process has terminated.
func ForkReexec(actionname string, namespaces []Namespace, result interface{}) error {
	return RunReexecAction(actionname, Namespaces(namespaces...), Result(result))
}

// RunReexecAction restarts the application using reexec as a new helper
// process which switches into the namespaces and directories as configured
// by the options, and then executes only the specified action (actionname).
// The call returns after the helper process has terminated.
func RunReexecAction(actionname string, options ...Option) (err error) {
	// Safeguard against applications trying to re-execute, but forgetting to
	// enable the required re-execution of themselves by calling
	// CheckAction() very early in their runtime live.
	if !reexecEnabled {
		if actionname := os.Getenv(ActionEnvVar); actionname == "" {
			panic("nsenter/reexec: RunReexecAction: application does not support " +
				"forking and restarting, needs to call reexec.CheckAction() " +
				"first before running discovery")
		}
		panic("nsenter/reexec: RunReexecAction: tried to re-execute in " +
			"already re-executing child process")
	}
	if _, ok := actions[actionname]; !ok {
		panic("nsenter/reexec: RunReexecAction: attempting to re-execute into " +
			"unregistered action \"" + actionname + "\"")
	}
	opts := reexecOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	// When under test, make sure that the re-executed test binary doesn't run
	// the tests again.
	helper := exec.Command("/proc/self/exe", testsupport.TestingArgs()...)
	helper.Env = append(os.Environ(), opts.envvars...)
	// Put the helper and its workload into their own process group, so we
	// can get rid of both in case the workload hangs.
	helper.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// The namespaces and directories get passed as open file descriptors;
	// ExtraFiles start at fd 3 in the helper.
	var files []*os.File
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	pass := func(envvar string, f *os.File) {
		helper.Env = append(helper.Env, fmt.Sprintf("%s=%d", envvar, 3+len(files)))
		files = append(files, f)
	}
	seen := map[nsenter.Kind]bool{}
	for _, ns := range opts.namespaces {
		if seen[ns.Kind] {
			return errors.Errorf("nsenter/reexec: RunReexecAction: duplicate %s namespace", ns.Kind)
		}
		seen[ns.Kind] = true
		f, err := os.Open(ns.Path)
		if err != nil {
			return errors.Wrapf(err, "nsenter/reexec: RunReexecAction: cannot open %s namespace reference",
				ns.Kind)
		}
		pass(ns.Kind.EnvVar(), f)
	}
	for _, dir := range []struct {
		envvar string
		path   string
	}{
		{nsenter.EnvRootFD, opts.root},
		{nsenter.EnvCwdFD, opts.cwd},
	} {
		if dir.path == "" {
			continue
		}
		f, err := os.Open(dir.path)
		if err != nil {
			return errors.Wrap(err, "nsenter/reexec: RunReexecAction: cannot open directory")
		}
		pass(dir.envvar, f)
	}
	// The helper signals via the handoff pipe when it has joined all
	// namespaces, so we can tell a helper failure from an action failure.
	handoffr, handoffw, err := os.Pipe()
	if err != nil {
		return errors.Wrap(err, "nsenter/reexec: RunReexecAction: cannot create handoff pipe")
	}
	defer handoffr.Close()
	pass(nsenter.EnvHandoffFD, handoffw)
	helper.ExtraFiles = files
	helper.Env = append(helper.Env,
		nsenter.EnvInit+"=1",
		ActionEnvVar+"="+actionname)
	// The action's result flows through a pipe of our own, so that reading
	// it isn't tied to Wait()ing for the helper.
	outr, outw, err := os.Pipe()
	if err != nil {
		return errors.Wrap(err, "nsenter/reexec: RunReexecAction: cannot create output pipe")
	}
	defer outr.Close()
	defer outw.Close()
	helper.Stdout = outw
	var helpererr bytes.Buffer
	helper.Stderr = &helpererr
	helper.WaitDelay = HelperGracePeriod
	if err := helper.Start(); err != nil {
		return errors.Wrap(err, "nsenter/reexec: RunReexecAction: cannot restart a fork of myself")
	}
	// Only the helper must hold the write ends of the handoff and output
	// pipes, otherwise we would never see EOF on them.
	_ = outw.Close()
	for _, f := range files {
		_ = f.Close()
	}
	files = nil
	if !handedOff(handoffr) {
		return helperFailure(helper, outr)
	}
	result := opts.result
	if result == nil {
		result = &json.RawMessage{}
	}
	decodererr, err := collect(helper, outr, result)
	// Any stderr output takes precedence over decoder errors, as when the
	// action panics, then that is of more importance than any hiccup the
	// result decoder encounters due to the action's problems.
	if hiccup := helpererr.String(); hiccup != "" {
		return errors.Errorf(
			"nsenter/reexec: RunReexecAction: child failed with stderr message: %q",
			hiccup)
	}
	if decodererr != nil {
		return errors.Wrap(decodererr,
			"nsenter/reexec: RunReexecAction: cannot decode child result")
	}
	return err
}

// collect decodes the action's result as it flows in, and sees to it that
// the helper terminates. Once the action has started talking, it must either
// complete its result or terminate within the grace period after it went
// quiet; otherwise the helper's whole process group gets killed. A JSON
// scalar isn't complete until the next byte or EOF, so killing also gives the
// decoder its final EOF. A helper killed this way isn't reported as an error.
func collect(helper *exec.Cmd, out *os.File, result interface{}) (decodererr, err error) {
	active := make(chan struct{}, 1)
	decoded := make(chan error, 1)
	go func() {
		decoded <- json.NewDecoder(&activityReader{r: out, active: active}).Decode(result)
	}()
	waited := make(chan error, 1)
	go func() {
		waited <- helper.Wait()
	}()
	kill := func() {
		_ = unix.Kill(-helper.Process.Pid, unix.SIGKILL)
	}
	var quiet <-chan time.Time
	for {
		select {
		case <-active:
			quiet = time.After(HelperGracePeriod)
		case <-quiet:
			kill()
			<-waited
			return <-decoded, nil
		case decodererr = <-decoded:
			select {
			case err = <-waited:
			case <-time.After(HelperGracePeriod):
				kill()
				<-waited
				err = nil
			}
			return decodererr, err
		case err = <-waited:
			// Whatever the helper left behind might still hold on to the
			// output pipe, so don't wait for an EOF forever.
			select {
			case decodererr = <-decoded:
			case <-time.After(HelperGracePeriod):
				kill()
				_ = out.Close()
				decodererr = <-decoded
			}
			return decodererr, err
		}
	}
}

// activityReader notifies on active whenever data has been read.
type activityReader struct {
	r      io.Reader
	active chan<- struct{}
}

func (a *activityReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		select {
		case a.active <- struct{}{}:
		default:
		}
	}
	return n, err
}

// handedOff returns true if the helper sent the handoff sentinel, and false
// if it closed its end without.
func handedOff(r io.Reader) bool {
	var b [1]byte
	n, _ := io.ReadFull(r, b[:])
	return n == 1 && b[0] == nsenter.HandoffSentinel
}

// helperFailure waits for a helper that failed to hand off and returns the
// fatal error it logged.
func helperFailure(helper *exec.Cmd, helperout io.Reader) error {
	out, _ := io.ReadAll(helperout)
	_ = helper.Wait()
	exitcode := helper.ProcessState.ExitCode()
	fatal := &HelperFatalError{}
	if err := json.Unmarshal(bytes.TrimSpace(out), fatal); err != nil || fatal.Msg == "" {
		return errors.Errorf(
			"nsenter/reexec: RunReexecAction: helper failed without handing off (exit code %d): %q",
			exitcode, string(out))
	}
	fatal.ExitCode = exitcode
	return fatal
}
