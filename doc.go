// Package nsenter makes a freshly started helper process enter already
// existing Linux mount, network, and PID namespaces, as well as an alternate
// root and working directory, before handing control back to the caller,
// which is then expected to exec the real workload.
//
// # Runtime Usage
//
// The helper is told what to do through its environment. The namespaces and
// directories are passed as inherited open file descriptors, never as paths,
// so that the supervisor opening them stays in control of what exactly gets
// joined. Set only the variables for those steps that should be carried out;
// all names must be lowercase:
//
//	nsenter_init=1          # anything cast can take as "true"
//	nsenter_mntfd=3         # join this mount namespace
//	nsenter_rootfd=4        # fchdir to this directory, then chroot(".")
//	nsenter_cwdfd=5         # then fchdir to this directory
//	nsenter_netfd=6         # join this network namespace
//	nsenter_pidfd=7         # join this PID namespace (for children)
//	nsenter_handofffd=8     # write end of the handoff pipe
//
// The sequence is fixed: harden the process (non-dumpable), join the mount
// namespace, change root and working directory, join the network namespace,
// join the PID namespace, fork. The forked child signals the supervisor by
// writing a single byte to the handoff descriptor and then returns. The parent
// never returns: it waits for its child and exits with the child's exit code,
// or with ExitSignaled if the child got killed by a signal.
//
// # Failures
//
// Any failure (except for failing to set the diagnostic process name) is
// fatal: a single JSON log line is written to stdout, such as
//
//	{"level":"fatal","msg":"nsenter.join:86 cannot join net namespace via fd 6: bad file descriptor"}
//
// and the process terminates with exit code 1. There is no rollback of
// namespaces that have already been joined.
//
// # Notes
//
// The Go runtime is already multi-threaded when the first Go code runs, so
// Enter must be called during package initialization, while the main
// goroutine still runs on the main OS thread. Filesystem attributes are then
// unshared for this thread only, as otherwise the kernel refuses to switch the
// mount namespace. The child resulting from the fork must not do anything else
// than signalling and exec'ing; the hook in the reexec
// package takes care of this.
package nsenter
