/*

Package reexec allows to fork and then re-execute the current application
(process) in order to only invoke a specific action function, after having
switched into existing Linux kernel namespaces and an alternate root and
working directory.

Why, because the Golang runtime sucks at fork() and switching Linux kernel
mount namespaces. The go runtime spins up multiple threads, but Linux really
doesn't like changing mount namespaces when a process has become
multi-threaded.

# Usage

Register actions in init() functions and call CheckAction() first thing in
main():

	func init() {
		reexec.Register("hello", func() { fmt.Println(`"hello"`) })
	}

	func main() {
		reexec.CheckAction()
		var s string
		err := reexec.RunReexecAction("hello",
			reexec.Namespaces(reexec.NamespacesOf(pid, nsenter.Network)...),
			reexec.Result(&s))
	}

What happens behind the scenes: RunReexecAction opens the namespace and
directory references and starts a copy of the application as a helper, passing
the open references as file descriptors. Importing this package makes the
helper run the nsenter join sequence during its package initialization. The
helper then forks: the parent only supervises, while the child signals
readiness through a handoff pipe and re-executes the application once more, so
that the action finally gets run by a fresh Go runtime inside the joined
namespaces. The action reports its result as JSON on stdout.

*/
package reexec
