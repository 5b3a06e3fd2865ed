/*

Package testsupport is an internal package designed to break import cycles
between nsenter/reexec and nsenter/reexec/testing: it allows the testing
package to tell nsenter/reexec when it is under test, so that re-executed test
binaries don't run the tests all over again. And it allows invoking
nsenter/reexec's RunAction() for triggering a registered action during
re-execution.

*/
package testsupport
