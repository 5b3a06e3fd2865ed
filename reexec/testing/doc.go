/*
Package testing supports testing applications using the nsenter/reexec
package.

Tests re-executing themselves need a TestMain, because the re-executed test
binary must run the requested action instead of the tests. And when not
re-executed, nsenter/reexec needs to know that it is under test, so that it
can tell its re-executed children to not run any tests at all.

	func TestMain(m *testing.M) {
		mm := &rxtst.M{M: m}
		os.Exit(mm.Run())
	}

Coverage data of re-executed children can be gathered by running the tests
with GOCOVERDIR set.
*/
package testing
