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

package testing

import (
	"os"
	"strings"

	"github.com/thediveo/nsenter/reexec"
	"github.com/thediveo/nsenter/reexec/internal/testsupport"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func init() {
	reexec.Register("foo", func() {
		_, _ = os.Stdout.WriteString(`"foo done"`)
	})
}

var _ = Describe("re-executed test binaries", func() {

	var saved func() bool

	BeforeEach(func() {
		saved = testsupport.RunAction
	})

	AfterEach(func() {
		testsupport.RunAction = saved
	})

	It("knows when it's the parent test process", func() {
		Expect(testsupport.TestingEnabled).To(BeTrue())
		var stderr strings.Builder
		reexeced, _ := runFakeAction(&stderr, func() bool { return false })
		Expect(reexeced).To(BeFalse())
		Expect(stderr.String()).To(BeEmpty())
	})

	It("runs the action", func() {
		var stderr strings.Builder
		reexeced, exitcode := runFakeAction(&stderr, func() bool { return true })
		Expect(reexeced).To(BeTrue())
		Expect(exitcode).To(BeZero())
	})

	It("reports panicking actions", func() {
		var stderr strings.Builder
		reexeced, exitcode := runFakeAction(&stderr, func() bool { panic("D'oh!") })
		Expect(reexeced).To(BeTrue())
		Expect(exitcode).To(Equal(ExitActionPanicked))
		Expect(stderr.String()).To(Equal("D'oh!"))
	})

	It("panics without nsenter/reexec", func() {
		testsupport.RunAction = nil
		Expect(func() { _, _ = runAction(&strings.Builder{}) }).To(Panic())
	})

	It("re-executes action foo self-test", func() {
		var result string
		Expect(reexec.RunReexecAction(
			"foo",
			reexec.Result(&result),
		)).To(Succeed())
		Expect(result).To(Equal("foo done"))
	})

})

// runFakeAction runs runAction with a fake in place of reexec.RunAction.
func runFakeAction(stderr *strings.Builder, fake func() bool) (bool, int) {
	testsupport.RunAction = fake
	return runAction(stderr)
}
