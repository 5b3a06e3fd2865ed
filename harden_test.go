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
	"errors"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("hardening", func() {

	It("makes the process non-dumpable and names it", func() {
		sys := newFakeSyscalls()
		h, err := Harden(sys)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.valid).To(BeTrue())
		Expect(sys.calls).To(Equal([]call{"dumpable(false)", "name(nsenter)"}))
	})

	It("ignores failing to set the process name", func() {
		sys := newFakeSyscalls().failing("name(nsenter)", unix.EINVAL)
		h, err := Harden(sys)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.valid).To(BeTrue())
	})

	It("fails when the process stays dumpable", func() {
		sys := newFakeSyscalls().failing("dumpable(false)", unix.EPERM)
		h, err := Harden(sys)
		Expect(h.valid).To(BeFalse())
		Expect(err).To(MatchError(MatchRegexp(
			`^nsenter\.Harden:\d+ cannot make process non-dumpable: operation not permitted$`)))
		Expect(errors.Is(err, unix.EPERM)).To(BeTrue())
		Expect(err.(*FatalError).Kind).To(Equal(HardeningFailure))
		Expect(sys.calls).To(Equal([]call{"dumpable(false)"}))
	})

})
