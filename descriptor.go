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

// Descriptor is an open file descriptor owned by the join sequence. It gets
// closed exactly once: further calls to Close are no-ops, so that the
// sequence can close a descriptor right after using it and additionally
// release everything still open on its way out, without double-closing.
type Descriptor struct {
	fd     int
	closed bool
}

// NewDescriptor takes ownership of the specified file descriptor.
func NewDescriptor(fd int) *Descriptor {
	return &Descriptor{fd: fd}
}

// FD returns the descriptor number; it is still returned after the
// descriptor has been closed, for diagnostic purposes.
func (d *Descriptor) FD() int { return d.fd }

// Closed returns true if the descriptor has already been closed.
func (d *Descriptor) Closed() bool { return d == nil || d.closed }

// Close closes the descriptor if not already closed. A nil Descriptor is
// fine and simply ignored.
func (d *Descriptor) Close(sys Syscalls) error {
	if d == nil || d.closed {
		return nil
	}
	d.closed = true
	return sys.Close(d.fd)
}

// Request describes what to join and where to change root and working
// directory to. Nil descriptors are skipped.
type Request struct {
	Mount   *Descriptor // mount namespace.
	Root    *Descriptor // new root directory.
	Cwd     *Descriptor // working directory, relative to the new root.
	Network *Descriptor // network namespace.
	PID     *Descriptor // PID namespace for children.
	Handoff *Descriptor // write end of the handoff channel.
}

// Namespace returns the descriptor for the specified kind of namespace, or
// nil.
func (r *Request) Namespace(kind Kind) *Descriptor {
	switch kind {
	case Mount:
		return r.Mount
	case Network:
		return r.Network
	case PID:
		return r.PID
	}
	return nil
}

// release closes the descriptors used for joining which are still open. The
// handoff descriptor is left alone, as it outlives the join sequence.
func (r *Request) release(sys Syscalls) {
	for _, d := range []*Descriptor{r.Mount, r.Root, r.Cwd, r.Network, r.PID} {
		_ = d.Close(sys)
	}
}

// Release closes all descriptors still open, including the handoff
// descriptor.
func (r *Request) Release(sys Syscalls) {
	r.release(sys)
	_ = r.Handoff.Close(sys)
}
