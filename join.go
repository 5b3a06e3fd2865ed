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

// Join carries out the join request in the only order that works: the mount
// namespace first, as the new root directory must be resolved within it;
// then root and working directory; then the network namespace; and finally
// the PID namespace, which only affects children forked later.
//
// Every descriptor is closed right after its step, successful or not. The
// first failing step ends the sequence; the descriptors of the steps not
// carried out are closed too. Namespaces already joined are not left again.
func Join(h Hardened, req *Request, sys Syscalls) error {
	if !h.valid {
		return fatalf(HardeningFailure, nil, "refusing to join namespaces while still dumpable")
	}
	defer req.release(sys)
	if err := join(sys, Mount, req.Mount); err != nil {
		return err
	}
	if err := changeRoot(sys, req.Root); err != nil {
		return err
	}
	if err := changeCwd(sys, req.Cwd); err != nil {
		return err
	}
	if err := join(sys, Network, req.Network); err != nil {
		return err
	}
	return join(sys, PID, req.PID)
}

// join switches into the namespace of the specified kind, if requested.
func join(sys Syscalls, kind Kind, ns *Descriptor) error {
	if ns == nil {
		return nil
	}
	err := sys.Setns(ns.FD(), kind)
	_ = ns.Close(sys)
	if err != nil {
		return fatalf(JoinFailure, err, "cannot join %s namespace via fd %d", kind, ns.FD())
	}
	return nil
}

// changeRoot switches into the root directory referenced by root and then
// makes it the new root.
func changeRoot(sys Syscalls, root *Descriptor) error {
	if root == nil {
		return nil
	}
	err := sys.Fchdir(root.FD())
	_ = root.Close(sys)
	if err != nil {
		return fatalf(FilesystemTransitionFailure, err, "cannot change into root directory via fd %d", root.FD())
	}
	if err := sys.Chroot("."); err != nil {
		return fatalf(FilesystemTransitionFailure, err, "cannot change root to directory fd %d", root.FD())
	}
	return nil
}

// changeCwd switches into the working directory referenced by cwd.
func changeCwd(sys Syscalls, cwd *Descriptor) error {
	if cwd == nil {
		return nil
	}
	err := sys.Fchdir(cwd.FD())
	_ = cwd.Close(sys)
	if err != nil {
		return fatalf(FilesystemTransitionFailure, err, "cannot change into working directory via fd %d", cwd.FD())
	}
	return nil
}
