// Copyright 2025 Lumina Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lock is the Pool Lock of spec §4.1/§7: an advisory,
// process-exclusive lock that keeps two reconciler processes from cycling
// the same pool at once. The original implementation used Python's
// fasteners.InterProcessLock, itself a thin wrapper over flock(2); this
// package is the same wrapper written directly against syscall.Flock, since
// no third-party file-locking library appears anywhere in this module's
// dependency tree.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// PoolLock holds an exclusive, non-blocking flock(2) on a per-pool lock
// file. The zero value is not usable; create one with Acquire.
type PoolLock struct {
	file *os.File
}

// ErrLocked is returned by Acquire when another process already holds the
// pool's lock. The reconciler treats this as "skip this pool this tick",
// per spec §4.5 step 1, not as an error worth reporting on the pool.
var ErrLocked = fmt.Errorf("pool lock: held by another process")

// Acquire takes a non-blocking exclusive lock on dir/pool-<poolID>.lock,
// creating the file if needed. It returns ErrLocked immediately if the
// lock is already held rather than blocking, since a reconciler tick that
// can't get the lock should move on to the next pool instead of waiting.
func Acquire(dir string, poolID int64) (*PoolLock, error) {
	path := filepath.Join(dir, fmt.Sprintf("pool-%d.lock", poolID))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &PoolLock{file: f}, nil
}

// Release drops the lock and closes the underlying file. The file itself
// is left on disk for the next Acquire to reuse.
func (l *PoolLock) Release() error {
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("unlock: %w", err)
	}
	return l.file.Close()
}
