package visionkit

import "time"

// Locker provides mutual exclusion for file operations across processes.
type Locker interface {
	// Lock acquires an exclusive lock on the file.
	// Blocks until lock is acquired or timeout expires.
	Lock() error

	// Unlock releases the lock.
	// Safe to call multiple times.
	Unlock() error
}

// Ensure fileLock implements Locker.
var _ Locker = (*fileLock)(nil)

// withFileLock runs fn while holding the lock file at path.
func withFileLock(path string, timeout time.Duration, fn func() error) error {
	lock, err := newFileLock(path, timeout)
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		lock.Unlock()
		return err
	}
	defer lock.Unlock()

	return fn()
}
