//go:build !unix

package filestore

import "os"

// Advisory locks are not implemented on this platform; every lock succeeds.
func lockFile(f *os.File, exclusive bool) error { return nil }

func unlockFile(f *os.File) {}

func isSharingViolation(err error) bool { return false }
