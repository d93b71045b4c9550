//go:build !unix

package fingerprint

import "errors"

var errNotSupported = errors.New("not supported on this platform")

func storageCapacityBytes(path string) (uint64, error) {
	return 0, errNotSupported
}

func totalMemoryBytes() (uint64, error) {
	return 0, errNotSupported
}
