//go:build !linux

package device

import "os"

// MakeRaw is a no-op where the CDC driver does not translate output.
func MakeRaw(f *os.File) error {
	return nil
}
