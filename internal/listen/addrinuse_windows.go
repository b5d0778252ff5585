//go:build windows

package listen

import (
	"errors"

	"golang.org/x/sys/windows"
)

// platformAddrInUse matches Winsock's address-in-use code, which differs
// from syscall.EADDRINUSE on Windows.
func platformAddrInUse(err error) bool {
	return errors.Is(err, windows.WSAEADDRINUSE)
}
