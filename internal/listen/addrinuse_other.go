//go:build !windows

package listen

func platformAddrInUse(err error) bool {
	return false
}
