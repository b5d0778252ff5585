//go:build windows

package listen

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/windows"
)

func TestAddrInUse_Winsock(t *testing.T) {
	err := &net.OpError{
		Op:  "listen",
		Net: "tcp",
		Err: os.NewSyscallError("bind", windows.WSAEADDRINUSE),
	}
	assert.True(t, AddrInUse(err))
	assert.False(t, AddrInUse(&net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", windows.WSAEACCES)}))
}
