package listen

import (
	"context"
	"net"
	"os"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
)

var loopback = config.Host{Address: "127.0.0.1"}

func TestListen_StrictSecondBindFails(t *testing.T) {
	ctx := context.Background()

	first, err := Listen(ctx, loopback, 0, true)
	require.NoError(t, err)
	defer first.Close()
	port := Port(first)
	require.NotZero(t, port)

	second, err := Listen(ctx, loopback, port, true)
	if second != nil {
		second.Close()
	}
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, "E200"), "want E200, got %v", err)
	assert.True(t, AddrInUse(err), "the bind error should be wrapped")
}

func TestListen_NonStrictFallsBack(t *testing.T) {
	ctx := context.Background()

	first, err := Listen(ctx, loopback, 0, true)
	require.NoError(t, err)
	defer first.Close()
	port := Port(first)

	second, err := Listen(ctx, loopback, port, false)
	require.NoError(t, err)
	defer second.Close()

	assert.NotEqual(t, port, Port(second))
	assert.Greater(t, Port(second), port)
}

func TestListen_InvalidAddress(t *testing.T) {
	_, err := Listen(context.Background(), config.Host{Address: "192.0.2.1"}, 0, true)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, "E201"), "want E201, got %v", err)
}

func TestAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = net.Listen("tcp", ln.Addr().String())
	require.Error(t, err)
	assert.True(t, AddrInUse(err))
	assert.False(t, AddrInUse(nil))
}

func TestAddrInUse_Wrapped(t *testing.T) {
	err := &net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}
	assert.True(t, AddrInUse(err))
	assert.True(t, AddrInUse(errors.New("E200").Wrap(err)), "the code wrapper should not hide the cause")
	assert.False(t, AddrInUse(&net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", syscall.EACCES)}))
}

func TestResolveURLs(t *testing.T) {
	urls := ResolveURLs(config.Localhost(), 5173, "/")
	assert.Equal(t, []string{"http://localhost:5173/"}, urls.Local)
	assert.Empty(t, urls.Network)

	urls = ResolveURLs(config.AllInterfaces(), 5173, "/app/")
	assert.Equal(t, []string{"http://localhost:5173/app/"}, urls.Local)
	for _, u := range urls.Network {
		assert.Contains(t, u, ":"+strconv.Itoa(5173)+"/app/")
	}

	urls = ResolveURLs(config.Host{Address: "10.0.0.5"}, 4173, "")
	assert.Empty(t, urls.Local)
	assert.Equal(t, []string{"http://10.0.0.5:4173/"}, urls.Network)

	urls = ResolveURLs(config.Host{Address: "::1"}, 4173, "/")
	assert.Equal(t, []string{"http://[::1]:4173/"}, urls.Local)
}

func TestURLs_Primary(t *testing.T) {
	assert.Equal(t, "http://localhost:5173/", ResolveURLs(config.AllInterfaces(), 5173, "/").Primary())
	assert.Equal(t, "http://10.0.0.5:4173/", ResolveURLs(config.Host{Address: "10.0.0.5"}, 4173, "/").Primary())
	assert.Empty(t, URLs{}.Primary())
}
