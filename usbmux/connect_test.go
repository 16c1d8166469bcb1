package usbmux_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/danielpaulus/go-usbmux/usbmux/usbmuxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectReturnsTunnel(t *testing.T) {
	dialer := usbmuxtest.NewDialer(usbmuxtest.Echo())
	client := usbmux.NewClientWithDialer(usbmux.DefaultConfig(), dialer)

	tunnel, err := client.Connect(context.Background(), 3, 2345)
	require.NoError(t, err)
	defer tunnel.Close()

	_, err = tunnel.Write([]byte("ping"))
	require.NoError(t, err)
	reply := make([]byte, 4)
	_, err = io.ReadFull(tunnel, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), reply)
	assert.Equal(t, 1, dialer.Dials())
}

func TestConnectSendsSwappedPort(t *testing.T) {
	var cmd map[string]interface{}
	client := usbmux.NewClientWithDialer(usbmux.DefaultConfig(), usbmuxtest.NewDialer(usbmuxtest.Reply(0, func(c map[string]interface{}) { cmd = c })))

	tunnel, err := client.Connect(context.Background(), 3, 2345)
	require.NoError(t, err)
	tunnel.Close()

	assert.Equal(t, "Connect", cmd["MessageType"])
	assert.Equal(t, uint64(3), cmd["DeviceID"])
	assert.Equal(t, uint64(usbmux.Ntohs(2345)), cmd["PortNumber"])
}

func TestConnectionRefused(t *testing.T) {
	for _, code := range []int{1, 2, 3, 4, 5, 6} {
		client := usbmux.NewClientWithDialer(usbmux.DefaultConfig(), usbmuxtest.NewDialer(usbmuxtest.Reply(code, nil)))
		tunnel, err := client.Connect(context.Background(), 3, 62078)
		assert.Nil(t, tunnel)
		var refused *usbmux.ConnectionRefusedError
		require.True(t, errors.As(err, &refused))
		assert.Equal(t, int64(code), refused.Code)
	}
}

func TestConnectWithBinaryResult(t *testing.T) {
	client := usbmux.NewClientWithDialer(usbmux.DefaultConfig(), usbmuxtest.NewDialer(func(conn net.Conn) {
		_, _ = usbmuxtest.ReadCommand(conn)
		_ = usbmux.WritePacket(conn, usbmux.Packet{Protocol: usbmux.ProtocolBinary, Type: usbmux.PacketTypeResult, Payload: []byte{3, 0, 0, 0}})
	}))
	_, err := client.Connect(context.Background(), 3, 62078)
	var refused *usbmux.ConnectionRefusedError
	require.True(t, errors.As(err, &refused))
	assert.Equal(t, int64(3), refused.Code)
}

func TestConnectHandshakeDeadline(t *testing.T) {
	client := usbmux.NewClientWithDialer(usbmux.DefaultConfig(), usbmuxtest.NewDialer(func(conn net.Conn) {
		_, _ = usbmuxtest.ReadCommand(conn)
		// never answer
		time.Sleep(time.Second)
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Connect(ctx, 3, 62078)
	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestServiceUnavailable(t *testing.T) {
	client, err := usbmux.NewClient(usbmux.Config{Address: "unix:///nonexistent/usbmuxd", DialTimeout: time.Second})
	require.NoError(t, err)

	_, err = client.Connect(context.Background(), 1, 1)
	assert.ErrorIs(t, err, usbmux.ErrServiceUnavailable)
	_, err = client.Listen(context.Background())
	assert.ErrorIs(t, err, usbmux.ErrServiceUnavailable)
	_, err = client.ListDevices(context.Background())
	assert.ErrorIs(t, err, usbmux.ErrServiceUnavailable)
}
