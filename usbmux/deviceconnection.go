package usbmux

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Transport is a raw connection to usbmuxd. After a successful Connect handshake the same
// Transport is the tunnel to the port on the device.
type Transport interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// Dialer opens new Transports to usbmuxd. Every Listener and every Connect uses its own Transport.
type Dialer interface {
	DialContext(ctx context.Context) (Transport, error)
}

// UnixDialer connects to usbmuxd on a unix domain socket, the default on macOS and linux
type UnixDialer struct {
	Path    string
	Timeout time.Duration
}

// DialContext implements Dialer
func (d UnixDialer) DialContext(ctx context.Context) (Transport, error) {
	return dial(ctx, "unix", d.Path, d.Timeout)
}

// TCPDialer connects to usbmuxd over TCP, Apple Mobile Device Support on windows listens on 127.0.0.1:27015
type TCPDialer struct {
	Address string
	Timeout time.Duration
}

// DialContext implements Dialer
func (d TCPDialer) DialContext(ctx context.Context) (Transport, error) {
	return dial(ctx, "tcp", d.Address, d.Timeout)
}

func dial(ctx context.Context, network string, address string, timeout time.Duration) (Transport, error) {
	dialer := net.Dialer{Timeout: timeout}
	c, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: could not connect to %s://%s, is it running? %w", ErrServiceUnavailable, network, address, err)
	}
	log.Tracef("Opening connection: %v", c.LocalAddr())
	return c, nil
}

// NewDialer selects the Dialer for a scheme://address string. Bare paths are treated as unix sockets.
func NewDialer(socketAddress string, timeout time.Duration) (Dialer, error) {
	if strings.HasPrefix(socketAddress, "/") {
		socketAddress = "unix://" + socketAddress
	}
	scheme, address, err := GetSocketTypeAndAddress(socketAddress)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "unix":
		return UnixDialer{Path: address, Timeout: timeout}, nil
	case "tcp":
		return TCPDialer{Address: address, Timeout: timeout}, nil
	}
	return nil, fmt.Errorf("unsupported usbmuxd socket scheme '%s' in '%s'", scheme, socketAddress)
}

// GetSocketTypeAndAddress splits scheme://address
func GetSocketTypeAndAddress(socketAddress string) (string, string, error) {
	chunks := strings.Split(socketAddress, "://")
	if len(chunks) != 2 || chunks[0] == "" || chunks[1] == "" {
		return "", "", fmt.Errorf("invalid socket address '%s', needs scheme://address", socketAddress)
	}
	return chunks[0], chunks[1], nil
}

// applyContextDeadline makes blocking handshake IO respect the deadline of ctx.
// The returned func clears the deadline again, the transport is left in blocking mode.
func applyContextDeadline(ctx context.Context, t Transport) func() {
	deadline, ok := ctx.Deadline()
	if !ok {
		return func() {}
	}
	err := t.SetDeadline(deadline)
	if err != nil {
		log.Debugf("failed setting handshake deadline: %v", err)
	}
	return func() {
		_ = t.SetDeadline(time.Time{})
	}
}
