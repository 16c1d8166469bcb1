// Package usbmuxtest provides a scripted usbmuxd for tests. It speaks just enough of the
// daemon side of the protocol to drive Listen, Connect and ListDevices handshakes.
package usbmuxtest

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/danielpaulus/go-usbmux/usbmux"
	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

// Handler plays usbmuxd for a single client connection
type Handler func(conn net.Conn)

// Dialer hands out in-memory connections, every dial runs the next Handler on the other end.
// Once all handlers were used the last one is repeated.
type Dialer struct {
	mu       sync.Mutex
	handlers []Handler
	dials    int
}

// NewDialer creates a Dialer that serves handlers in order
func NewDialer(handlers ...Handler) *Dialer {
	return &Dialer{handlers: handlers}
}

// DialContext implements usbmux.Dialer
func (d *Dialer) DialContext(ctx context.Context) (usbmux.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	index := d.dials
	if index >= len(d.handlers) {
		index = len(d.handlers) - 1
	}
	d.dials++
	d.mu.Unlock()
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		d.handlers[index](server)
	}()
	return client, nil
}

// Dials returns how many connections were opened so far
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Server is a usbmuxd fake listening on a real unix domain socket
type Server struct {
	Path string
	ln   net.Listener
	wg   sync.WaitGroup
}

// NewUnixServer starts a Server that runs handler for every accepted connection.
// It is stopped automatically when the test ends.
func NewUnixServer(t testing.TB, handler Handler) *Server {
	t.Helper()
	// unix socket paths are limited to ~100 bytes, t.TempDir() is too long on macOS
	dir, err := os.MkdirTemp("", "usbmux_")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "usbmuxd")
	ln, err := net.Listen("unix", path)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatal(err)
	}
	s := &Server{Path: path, ln: ln}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				handler(conn)
			}()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
		os.RemoveAll(dir)
	})
	return s
}

// Address returns the unix:// address of the Server
func (s *Server) Address() string {
	return "unix://" + s.Path
}

// ReadCommand reads one packet and decodes its plist payload
func ReadCommand(conn net.Conn) (map[string]interface{}, error) {
	p, err := usbmux.ReadPacket(conn)
	if err != nil {
		return nil, err
	}
	var cmd map[string]interface{}
	_, err = plist.Unmarshal(p.Payload, &cmd)
	return cmd, err
}

// WritePlist sends v as plist packet
func WritePlist(conn net.Conn, v interface{}) error {
	return usbmux.WritePacket(conn, usbmux.NewPlistPacket(usbmux.ToPlistBytes(v)))
}

// WriteResult sends a Result message with number
func WriteResult(conn net.Conn, number int) error {
	return WritePlist(conn, map[string]interface{}{"MessageType": "Result", "Number": number})
}

// Attached builds the message usbmuxd sends when a device is plugged in
func Attached(deviceID int, serial string, productID int) map[string]interface{} {
	return map[string]interface{}{
		"MessageType": "Attached",
		"DeviceID":    deviceID,
		"Properties": map[string]interface{}{
			"ConnectionSpeed": 480000000,
			"ConnectionType":  "USB",
			"DeviceID":        deviceID,
			"LocationID":      0,
			"ProductID":       productID,
			"SerialNumber":    serial,
		},
	}
}

// Detached builds the message usbmuxd sends when a device is unplugged
func Detached(deviceID int) map[string]interface{} {
	return map[string]interface{}{"MessageType": "Detached", "DeviceID": deviceID}
}

// Paired builds the message usbmuxd sends when a device trusted the host
func Paired(deviceID int) map[string]interface{} {
	return map[string]interface{}{"MessageType": "Paired", "DeviceID": deviceID}
}

// Listening accepts a Listen command, sends all events and keeps the connection open until the client closes it.
func Listening(events ...interface{}) Handler {
	return func(conn net.Conn) {
		if _, err := ReadCommand(conn); err != nil {
			log.Errorf("usbmuxtest: failed reading command: %v", err)
			return
		}
		if err := WriteResult(conn, 0); err != nil {
			return
		}
		for _, e := range events {
			if err := WritePlist(conn, e); err != nil {
				return
			}
		}
		_, _ = io.Copy(io.Discard, conn)
	}
}

// Reply reads one command, hands it to record (may be nil) and answers with a Result of code.
func Reply(code int, record func(cmd map[string]interface{})) Handler {
	return func(conn net.Conn) {
		cmd, err := ReadCommand(conn)
		if err != nil {
			log.Errorf("usbmuxtest: failed reading command: %v", err)
			return
		}
		if record != nil {
			record(cmd)
		}
		_ = WriteResult(conn, code)
	}
}

// Echo accepts a Connect command and then plays a device service that echoes every byte
func Echo() Handler {
	return func(conn net.Conn) {
		if _, err := ReadCommand(conn); err != nil {
			return
		}
		if err := WriteResult(conn, 0); err != nil {
			return
		}
		_, _ = io.Copy(conn, conn)
	}
}

// DeviceList answers a ListDevices command with an entry for every attached message
func DeviceList(attached ...map[string]interface{}) Handler {
	return func(conn net.Conn) {
		if _, err := ReadCommand(conn); err != nil {
			return
		}
		list := make([]interface{}, len(attached))
		for i, a := range attached {
			list[i] = a
		}
		_ = WritePlist(conn, map[string]interface{}{"DeviceList": list})
	}
}
