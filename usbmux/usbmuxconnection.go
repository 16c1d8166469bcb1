package usbmux

import (
	"fmt"
	"io"
	"reflect"

	log "github.com/sirupsen/logrus"
)

// UsbMuxConnection sends commands to usbmuxd and reads its replies. Messages follow a
// request-response pattern until the connection is turned into a listener or a device tunnel.
type UsbMuxConnection struct {
	transport Transport
}

// NewUsbMuxConnection creates a UsbMuxConnection from an already opened Transport
func NewUsbMuxConnection(transport Transport) *UsbMuxConnection {
	return &UsbMuxConnection{transport: transport}
}

// ReleaseTransport dereferences this UsbMuxConnection from the underlying Transport and returns it for later use.
// This UsbMuxConnection cannot be used after calling this.
func (muxConn *UsbMuxConnection) ReleaseTransport() Transport {
	t := muxConn.transport
	muxConn.transport = nil
	return t
}

// Close calls close on the underlying Transport
func (muxConn *UsbMuxConnection) Close() error {
	if muxConn.transport == nil {
		return nil
	}
	return muxConn.transport.Close()
}

// Send encodes cmd as plist and writes it in a PlistPayload packet
func (muxConn *UsbMuxConnection) Send(cmd Command) error {
	if muxConn.transport == nil {
		return io.EOF
	}
	log.Tracef("UsbMux send %v %s", reflect.TypeOf(cmd), cmd.MessageType)
	err := WritePacket(muxConn.transport, NewPlistPacket(cmd.Bytes()))
	if err != nil {
		return fmt.Errorf("failed sending %s command: %w", cmd.MessageType, err)
	}
	return nil
}

// ReadMessage blocks until the next Packet is available on the underlying Transport and returns it.
func (muxConn *UsbMuxConnection) ReadMessage() (Packet, error) {
	if muxConn.transport == nil {
		return Packet{}, io.EOF
	}
	return ReadPacket(muxConn.transport)
}

// ReadResult reads exactly one packet and decodes it as ResultMessage
func (muxConn *UsbMuxConnection) ReadResult() (ResultMessage, error) {
	p, err := muxConn.ReadMessage()
	if err != nil {
		return ResultMessage{}, fmt.Errorf("failed reading usbmuxd reply: %w", err)
	}
	return resultFromPacket(p)
}

// request sends cmd and waits for its ResultMessage
func (muxConn *UsbMuxConnection) request(cmd Command) (ResultMessage, error) {
	err := muxConn.Send(cmd)
	if err != nil {
		return ResultMessage{}, err
	}
	return muxConn.ReadResult()
}
