package usbmux

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Connect issues a Connect command to usbmuxd for the given device and port on a new Transport.
// On success the Transport is returned in blocking mode and carries the raw traffic to the port
// on the device. Should usbmuxd refuse, the Transport is closed and a *ConnectionRefusedError with
// the usbmuxd reply code is returned.
func (c *Client) Connect(ctx context.Context, deviceID DeviceID, port uint16) (Transport, error) {
	muxConn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	clearDeadline := applyContextDeadline(ctx, muxConn.transport)
	result, err := muxConn.request(NewConnectCommand(c.cfg, port, deviceID))
	clearDeadline()
	if err != nil {
		muxConn.Close()
		return nil, err
	}
	if !result.IsSuccessFull() {
		muxConn.Close()
		return nil, &ConnectionRefusedError{Code: result.Number}
	}
	log.WithFields(log.Fields{"deviceID": deviceID, "port": port}).Debug("connected to device port")
	return muxConn.ReleaseTransport(), nil
}
