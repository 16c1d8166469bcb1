package usbmux

import (
	"context"
)

// Client opens listeners and device tunnels. It holds no connection itself, every call
// dials a fresh Transport with its Dialer.
type Client struct {
	cfg    Config
	dialer Dialer
}

// NewClient creates a Client for cfg, empty fields of cfg are taken from DefaultConfig
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	dialer, err := NewDialer(cfg.Address, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, dialer: dialer}, nil
}

// NewClientWithDialer creates a Client that uses dialer instead of cfg.Address
func NewClientWithDialer(cfg Config, dialer Dialer) *Client {
	return &Client{cfg: cfg.withDefaults(), dialer: dialer}
}

// NewClientSimple creates a Client for DefaultConfig
func NewClientSimple() (*Client, error) {
	return NewClient(DefaultConfig())
}

// Config returns the effective configuration of c
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) dial(ctx context.Context) (*UsbMuxConnection, error) {
	transport, err := c.dialer.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return NewUsbMuxConnection(transport), nil
}

// Listen registers a DeviceListener with usbmuxd at the default address
func Listen(ctx context.Context) (*DeviceListener, error) {
	c, err := NewClientSimple()
	if err != nil {
		return nil, err
	}
	return c.Listen(ctx)
}

// Connect opens a tunnel to port on the device using the default address
func Connect(ctx context.Context, deviceID DeviceID, port uint16) (Transport, error) {
	c, err := NewClientSimple()
	if err != nil {
		return nil, err
	}
	return c.Connect(ctx, deviceID, port)
}

// ListDevices returns all currently attached devices using the default address
func ListDevices(ctx context.Context) (DeviceList, error) {
	c, err := NewClientSimple()
	if err != nil {
		return nil, err
	}
	return c.ListDevices(ctx)
}
