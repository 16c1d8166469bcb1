package usbmux

import (
	"os"
	"runtime"
	"strings"
	"time"
)

// DefaultDialTimeout bounds how long opening the usbmuxd socket may take.
// Reads during a handshake have no timeout unless the caller's context has a deadline.
const DefaultDialTimeout = 5 * time.Second

const (
	defaultUnixAddress = "unix:///var/run/usbmuxd"
	defaultTCPAddress  = "tcp://127.0.0.1:27015"
	socketAddressEnv   = "USBMUXD_SOCKET_ADDRESS"
)

// Config contains everything needed to talk to usbmuxd
type Config struct {
	// Address is scheme://address, f.ex. unix:///var/run/usbmuxd or tcp://127.0.0.1:27015
	Address     string
	DialTimeout time.Duration

	ProgName            string
	ClientVersionString string
	// BundleID and LibUSBMuxVersion are sent only when set, newer usbmuxd versions accept both
	BundleID         string
	LibUSBMuxVersion int
}

// DefaultConfig returns a Config for the default usbmuxd address of this platform
func DefaultConfig() Config {
	return Config{
		Address:             DefaultAddress(),
		DialTimeout:         DefaultDialTimeout,
		ProgName:            "go-usbmux",
		ClientVersionString: "go-usbmux-0.0.1",
	}
}

// withDefaults fills every zero field of c with the value from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.ProgName == "" {
		c.ProgName = d.ProgName
	}
	if c.ClientVersionString == "" {
		c.ClientVersionString = d.ClientVersionString
	}
	return c
}

// DefaultAddress is the usbmuxd address for the platform to connect to.
// It can be overridden with the USBMUXD_SOCKET_ADDRESS env variable, values containing a ':' are
// treated as TCP addresses, everything else as a unix socket path.
func DefaultAddress() string {
	override := os.Getenv(socketAddressEnv)
	if override != "" {
		if strings.Contains(override, ":") {
			return "tcp://" + override
		}
		return "unix://" + override
	}
	switch runtime.GOOS {
	case "windows":
		return defaultTCPAddress
	default:
		return defaultUnixAddress
	}
}
