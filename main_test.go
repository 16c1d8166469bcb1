package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	defaults := usbmux.DefaultConfig()
	testCases := map[string]struct {
		file     string
		socket   string
		expected usbmux.Config
	}{
		"yaml": {"config.yaml", "", usbmux.Config{
			Address:             "tcp://127.0.0.1:27015",
			DialTimeout:         2 * time.Second,
			ProgName:            "usbmux-test",
			ClientVersionString: defaults.ClientVersionString,
			BundleID:            "com.example.usbmux",
			LibUSBMuxVersion:    3,
		}},
		"toml": {"config.toml", "", usbmux.Config{
			Address:             "unix:///tmp/usbmuxd",
			DialTimeout:         750 * time.Millisecond,
			ProgName:            defaults.ProgName,
			ClientVersionString: "test-1.0",
		}},
		"socket flag wins": {"config.toml", "tcp://10.0.0.2:27015", usbmux.Config{
			Address:             "tcp://10.0.0.2:27015",
			DialTimeout:         750 * time.Millisecond,
			ProgName:            defaults.ProgName,
			ClientVersionString: "test-1.0",
		}},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			cfg, err := loadConfig(filepath.Join("test-fixture", tc.file), tc.socket)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cfg)
		})
	}
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := loadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, usbmux.DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	testCases := map[string]struct {
		file   string
		socket string
	}{
		"missing file":        {"test-fixture/missing.yaml", ""},
		"unknown extension":   {"main.go", ""},
		"broken timeout":      {"test-fixture/broken-timeout.yaml", ""},
		"invalid socket":      {"", "udp://127.0.0.1:1"},
		"socket needs scheme": {"", "localhost"},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := loadConfig(tc.file, tc.socket)
			assert.Error(t, err)
		})
	}
}

func TestDeviceTable(t *testing.T) {
	table := deviceTable(usbmux.DeviceList{
		{DeviceID: 3, Identifier: "udid-3", ConnectionType: usbmux.ConnectionTypeUSB, ProductID: 0x12A8, ProductType: usbmux.ProductTypeIPhone},
	})
	assert.Contains(t, table, "UDID")
	assert.Contains(t, table, "udid-3")
	assert.Contains(t, table, "iPhone")
	assert.Contains(t, table, "0x12A8")
	assert.Equal(t, 5, len(strings.Split(strings.TrimSpace(table), "\n")))
	assert.Equal(t, "", renderTable(nil, nil))
}

func TestUdidMap(t *testing.T) {
	m := udidMap(usbmux.DeviceList{{Identifier: "a"}, {Identifier: "b"}})
	assert.Equal(t, map[string][]string{"deviceList": {"a", "b"}}, m)
	assert.Equal(t, `{"deviceList":["a","b"]}`, convertToJSONString(m))
}
