package usbmux_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpaulus/go-usbmux/usbmux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("test-fixture", name))
	require.NoError(t, err)
	return data
}

func TestDecodesPlists(t *testing.T) {
	testCases := map[string]struct {
		file      string
		eventType usbmux.EventType
	}{
		"detached": {"detached.plist", usbmux.EventDetached},
		"paired":   {"paired.plist", usbmux.EventPaired},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			event, err := usbmux.DecodeDeviceEvent(fixture(t, tc.file))
			require.NoError(t, err)
			assert.Equal(t, tc.eventType, event.Type)
			assert.Equal(t, usbmux.DeviceID(3), event.DeviceID)
			assert.Nil(t, event.Info)
		})
	}

	result, err := usbmux.ResultMessageFromBytes(fixture(t, "success-result.plist"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Number)
	assert.True(t, result.IsSuccessFull())
}

func TestDecodesAttached(t *testing.T) {
	event, err := usbmux.DecodeDeviceEvent(fixture(t, "attached.plist"))
	require.NoError(t, err)
	assert.Equal(t, usbmux.EventAttached, event.Type)
	require.NotNil(t, event.Info)
	info := event.Info
	assert.Equal(t, usbmux.DeviceID(3), info.DeviceID)
	assert.Equal(t, usbmux.ConnectionTypeUSB, info.ConnectionType)
	assert.True(t, info.ConnectionType.IsUSB())
	assert.Equal(t, uint64(0), info.LocationID)
	assert.Equal(t, uint16(0x12AB), info.ProductID)
	assert.Equal(t, usbmux.ProductTypeIPad, info.ProductType)
	assert.Equal(t, "00001011-000A111E0111001E", info.Identifier)
}

func TestAttachedWithBrokenPropertiesFails(t *testing.T) {
	_, err := usbmux.DecodeDeviceEvent(fixture(t, "attached-missing-serial.plist"))
	var keyErr *usbmux.InvalidPlistEntryForKeyError
	require.True(t, errors.As(err, &keyErr))
	assert.Equal(t, "SerialNumber", keyErr.Key)
}

func TestDecodeErrors(t *testing.T) {
	testCases := map[string]struct {
		message interface{}
		key     string
		isErr   error
	}{
		"result is no device event": {map[string]interface{}{"MessageType": "Result", "Number": 0}, "", usbmux.ErrInvalidMessageType},
		"unknown message type":      {map[string]interface{}{"MessageType": "Unplugged", "DeviceID": 1}, "", usbmux.ErrInvalidMessageType},
		"message type not a string": {map[string]interface{}{"MessageType": 5, "DeviceID": 1}, "", usbmux.ErrInvalidMessageType},
		"missing message type":      {map[string]interface{}{"DeviceID": 1}, "", usbmux.ErrInvalidMessageType},
		"root is no dictionary":     {[]string{"Detached"}, "", usbmux.ErrInvalidPlistEntry},
		"missing device id":         {map[string]interface{}{"MessageType": "Detached"}, "DeviceID", nil},
		"device id is a string":     {map[string]interface{}{"MessageType": "Paired", "DeviceID": "3"}, "DeviceID", nil},
		"attached without props":    {map[string]interface{}{"MessageType": "Attached", "DeviceID": 3}, "Properties", nil},
		"product id out of range": {map[string]interface{}{"MessageType": "Attached", "DeviceID": 3, "Properties": map[string]interface{}{
			"ConnectionType": "USB", "DeviceID": 3, "LocationID": 0, "ProductID": 70000, "SerialNumber": "x",
		}}, "ProductID", nil},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := usbmux.DecodeDeviceEvent(usbmux.ToPlistBytes(tc.message))
			require.Error(t, err)
			if tc.isErr != nil {
				assert.ErrorIs(t, err, tc.isErr)
				return
			}
			var keyErr *usbmux.InvalidPlistEntryForKeyError
			require.True(t, errors.As(err, &keyErr), err.Error())
			assert.Equal(t, tc.key, keyErr.Key)
		})
	}
}

func TestGarbageIsInvalidPlistEntry(t *testing.T) {
	_, err := usbmux.DecodeDeviceEvent([]byte("definitely not a plist <<<"))
	assert.ErrorIs(t, err, usbmux.ErrInvalidPlistEntry)
}

func TestResultMessageErrors(t *testing.T) {
	_, err := usbmux.ResultMessageFromBytes(usbmux.ToPlistBytes(map[string]interface{}{"MessageType": "Result"}))
	var keyErr *usbmux.InvalidPlistEntryForKeyError
	require.True(t, errors.As(err, &keyErr))
	assert.Equal(t, "Number", keyErr.Key)

	_, err = usbmux.ResultMessageFromBytes(usbmux.ToPlistBytes(map[string]interface{}{"Number": "zero"}))
	require.True(t, errors.As(err, &keyErr))

	result, err := usbmux.ResultMessageFromBytes(usbmux.ToPlistBytes(map[string]interface{}{"Number": 3}))
	require.NoError(t, err)
	assert.False(t, result.IsSuccessFull())
	assert.Equal(t, int64(3), result.Number)
}

func TestConnectCommandSwapsPort(t *testing.T) {
	cmd := usbmux.NewConnectCommand(usbmux.DefaultConfig(), 2345, 3)
	var decoded map[string]interface{}
	_, err := plist.Unmarshal(cmd.Bytes(), &decoded)
	require.NoError(t, err)

	assert.Equal(t, "Connect", decoded["MessageType"])
	assert.Equal(t, uint64(3), decoded["DeviceID"])
	// 2345 is 0x0929, usbmuxd wants it in network byte order
	assert.Equal(t, uint64(0x2909), decoded["PortNumber"])
	assert.NotEqual(t, uint64(2345), decoded["PortNumber"])
	assert.Equal(t, uint16(0x2909), usbmux.Ntohs(2345))
}

func TestListenCommandKeys(t *testing.T) {
	cfg := usbmux.DefaultConfig()
	var decoded map[string]interface{}
	_, err := plist.Unmarshal(usbmux.NewListenCommand(cfg).Bytes(), &decoded)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"MessageType":         "Listen",
		"ProgName":            cfg.ProgName,
		"ClientVersionString": cfg.ClientVersionString,
	}, decoded)

	cfg.BundleID = "go.usbmux.test"
	cfg.LibUSBMuxVersion = 3
	decoded = nil
	_, err = plist.Unmarshal(usbmux.NewListenCommand(cfg).Bytes(), &decoded)
	require.NoError(t, err)
	assert.Equal(t, "go.usbmux.test", decoded["BundleID"])
	assert.Equal(t, uint64(3), decoded["kLibUSBMuxVersion"])
}

func TestDecodesCommand(t *testing.T) {
	var cmd usbmux.Command
	_, err := plist.Unmarshal(fixture(t, "command.plist"), &cmd)
	require.NoError(t, err)
	assert.Equal(t, "Listen", cmd.MessageType)
	assert.Equal(t, "MyApp", cmd.ProgName)
	assert.Equal(t, "1.0", cmd.ClientVersionString)
	assert.Nil(t, cmd.PortNumber)
	assert.Nil(t, cmd.DeviceID)
}

func TestProductTypes(t *testing.T) {
	testCases := map[uint16]usbmux.ProductType{
		0x12A8: usbmux.ProductTypeIPhone,
		0x12AA: usbmux.ProductTypeIPodTouch,
		0x12AB: usbmux.ProductTypeIPad,
		0x1234: usbmux.ProductTypeUnknown,
	}
	for id, expected := range testCases {
		assert.Equal(t, expected, usbmux.ProductTypeForID(id))
	}
}

func TestReplyCodes(t *testing.T) {
	for _, code := range []int64{0, 1, 2, 3, 6} {
		rc, err := usbmux.ParseReplyCode(code)
		assert.NoError(t, err)
		assert.Equal(t, usbmux.ReplyCode(code), rc)
	}
	for _, code := range []int64{4, 5, 7, -1} {
		_, err := usbmux.ParseReplyCode(code)
		var rcErr *usbmux.InvalidReplyCodeError
		require.True(t, errors.As(err, &rcErr))
		assert.Equal(t, code, rcErr.Code)
	}
	assert.Contains(t, (&usbmux.ConnectionRefusedError{Code: 2}).Error(), "BadDevice")
	assert.Contains(t, (&usbmux.FailedToListenError{Code: 5}).Error(), "error code:5")
}
