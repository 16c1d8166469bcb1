package usbmux

import (
	"context"
	"fmt"
	"strings"
)

// DeviceList is the reply to a ListDevices command
type DeviceList []DeviceAttachedInfo

// String returns a list of all udids in a formatted string
func (deviceList DeviceList) String() string {
	var sb strings.Builder
	for _, element := range deviceList {
		sb.WriteString(element.Identifier)
		sb.WriteString("\n")
	}
	return sb.String()
}

// DeviceListFromBytes parses the ListDevices reply. Every entry needs the same Properties as an
// Attached event.
func DeviceListFromBytes(plistBytes []byte) (DeviceList, error) {
	dict, err := parseDict(plistBytes)
	if err != nil {
		return nil, err
	}
	return deviceListFromDict(dict)
}

func deviceListFromDict(dict map[string]interface{}) (DeviceList, error) {
	entries, ok := dict[deviceListKey].([]interface{})
	if !ok {
		return nil, &InvalidPlistEntryForKeyError{Key: deviceListKey}
	}
	devices := make(DeviceList, 0, len(entries))
	for i, entry := range entries {
		entryDict, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: %s entry %d is not a dictionary", ErrInvalidPlistEntry, deviceListKey, i)
		}
		properties, err := dictForKey(entryDict, propertiesKey)
		if err != nil {
			return nil, err
		}
		info, err := attachedInfoFromDict(properties)
		if err != nil {
			return nil, fmt.Errorf("failed decoding %s entry %d: %w", deviceListKey, i, err)
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// ListDevices returns all devices currently attached to usbmuxd
func (c *Client) ListDevices(ctx context.Context) (DeviceList, error) {
	muxConn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer muxConn.Close()
	clearDeadline := applyContextDeadline(ctx, muxConn.transport)
	defer clearDeadline()

	err = muxConn.Send(NewListDevicesCommand(c.cfg))
	if err != nil {
		return nil, err
	}
	p, err := muxConn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed getting devicelist: %w", err)
	}
	dict, err := parseDict(p.Payload)
	if err != nil {
		return nil, err
	}
	if _, ok := dict[deviceListKey]; !ok {
		// usbmuxd answers with a Result message if it cannot handle the command
		if result, err := resultFromDict(dict); err == nil && !result.IsSuccessFull() {
			return nil, fmt.Errorf("usbmuxd refused ListDevices command, %s", describeReplyCode(result.Number))
		}
	}
	return deviceListFromDict(dict)
}
