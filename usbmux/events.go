package usbmux

import (
	"fmt"
)

// EventType distinguishes the device notifications usbmuxd sends to listening connections
type EventType int

const (
	EventAttached EventType = iota + 1
	EventDetached
	EventPaired
)

func (t EventType) String() string {
	switch t {
	case EventAttached:
		return "Attached"
	case EventDetached:
		return "Detached"
	case EventPaired:
		return "Paired"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// DeviceEvent is a device being plugged in, unplugged or paired (the user trusted the host).
// Info is only set for EventAttached.
type DeviceEvent struct {
	Type     EventType
	DeviceID DeviceID
	Info     *DeviceAttachedInfo `json:",omitempty"`
}

func (e DeviceEvent) String() string {
	if e.Info != nil {
		return fmt.Sprintf("%s device:%d udid:%s product:%s", e.Type, e.DeviceID, e.Info.Identifier, e.Info.ProductType)
	}
	return fmt.Sprintf("%s device:%d", e.Type, e.DeviceID)
}

// DecodeDeviceEvent parses the plist payload of a packet received on a listening connection.
// Result messages are handshake replies and are rejected here.
func DecodeDeviceEvent(plistBytes []byte) (DeviceEvent, error) {
	dict, err := parseDict(plistBytes)
	if err != nil {
		return DeviceEvent{}, err
	}
	messageType, ok := dict[messageTypeKey].(string)
	if !ok {
		return DeviceEvent{}, &InvalidMessageTypeError{MessageType: fmt.Sprintf("%v", dict[messageTypeKey])}
	}
	var eventType EventType
	switch messageType {
	case "Attached":
		eventType = EventAttached
	case "Detached":
		eventType = EventDetached
	case "Paired":
		eventType = EventPaired
	default:
		// includes "Result"
		return DeviceEvent{}, &InvalidMessageTypeError{MessageType: messageType}
	}

	deviceID, err := uintForKey(dict, deviceIDKey)
	if err != nil {
		return DeviceEvent{}, err
	}
	event := DeviceEvent{Type: eventType, DeviceID: DeviceID(deviceID)}
	if eventType != EventAttached {
		return event, nil
	}

	properties, err := dictForKey(dict, propertiesKey)
	if err != nil {
		return DeviceEvent{}, err
	}
	info, err := attachedInfoFromDict(properties)
	if err != nil {
		return DeviceEvent{}, fmt.Errorf("failed decoding %s of attached device %d: %w", propertiesKey, deviceID, err)
	}
	event.Info = &info
	return event, nil
}
