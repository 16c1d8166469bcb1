package usbmux

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessageType matches every *InvalidMessageTypeError
	ErrInvalidMessageType = errors.New("invalid message type")
	// ErrInvalidPlistEntry is returned when a plist is unparsable or its root is not a dictionary
	ErrInvalidPlistEntry = errors.New("invalid plist format/entry")
	// ErrInvalidPacketSize is returned for a header whose total size is smaller than the header itself
	ErrInvalidPacketSize = errors.New("invalid usbmux packet size")
	// ErrServiceUnavailable is returned when the usbmuxd endpoint cannot be reached at all.
	// Usually usbmuxd (or Apple Mobile Device Support on windows) is not running or not installed.
	ErrServiceUnavailable = errors.New("usbmuxd service unavailable")
)

// InvalidMessageTypeError contains the MessageType value usbmuxd sent that could not be handled
type InvalidMessageTypeError struct {
	MessageType string
}

func (e *InvalidMessageTypeError) Error() string {
	return fmt.Sprintf("invalid message type: %s", e.MessageType)
}

func (e *InvalidMessageTypeError) Is(target error) bool {
	return target == ErrInvalidMessageType
}

// InvalidPlistEntryForKeyError is returned when a required key is missing or has the wrong type
type InvalidPlistEntryForKeyError struct {
	Key string
}

func (e *InvalidPlistEntryForKeyError) Error() string {
	return fmt.Sprintf("invalid plist entry for key: %s", e.Key)
}

// InvalidPacketTypeError carries the raw packet type of a header
type InvalidPacketTypeError struct {
	Code uint32
}

func (e *InvalidPacketTypeError) Error() string {
	return fmt.Sprintf("invalid packet type: %d", e.Code)
}

// InvalidProtocolError carries the raw protocol of a header, only 0 and 1 are known
type InvalidProtocolError struct {
	Code uint32
}

func (e *InvalidProtocolError) Error() string {
	return fmt.Sprintf("invalid protocol: %d", e.Code)
}

// InvalidReplyCodeError carries a reply code without a known name (everything except 0-3 and 6)
type InvalidReplyCodeError struct {
	Code int64
}

func (e *InvalidReplyCodeError) Error() string {
	return fmt.Sprintf("invalid reply code: %d", e.Code)
}

// FailedToListenError is returned when usbmuxd answers a Listen command with a non zero code
type FailedToListenError struct {
	Code int64
}

func (e *FailedToListenError) Error() string {
	return fmt.Sprintf("usbmuxd refused Listen command, %s", describeReplyCode(e.Code))
}

// ConnectionRefusedError is returned when usbmuxd answers a Connect command with a non zero code
type ConnectionRefusedError struct {
	Code int64
}

func (e *ConnectionRefusedError) Error() string {
	return fmt.Sprintf("failed connecting to device port, %s", describeReplyCode(e.Code))
}

func describeReplyCode(code int64) string {
	rc, err := ParseReplyCode(code)
	if err != nil {
		return fmt.Sprintf("error code:%d", code)
	}
	return fmt.Sprintf("error code:%d (%s)", code, rc)
}
