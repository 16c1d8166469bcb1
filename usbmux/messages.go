package usbmux

import (
	"encoding/binary"
	"fmt"
	"math"

	"howett.net/plist"
)

const (
	messageTypeKey  = "MessageType"
	deviceIDKey     = "DeviceID"
	propertiesKey   = "Properties"
	numberKey       = "Number"
	deviceListKey   = "DeviceList"
	listenMessage   = "Listen"
	connectMessage  = "Connect"
	listDevicesType = "ListDevices"
)

// Command is the plist payload of every request we send to usbmuxd
type Command struct {
	MessageType         string  `plist:"MessageType"`
	ProgName            string  `plist:"ProgName"`
	ClientVersionString string  `plist:"ClientVersionString"`
	BundleID            string  `plist:"BundleID,omitempty"`
	LibUSBMuxVersion    int     `plist:"kLibUSBMuxVersion,omitempty"`
	PortNumber          *uint16 `plist:"PortNumber,omitempty"`
	DeviceID            *uint64 `plist:"DeviceID,omitempty"`
}

func newCommand(messageType string, cfg Config) Command {
	return Command{
		MessageType:         messageType,
		ProgName:            cfg.ProgName,
		ClientVersionString: cfg.ClientVersionString,
		BundleID:            cfg.BundleID,
		LibUSBMuxVersion:    cfg.LibUSBMuxVersion,
	}
}

// NewListenCommand creates the command that turns a usbmuxd connection into an event stream
func NewListenCommand(cfg Config) Command {
	return newCommand(listenMessage, cfg)
}

// NewConnectCommand creates a command for connecting to port on the device.
// usbmuxd expects the port in network byte order, so it is swapped before it ends up in the plist integer.
// Sending the unswapped value silently connects to a different port.
func NewConnectCommand(cfg Config, port uint16, deviceID DeviceID) Command {
	cmd := newCommand(connectMessage, cfg)
	swapped := Ntohs(port)
	id := uint64(deviceID)
	cmd.PortNumber = &swapped
	cmd.DeviceID = &id
	return cmd
}

// NewListDevicesCommand creates a command requesting the list of currently attached devices
func NewListDevicesCommand(cfg Config) Command {
	return newCommand(listDevicesType, cfg)
}

// Bytes returns the command as XML plist
func (c Command) Bytes() []byte {
	return ToPlistBytes(c)
}

// ReplyCode is the Number usbmuxd sends in a Result message
type ReplyCode int64

const (
	ReplyCodeOk                ReplyCode = 0
	ReplyCodeBadCommand        ReplyCode = 1
	ReplyCodeBadDevice         ReplyCode = 2
	ReplyCodeConnectionRefused ReplyCode = 3
	// 4 and 5 are not documented anywhere
	ReplyCodeBadVersion ReplyCode = 6
)

func (rc ReplyCode) String() string {
	switch rc {
	case ReplyCodeOk:
		return "Ok"
	case ReplyCodeBadCommand:
		return "BadCommand"
	case ReplyCodeBadDevice:
		return "BadDevice"
	case ReplyCodeConnectionRefused:
		return "ConnectionRefused"
	case ReplyCodeBadVersion:
		return "BadVersion"
	}
	return fmt.Sprintf("ReplyCode(%d)", int64(rc))
}

// ParseReplyCode maps a raw result number to a known ReplyCode
func ParseReplyCode(n int64) (ReplyCode, error) {
	switch rc := ReplyCode(n); rc {
	case ReplyCodeOk, ReplyCodeBadCommand, ReplyCodeBadDevice, ReplyCodeConnectionRefused, ReplyCodeBadVersion:
		return rc, nil
	}
	return 0, &InvalidReplyCodeError{Code: n}
}

// ResultMessage is the reply to a Listen or Connect command
type ResultMessage struct {
	Number int64
}

// IsSuccessFull returns ResultMessage.Number==0
func (r ResultMessage) IsSuccessFull() bool {
	return r.Number == 0
}

// ResultMessageFromBytes parses the plist payload of a result packet
func ResultMessageFromBytes(plistBytes []byte) (ResultMessage, error) {
	dict, err := parseDict(plistBytes)
	if err != nil {
		return ResultMessage{}, err
	}
	return resultFromDict(dict)
}

func resultFromDict(dict map[string]interface{}) (ResultMessage, error) {
	number, err := intForKey(dict, numberKey)
	if err != nil {
		return ResultMessage{}, err
	}
	return ResultMessage{Number: number}, nil
}

// resultFromPacket accepts both plist results and the 4 byte little endian code
// that binary protocol daemons send.
func resultFromPacket(p Packet) (ResultMessage, error) {
	if p.Protocol == ProtocolBinary {
		if p.Type != PacketTypeResult || len(p.Payload) < 4 {
			return ResultMessage{}, fmt.Errorf("%w: unexpected binary reply %s", ErrInvalidPlistEntry, p)
		}
		return ResultMessage{Number: int64(binary.LittleEndian.Uint32(p.Payload))}, nil
	}
	return ResultMessageFromBytes(p.Payload)
}

// DeviceID identifies an attached device for as long as it stays attached
type DeviceID uint64

// ProductType is derived from the USB product id of a device
type ProductType int

const (
	ProductTypeUnknown ProductType = iota
	ProductTypeIPhone
	ProductTypeIPodTouch
	ProductTypeIPad
)

// ProductTypeForID looks up the product type of a USB product id
func ProductTypeForID(productID uint16) ProductType {
	switch productID {
	case 0x12A8:
		return ProductTypeIPhone
	case 0x12AA:
		return ProductTypeIPodTouch
	case 0x12AB:
		return ProductTypeIPad
	}
	return ProductTypeUnknown
}

func (pt ProductType) String() string {
	switch pt {
	case ProductTypeIPhone:
		return "iPhone"
	case ProductTypeIPodTouch:
		return "iPod touch"
	case ProductTypeIPad:
		return "iPad"
	}
	return "Unknown"
}

func (pt ProductType) MarshalText() ([]byte, error) {
	return []byte(pt.String()), nil
}

// ConnectionType says how a device is attached, usbmuxd reports "USB" or "Network"
type ConnectionType string

const ConnectionTypeUSB ConnectionType = "USB"

// IsUSB returns true for devices attached over a cable
func (ct ConnectionType) IsUSB() bool {
	return ct == ConnectionTypeUSB
}

// DeviceAttachedInfo contains the Properties usbmuxd sends for an attached device
type DeviceAttachedInfo struct {
	ConnectionType ConnectionType
	DeviceID       DeviceID
	LocationID     uint64
	// ProductID is the raw USB product id, needed when ProductType is ProductTypeUnknown
	ProductID   uint16
	ProductType ProductType
	// Identifier is the udid, usbmuxd calls it SerialNumber
	Identifier string
}

func attachedInfoFromDict(dict map[string]interface{}) (DeviceAttachedInfo, error) {
	connectionType, err := stringForKey(dict, "ConnectionType")
	if err != nil {
		return DeviceAttachedInfo{}, err
	}
	deviceID, err := uintForKey(dict, deviceIDKey)
	if err != nil {
		return DeviceAttachedInfo{}, err
	}
	locationID, err := uintForKey(dict, "LocationID")
	if err != nil {
		return DeviceAttachedInfo{}, err
	}
	productID, err := uintForKey(dict, "ProductID")
	if err != nil {
		return DeviceAttachedInfo{}, err
	}
	if productID > math.MaxUint16 {
		return DeviceAttachedInfo{}, &InvalidPlistEntryForKeyError{Key: "ProductID"}
	}
	serial, err := stringForKey(dict, "SerialNumber")
	if err != nil {
		return DeviceAttachedInfo{}, err
	}
	return DeviceAttachedInfo{
		ConnectionType: ConnectionType(connectionType),
		DeviceID:       DeviceID(deviceID),
		LocationID:     locationID,
		ProductID:      uint16(productID),
		ProductType:    ProductTypeForID(uint16(productID)),
		Identifier:     serial,
	}, nil
}

func parseDict(plistBytes []byte) (map[string]interface{}, error) {
	var root interface{}
	_, err := plist.Unmarshal(plistBytes, &root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlistEntry, err)
	}
	dict, ok := root.(map[string]interface{})
	if !ok {
		return nil, ErrInvalidPlistEntry
	}
	return dict, nil
}

func stringForKey(dict map[string]interface{}, key string) (string, error) {
	s, ok := dict[key].(string)
	if !ok {
		return "", &InvalidPlistEntryForKeyError{Key: key}
	}
	return s, nil
}

func dictForKey(dict map[string]interface{}, key string) (map[string]interface{}, error) {
	d, ok := dict[key].(map[string]interface{})
	if !ok {
		return nil, &InvalidPlistEntryForKeyError{Key: key}
	}
	return d, nil
}

func uintForKey(dict map[string]interface{}, key string) (uint64, error) {
	switch v := dict[key].(type) {
	case uint64:
		return v, nil
	case int64:
		if v >= 0 {
			return uint64(v), nil
		}
	}
	return 0, &InvalidPlistEntryForKeyError{Key: key}
}

func intForKey(dict map[string]interface{}, key string) (int64, error) {
	switch v := dict[key].(type) {
	case int64:
		return v, nil
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), nil
		}
	}
	return 0, &InvalidPlistEntryForKeyError{Key: key}
}
