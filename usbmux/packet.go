package usbmux

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	log "github.com/sirupsen/logrus"
)

// HeaderSize is the size of the UsbMuxHeader, total_size includes it.
const HeaderSize = 16

// Protocol is the second header word. Modern usbmuxd only speaks Plist, Binary is
// used by very old daemons for result frames.
type Protocol uint32

const (
	ProtocolBinary Protocol = 0
	ProtocolPlist  Protocol = 1
)

func (p Protocol) String() string {
	switch p {
	case ProtocolBinary:
		return "Binary"
	case ProtocolPlist:
		return "Plist"
	}
	return fmt.Sprintf("Protocol(%d)", uint32(p))
}

func parseProtocol(v uint32) (Protocol, error) {
	switch Protocol(v) {
	case ProtocolBinary, ProtocolPlist:
		return Protocol(v), nil
	}
	return 0, &InvalidProtocolError{Code: v}
}

// PacketType is the third header word. 6 and 7 are not used by usbmuxd.
type PacketType uint32

const (
	PacketTypeResult       PacketType = 1
	PacketTypeConnect      PacketType = 2
	PacketTypeListen       PacketType = 3
	PacketTypeDeviceAdd    PacketType = 4
	PacketTypeDeviceRemove PacketType = 5
	PacketTypePlistPayload PacketType = 8
)

var packetTypeNames = map[PacketType]string{
	PacketTypeResult:       "Result",
	PacketTypeConnect:      "Connect",
	PacketTypeListen:       "Listen",
	PacketTypeDeviceAdd:    "DeviceAdd",
	PacketTypeDeviceRemove: "DeviceRemove",
	PacketTypePlistPayload: "PlistPayload",
}

func (t PacketType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PacketType(%d)", uint32(t))
}

func parsePacketType(v uint32) (PacketType, error) {
	if _, ok := packetTypeNames[PacketType(v)]; ok {
		return PacketType(v), nil
	}
	return 0, &InvalidPacketTypeError{Code: v}
}

// UsbMuxHeader is the little endian header in front of every usbmux packet.
// Version carries the Protocol and Request the PacketType.
type UsbMuxHeader struct {
	Length  uint32
	Version uint32
	Request uint32
	Tag     uint32
}

// Packet is one frame on the usbmuxd socket
type Packet struct {
	Protocol Protocol
	Type     PacketType
	// Tag correlates requests and responses. We always send 0 and ignore it on receipt.
	Tag     uint32
	Payload []byte
}

// Size returns the total_size header value for this packet
func (p Packet) Size() uint32 {
	return HeaderSize + uint32(len(p.Payload))
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet{size:%d protocol:%s type:%s tag:%d payload(bytes):%d}", p.Size(), p.Protocol, p.Type, p.Tag, len(p.Payload))
}

// NewPlistPacket wraps plist bytes into the packet type usbmuxd expects for all plist commands
func NewPlistPacket(payload []byte) Packet {
	return Packet{Protocol: ProtocolPlist, Type: PacketTypePlistPayload, Tag: 0, Payload: payload}
}

// WritePacket writes header and payload of p to w with a single Write call.
// It panics if the payload does not fit into the 32 bit length field, callers must never
// build such a payload.
func WritePacket(w io.Writer, p Packet) error {
	if uint64(len(p.Payload)) > math.MaxUint32-HeaderSize {
		panic(fmt.Sprintf("usbmux payload too large: %d bytes", len(p.Payload)))
	}
	header := UsbMuxHeader{
		Length:  p.Size(),
		Version: uint32(p.Protocol),
		Request: uint32(p.Type),
		Tag:     p.Tag,
	}
	buf := bytes.NewBuffer(make([]byte, 0, header.Length))
	err := binary.Write(buf, binary.LittleEndian, header)
	if err != nil {
		return err
	}
	buf.Write(p.Payload)
	_, err = w.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed writing usbmux packet: %w", err)
	}
	log.Tracef("usbmux send %s", p)
	return nil
}

// ReadPacket blocks until a complete packet was read from r.
// The payload of a frame with an unknown protocol or packet type is consumed before the error
// is returned, so the next call starts at a frame boundary again.
func ReadPacket(r io.Reader) (Packet, error) {
	var header UsbMuxHeader
	err := binary.Read(r, binary.LittleEndian, &header)
	if err != nil {
		return Packet{}, err
	}
	if header.Length < HeaderSize {
		return Packet{}, fmt.Errorf("%w: total size %d is smaller than the header", ErrInvalidPacketSize, header.Length)
	}
	payloadSize := header.Length - HeaderSize

	protocol, protoErr := parseProtocol(header.Version)
	packetType, typeErr := parsePacketType(header.Request)
	if protoErr != nil || typeErr != nil {
		_, err = io.CopyN(io.Discard, r, int64(payloadSize))
		if err != nil {
			return Packet{}, fmt.Errorf("failed skipping payload of invalid packet: %w", err)
		}
		if protoErr != nil {
			return Packet{}, protoErr
		}
		return Packet{}, typeErr
	}

	payload := make([]byte, payloadSize)
	n, err := io.ReadFull(r, payload)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, fmt.Errorf("failed reading usbmux payload, only %d bytes received instead of %d: %w", n, payloadSize, err)
	}
	p := Packet{Protocol: protocol, Type: packetType, Tag: header.Tag, Payload: payload}
	log.Tracef("usbmux receive %s", p)
	return p, nil
}

// isFrameError reports whether err concerns only the last frame and the stream is still in sync.
func isFrameError(err error) bool {
	switch err.(type) {
	case *InvalidProtocolError, *InvalidPacketTypeError:
		return true
	}
	return false
}
