// Package peertalk reads and writes the frames of the peertalk example app. Peertalk apps listen on a
// TCP port on the device, a usbmux tunnel to that port carries these frames.
package peertalk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"
	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

// Version is the only frame version peertalk knows
const Version uint32 = 1

// MaxPayloadSize protects ReadFrame from allocating absurd amounts of memory for corrupted headers
const MaxPayloadSize = 16 * 1024 * 1024

// FrameType identifies the payload of a Frame
type FrameType uint32

const (
	FrameTypeDeviceInfo  FrameType = 100
	FrameTypeTextMessage FrameType = 101
	FrameTypePing        FrameType = 102
	FrameTypePong        FrameType = 103
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeDeviceInfo:
		return "DeviceInfo"
	case FrameTypeTextMessage:
		return "TextMessage"
	case FrameTypePing:
		return "Ping"
	case FrameTypePong:
		return "Pong"
	}
	return fmt.Sprintf("FrameType(%d)", uint32(t))
}

// frameHeader is the 16 byte big endian header in front of every payload
type frameHeader struct {
	Version     uint32 `struc:"uint32,big"`
	Type        uint32 `struc:"uint32,big"`
	Tag         uint32 `struc:"uint32,big"`
	PayloadSize uint32 `struc:"uint32,big,sizeof=Payload"`
	Payload     []byte
}

// Frame is one peertalk message
type Frame struct {
	Version uint32
	Type    FrameType
	Tag     uint32
	Payload []byte
}

// NewTextFrame creates a TextMessage frame, the payload is the big endian length of text followed by its utf8 bytes
func NewTextFrame(text string) Frame {
	payload := make([]byte, 4+len(text))
	binary.BigEndian.PutUint32(payload, uint32(len(text)))
	copy(payload[4:], text)
	return Frame{Version: Version, Type: FrameTypeTextMessage, Payload: payload}
}

// NewPingFrame creates an empty Ping frame
func NewPingFrame(tag uint32) Frame {
	return Frame{Version: Version, Type: FrameTypePing, Tag: tag}
}

// Text returns the text of a TextMessage frame. Payloads without a matching length prefix are returned as is.
func (f Frame) Text() (string, error) {
	if f.Type != FrameTypeTextMessage {
		return "", fmt.Errorf("frame of type %s has no text", f.Type)
	}
	if len(f.Payload) >= 4 && binary.BigEndian.Uint32(f.Payload) == uint32(len(f.Payload)-4) {
		return string(f.Payload[4:]), nil
	}
	return string(f.Payload), nil
}

// DeviceInfo decodes the plist dictionary a device sends in a DeviceInfo frame
func (f Frame) DeviceInfo() (map[string]interface{}, error) {
	if f.Type != FrameTypeDeviceInfo {
		return nil, fmt.Errorf("frame of type %s is no device info", f.Type)
	}
	var info map[string]interface{}
	_, err := plist.Unmarshal(f.Payload, &info)
	if err != nil {
		return nil, fmt.Errorf("failed decoding device info: %w", err)
	}
	return info, nil
}

// WriteFrame writes f with a single Write call
func WriteFrame(w io.Writer, f Frame) error {
	if f.Version == 0 {
		f.Version = Version
	}
	buf := new(bytes.Buffer)
	err := struc.Pack(buf, &frameHeader{
		Version: f.Version,
		Type:    uint32(f.Type),
		Tag:     f.Tag,
		Payload: f.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed packing peertalk frame: %w", err)
	}
	log.Tracef("peertalk send %s tag:%d size:%d", f.Type, f.Tag, len(f.Payload))
	_, err = w.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed writing peertalk frame: %w", err)
	}
	return nil
}

// ReadFrame blocks until a complete frame was read from r
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 16)
	_, err := io.ReadFull(r, header)
	if err != nil {
		return Frame{}, err
	}
	size := binary.BigEndian.Uint32(header[12:])
	if size > MaxPayloadSize {
		return Frame{}, fmt.Errorf("peertalk payload of %d bytes exceeds %d", size, MaxPayloadSize)
	}
	data := make([]byte, 16+int(size))
	copy(data, header)
	_, err = io.ReadFull(r, data[16:])
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("failed reading peertalk payload: %w", err)
	}
	var h frameHeader
	err = struc.Unpack(bytes.NewReader(data), &h)
	if err != nil {
		return Frame{}, fmt.Errorf("failed unpacking peertalk frame: %w", err)
	}
	f := Frame{Version: h.Version, Type: FrameType(h.Type), Tag: h.Tag, Payload: h.Payload}
	if f.Payload == nil {
		f.Payload = []byte{}
	}
	log.Tracef("peertalk received %s tag:%d size:%d", f.Type, f.Tag, len(f.Payload))
	return f, nil
}
