package ip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	RIP_PORT            = 520
	RIP_VERSION         = 2
	RIP_REQUEST         = 1
	RIP_RESPONSE        = 2
	RIP_AF_INET         = 2
	INFINITY            = 16
	MAX_ENTRIES_PER_MSG = 25
	ripHeaderLen        = 4
	ripEntryLen         = 20
	RIP_MULTICAST_ADDR  = 0xe0000009 // 224.0.0.9
)

var ErrBadRIPMessage = errors.New("bad rip message")

// one route as it appears on the wire
type RIPEntry struct {
	AddressFamily uint16
	RouteTag      uint16
	Address       uint32
	Mask          uint32
	NextHop       uint32
	Metric        uint32
}

type ripHeader struct {
	Command uint8
	Version uint8
	Zero    uint16
}

type RIPMessage struct {
	Command uint8
	Entries []RIPEntry
}

func (m *RIPMessage) Marshal() ([]byte, error) {
	if len(m.Entries) > MAX_ENTRIES_PER_MSG {
		return nil, fmt.Errorf("%w: %d entries", ErrBadRIPMessage, len(m.Entries))
	}

	bytesArray := &bytes.Buffer{}
	bytesArray.Grow(ripHeaderLen + ripEntryLen*len(m.Entries))
	if err := binary.Write(bytesArray, binary.BigEndian, ripHeader{Command: m.Command, Version: RIP_VERSION}); err != nil {
		return nil, err
	}
	if err := binary.Write(bytesArray, binary.BigEndian, m.Entries); err != nil {
		return nil, err
	}
	return bytesArray.Bytes(), nil
}

func UnmarshalRIPMessage(data []byte) (*RIPMessage, error) {
	if len(data) < ripHeaderLen || (len(data)-ripHeaderLen)%ripEntryLen != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrBadRIPMessage, len(data))
	}

	reader := bytes.NewReader(data)
	var hdr ripHeader
	if err := binary.Read(reader, binary.BigEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Command != RIP_REQUEST && hdr.Command != RIP_RESPONSE {
		return nil, fmt.Errorf("%w: command %d", ErrBadRIPMessage, hdr.Command)
	}
	if hdr.Version != RIP_VERSION {
		return nil, fmt.Errorf("%w: version %d", ErrBadRIPMessage, hdr.Version)
	}

	entries := make([]RIPEntry, (len(data)-ripHeaderLen)/ripEntryLen)
	if err := binary.Read(reader, binary.BigEndian, entries); err != nil {
		return nil, err
	}
	return &RIPMessage{Command: hdr.Command, Entries: entries}, nil
}

// SplitRIPMessages chunks entries into as many messages as the per message
// limit requires. An empty entry list still yields one message.
func SplitRIPMessages(command uint8, entries []RIPEntry) []RIPMessage {
	msgs := make([]RIPMessage, 0, len(entries)/MAX_ENTRIES_PER_MSG+1)
	for len(entries) > MAX_ENTRIES_PER_MSG {
		msgs = append(msgs, RIPMessage{Command: command, Entries: entries[:MAX_ENTRIES_PER_MSG]})
		entries = entries[MAX_ENTRIES_PER_MSG:]
	}
	return append(msgs, RIPMessage{Command: command, Entries: entries})
}
