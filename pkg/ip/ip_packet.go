package ip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/netstack/tcpip/header"
)

const (
	ETHERNET_HEADER_LEN = 14
	DEFAULT_TTL         = 64

	ttlOffset      = 8
	checksumOffset = 10
)

var (
	errNotIPv4       = errors.New("not an ipv4 frame")
	errMalformedIPv4 = errors.New("malformed ipv4 packet")

	BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

// IPPacket is an inbound frame decoded down to the network layer.
// Raw holds the ipv4 header and payload exactly as received, trimmed to the
// datagram's total length.
type IPPacket struct {
	Eth    layers.Ethernet
	Header layers.IPv4
	Raw    []byte
}

/*
	decode an ethernet frame carrying ipv4
	returns errNotIPv4 for any other ethertype so callers can ignore it quietly
*/
func ParseFrame(frame []byte) (*IPPacket, error) {
	packet := &IPPacket{}
	if err := packet.Eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedIPv4, err)
	}
	if packet.Eth.EthernetType != layers.EthernetTypeIPv4 {
		return nil, errNotIPv4
	}

	data := packet.Eth.Payload
	if len(data) < header.IPv4MinimumSize {
		return nil, errMalformedIPv4
	}
	if err := packet.Header.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedIPv4, err)
	}
	if packet.Header.Version != 4 || int(packet.Header.Length) > len(data) {
		return nil, errMalformedIPv4
	}

	packet.Raw = data[:packet.Header.Length]
	return packet, nil
}

func (p *IPPacket) HeaderLen() int {
	return int(p.Header.IHL) * 4
}

func (p *IPPacket) Src() uint32 {
	return IPToNum(p.Header.SrcIP)
}

func (p *IPPacket) Dst() uint32 {
	return IPToNum(p.Header.DstIP)
}

/*
	recompute the header checksum with the checksum field zeroed
	and compare it against the one carried in the packet
*/
func (p *IPPacket) ValidChecksum() bool {
	hdr := p.Raw[:p.HeaderLen()]
	return computeChecksum(hdr) == binary.BigEndian.Uint16(hdr[checksumOffset:])
}

func computeChecksum(hdr []byte) uint16 {
	buf := make([]byte, len(hdr))
	copy(buf, hdr)
	buf[checksumOffset] = 0
	buf[checksumOffset+1] = 0

	return header.Checksum(buf, 0) ^ 0xffff
}

/*
	build the frame we put on the wire when forwarding: the received
	datagram with new MACs, the given TTL and a fresh header checksum
*/
func (p *IPPacket) forwardFrame(srcMAC, dstMAC net.HardwareAddr, ttl uint8) []byte {
	frame := make([]byte, ETHERNET_HEADER_LEN+len(p.Raw))
	copy(frame[0:6], dstMAC)
	copy(frame[6:12], srcMAC)
	binary.BigEndian.PutUint16(frame[12:14], uint16(layers.EthernetTypeIPv4))
	copy(frame[ETHERNET_HEADER_LEN:], p.Raw)

	hdr := header.IPv4(frame[ETHERNET_HEADER_LEN : ETHERNET_HEADER_LEN+p.HeaderLen()])
	hdr[ttlOffset] = ttl
	hdr.SetChecksum(0)
	hdr.SetChecksum(^hdr.CalculateChecksum())
	return frame
}

/*
	serialize an ethernet + ipv4 frame around the given upper layers
	lengths and checksums are filled in by gopacket
*/
func buildIPv4Frame(srcMAC, dstMAC net.HardwareAddr, src, dst uint32, protocol layers.IPProtocol, upper ...gopacket.SerializableLayer) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipHeader := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      DEFAULT_TTL,
		Protocol: protocol,
		SrcIP:    NumToIP(src),
		DstIP:    NumToIP(dst),
	}

	if len(upper) > 0 {
		if udp, ok := upper[0].(*layers.UDP); ok {
			if err := udp.SetNetworkLayerForChecksum(ipHeader); err != nil {
				return nil, err
			}
		}
	}

	all := append([]gopacket.SerializableLayer{eth, ipHeader}, upper...)
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, all...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildUDPFrame(srcMAC, dstMAC net.HardwareAddr, src, dst uint32, srcPort, dstPort uint16, payload []byte) ([]byte, error) {
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	return buildIPv4Frame(srcMAC, dstMAC, src, dst, layers.IPProtocolUDP, udp, gopacket.Payload(payload))
}

// address helpers --> everything in the tables is a host order uint32
func IPToNum(ip net.IP) uint32 {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(ip4)
}

func NumToIP(addr uint32) net.IP {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

func FormatAddr(addr uint32) string {
	return NumToIP(addr).String()
}

func isMulticast(addr uint32) bool {
	return addr>>28 == 0xe
}
