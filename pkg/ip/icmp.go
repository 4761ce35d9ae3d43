package ip

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	ICMP_PROTOCOL = 1

	ICMP_CODE_NET_UNREACHABLE  = 0
	ICMP_CODE_HOST_UNREACHABLE = 1
	ICMP_CODE_PORT_UNREACHABLE = 3
	ICMP_CODE_TTL_EXCEEDED     = 0

	// bytes of the offending datagram's payload quoted after its header
	ICMP_QUOTED_PAYLOAD = 8
)

/*
	the original header plus the first 8 bytes of its payload
	x/net/icmp puts the 4 unused bytes in front when marshalling
*/
func quoteDatagram(packet *IPPacket) []byte {
	end := packet.HeaderLen() + ICMP_QUOTED_PAYLOAD
	if end > len(packet.Raw) {
		end = len(packet.Raw)
	}
	quoted := make([]byte, end)
	copy(quoted, packet.Raw[:end])
	return quoted
}

/*
	This will be called when TTL times out or when the packet can't be delivered
*/
func (r *Router) sendICMPError(packet *IPPacket, in *Interface, msgType ipv4.ICMPType, code int) {
	if isICMPError(packet) {
		r.drop(packet, in, "no icmp error about an icmp error")
		return
	}

	var body icmp.MessageBody
	if msgType == ipv4.ICMPTypeTimeExceeded {
		body = &icmp.TimeExceeded{Data: quoteDatagram(packet)}
	} else {
		body = &icmp.DstUnreach{Data: quoteDatagram(packet)}
	}

	msg := icmp.Message{Type: msgType, Code: code, Body: body}
	r.sendICMP(&msg, packet, in, in.IPAddress)
}

// isICMPError reports whether packet is itself an ICMP error message.
func isICMPError(packet *IPPacket) bool {
	if packet.Header.Protocol != layers.IPProtocolICMPv4 || len(packet.Header.Payload) == 0 {
		return false
	}
	switch ipv4.ICMPType(packet.Header.Payload[0]) {
	case ipv4.ICMPTypeDestinationUnreachable, ipv4.ICMPTypeRedirect,
		ipv4.ICMPTypeTimeExceeded, ipv4.ICMPTypeParameterProblem:
		return true
	}
	return false
}

/*
	echo replies carry the request's identifier, sequence number and data unchanged
	and come from the address the request was sent to
*/
func (r *Router) sendEchoReply(packet *IPPacket, in *Interface) {
	request, err := icmp.ParseMessage(ICMP_PROTOCOL, packet.Header.Payload)
	if err != nil {
		r.drop(packet, in, "unparseable icmp message")
		return
	}
	echo, ok := request.Body.(*icmp.Echo)
	if request.Type != ipv4.ICMPTypeEcho || !ok {
		r.drop(packet, in, "icmp message is not an echo request")
		return
	}

	reply := icmp.Message{Type: ipv4.ICMPTypeEchoReply, Code: 0, Body: echo}
	r.sendICMP(&reply, packet, in, packet.Dst())
}

/*
	route an ICMP message back to the sender of packet
	the next hop is resolved exactly like a forwarded packet's, keyed on the sender's address
*/
func (r *Router) sendICMP(msg *icmp.Message, packet *IPPacket, in *Interface, src uint32) {
	payload, err := msg.Marshal(nil)
	if err != nil {
		r.log.WithError(err).Warn("could not marshal icmp message")
		return
	}

	originalSrc := packet.Src()
	logger := r.log.WithFields(logrus.Fields{
		"type": msg.Type,
		"code": msg.Code,
		"dst":  FormatAddr(originalSrc),
	})

	entry := r.RoutingTable.Lookup(originalSrc)
	if entry == nil {
		r.Stats.Dropped.Inc()
		logger.Debug("no route back to sender, icmp dropped")
		return
	}
	dstMAC, found := r.ArpCache.Lookup(entry.NextHop(originalSrc))
	if !found {
		r.Stats.Dropped.Inc()
		logger.Debug("no link address for sender's next hop, icmp dropped")
		return
	}

	frame, err := buildIPv4Frame(entry.Iface.MAC, dstMAC, src, originalSrc,
		layers.IPProtocolICMPv4, gopacket.Payload(payload))
	if err != nil {
		logger.WithError(err).Warn("could not build icmp frame")
		return
	}
	if err := r.transmit(entry.Iface, frame); err != nil {
		r.Stats.Dropped.Inc()
		logger.WithError(err).Debug("icmp not sent")
		return
	}

	r.Stats.ICMPSent.Inc()
	logger.WithField("iface", in.Name).Debug("sent icmp")
}
