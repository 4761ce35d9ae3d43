package ip

import (
	"io"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"vrouter/pkg/link"
)

// compare interfaces by their addressing only
var cmpInterfaces = cmpopts.IgnoreFields(Interface{}, "StoppedLock", "Link")

func addr(s string) uint32 {
	return IPToNum(net.ParseIP(s))
}

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	if err != nil {
		t.Fatal(err)
	}
	return mac
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// port is an interface under test together with the far end of its link.
type port struct {
	iface *Interface
	peer  *link.ChanLink
}

func newPort(t *testing.T, name, ip, mask, mac string) port {
	t.Helper()
	near, far := link.Pipe(64)
	t.Cleanup(func() { near.Close() })

	iface := NewInterface(name, net.ParseIP(ip), net.IPMask(net.ParseIP(mask).To4()), mustMAC(t, mac), near)
	return port{iface: iface, peer: far}
}

func attach(t *testing.T, r *Router, ports ...port) {
	t.Helper()
	for _, p := range ports {
		if err := r.AddInterface(p.iface); err != nil {
			t.Fatal(err)
		}
	}
}

type frameFields struct {
	srcMAC, dstMAC net.HardwareAddr
	src, dst       string
	ttl            uint8
	proto          layers.IPProtocol
	upper          []gopacket.SerializableLayer
}

func buildFrame(t *testing.T, ff frameFields) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: ff.srcMAC, DstMAC: ff.dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ipHeader := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ff.ttl,
		Protocol: ff.proto,
		SrcIP:    net.ParseIP(ff.src),
		DstIP:    net.ParseIP(ff.dst),
	}
	for _, l := range ff.upper {
		switch transport := l.(type) {
		case *layers.UDP:
			transport.SetNetworkLayerForChecksum(ipHeader)
		case *layers.TCP:
			transport.SetNetworkLayerForChecksum(ipHeader)
		}
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	all := append([]gopacket.SerializableLayer{eth, ipHeader}, ff.upper...)
	if err := gopacket.SerializeLayers(buf, opts, all...); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func echoRequest(id, seq uint16, data []byte) []gopacket.SerializableLayer {
	return []gopacket.SerializableLayer{
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: id, Seq: seq},
		gopacket.Payload(data),
	}
}

func udpDatagram(sport, dport uint16, data []byte) []gopacket.SerializableLayer {
	return []gopacket.SerializableLayer{
		&layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)},
		gopacket.Payload(data),
	}
}

func tcpSegment(sport, dport uint16) []gopacket.SerializableLayer {
	return []gopacket.SerializableLayer{
		&layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), SYN: true, Window: 1024},
	}
}

// decoded is an outbound frame pulled apart for assertions.
type decoded struct {
	eth  *layers.Ethernet
	ip   *layers.IPv4
	icmp *layers.ICMPv4
	udp  *layers.UDP
	raw  []byte
}

func decode(t *testing.T, frame []byte) decoded {
	t.Helper()
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		t.Fatalf("decoding frame: %v", errLayer.Error())
	}

	d := decoded{raw: frame}
	if l := packet.Layer(layers.LayerTypeEthernet); l != nil {
		d.eth = l.(*layers.Ethernet)
	}
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		d.ip = l.(*layers.IPv4)
	}
	if l := packet.Layer(layers.LayerTypeICMPv4); l != nil {
		d.icmp = l.(*layers.ICMPv4)
	}
	if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		d.udp = l.(*layers.UDP)
	}
	return d
}

// single asserts exactly one frame left through p and returns it decoded.
func single(t *testing.T, p port) decoded {
	t.Helper()
	frames := p.peer.Drain()
	if len(frames) != 1 {
		t.Fatalf("%s sent %d frames, want 1", p.iface.Name, len(frames))
	}
	return decode(t, frames[0])
}

func silent(t *testing.T, ports ...port) {
	t.Helper()
	for _, p := range ports {
		if frames := p.peer.Drain(); len(frames) != 0 {
			t.Errorf("%s sent %d frames, want none", p.iface.Name, len(frames))
		}
	}
}
