package ip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"

	"vrouter/pkg/link"
)

// wait between failed link reads, doubling up to the max
const (
	readRetryMin = 10 * time.Millisecond
	readRetryMax = time.Second
)

type inboundFrame struct {
	frame []byte
	iface *Interface
}

type Router struct {
	Name string

	LocalIFs     map[uint32]*Interface // keyed by the interface's own address
	interfaces   []*Interface          // attach order, for display and broadcasts
	RoutingTable *RoutingTable
	ArpCache     *ArpCache
	Stats        Stats

	// reply on behalf of hosts whose route points back out the inbound interface
	AnswerSameLink bool

	HandlerRegistry map[uint16]Handler
	handlerLock     sync.RWMutex

	PacketChannel chan inboundFrame
	log           *logrus.Entry
}

func NewRouter(name string, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Router{
		Name:            name,
		LocalIFs:        make(map[uint32]*Interface),
		RoutingTable:    NewRoutingTable(),
		ArpCache:        NewArpCache(),
		AnswerSameLink:  true,
		HandlerRegistry: make(map[uint16]Handler),
		PacketChannel:   make(chan inboundFrame, 64),
		log:             logger.WithField("router", name),
	}
}

func (r *Router) AddInterface(iface *Interface) error {
	if _, exists := r.LocalIFs[iface.IPAddress]; exists {
		return fmt.Errorf("address %s already assigned", FormatAddr(iface.IPAddress))
	}
	if r.InterfaceByName(iface.Name) != nil {
		return fmt.Errorf("interface %s already exists", iface.Name)
	}
	r.LocalIFs[iface.IPAddress] = iface
	r.interfaces = append(r.interfaces, iface)
	return nil
}

func (r *Router) Interfaces() []*Interface {
	return r.interfaces
}

func (r *Router) InterfaceByName(name string) *Interface {
	for _, iface := range r.interfaces {
		if iface.Name == name {
			return iface
		}
	}
	return nil
}

func (r *Router) Logger() *logrus.Entry {
	return r.log
}

/*
	populate the handler registry with the given handler
*/
func (r *Router) RegisterHandler(port uint16, handler Handler) {
	r.handlerLock.Lock()
	defer r.handlerLock.Unlock()
	r.HandlerRegistry[port] = handler
}

func (r *Router) handler(port uint16) (Handler, bool) {
	r.handlerLock.RLock()
	defer r.handlerLock.RUnlock()
	h, ok := r.HandlerRegistry[port]
	return h, ok
}

/*
	run one inbound frame through the forwarding pipeline

	checksum --> udp services --> TTL --> local delivery --> longest prefix match --> arp --> send
	every failure past the checksum check answers with at most one ICMP message
*/
func (r *Router) HandlePacket(frame []byte, in *Interface) {
	r.Stats.FramesReceived.Inc()
	if !in.IsUp() {
		r.drop(nil, in, "inbound interface is down")
		return
	}

	packet, err := ParseFrame(frame)
	if err != nil {
		if !errors.Is(err, errNotIPv4) {
			r.drop(nil, in, err.Error())
		}
		return
	}

	// Header Checksum --> if the checksum is not valid, the packet should be dropped
	if !packet.ValidChecksum() {
		r.Stats.ChecksumErrors.Inc()
		r.drop(packet, in, "checksum failed")
		return
	}

	if r.dispatchUDP(packet, in) {
		return
	}

	// TTL --> expires here, tell the sender
	if packet.Header.TTL <= 1 {
		r.sendICMPError(packet, in, ipv4.ICMPTypeTimeExceeded, ICMP_CODE_TTL_EXCEEDED)
		return
	}
	ttl := packet.Header.TTL - 1

	destAddr := packet.Dst()
	if _, exists := r.LocalIFs[destAddr]; exists {
		r.Stats.DeliveredLocal.Inc()
		r.answerLocally(packet, in)
		return
	}

	if isMulticast(destAddr) || destAddr == 0xffffffff {
		r.drop(packet, in, "no handler for group traffic")
		return
	}

	entry := r.RoutingTable.Lookup(destAddr)
	if entry == nil {
		r.sendICMPError(packet, in, ipv4.ICMPTypeDestinationUnreachable, ICMP_CODE_NET_UNREACHABLE)
		return
	}

	// never send a packet back out the interface it came in on
	if entry.Iface == in {
		if r.AnswerSameLink {
			r.answerLocally(packet, in)
		} else {
			r.drop(packet, in, "route points back out the inbound interface")
		}
		return
	}

	nextHop := entry.NextHop(destAddr)
	dstMAC, found := r.ArpCache.Lookup(nextHop)
	if !found {
		r.sendICMPError(packet, in, ipv4.ICMPTypeDestinationUnreachable, ICMP_CODE_HOST_UNREACHABLE)
		return
	}

	if err := r.transmit(entry.Iface, packet.forwardFrame(entry.Iface.MAC, dstMAC, ttl)); err != nil {
		r.drop(packet, in, err.Error())
		return
	}
	r.Stats.Forwarded.Inc()
}

/*
	datagrams for a port we serve go straight to its handler
*/
func (r *Router) dispatchUDP(packet *IPPacket, in *Interface) bool {
	if packet.Header.Protocol != layers.IPProtocolUDP {
		return false
	}

	var udp layers.UDP
	if err := udp.DecodeFromBytes(packet.Header.Payload, gopacket.NilDecodeFeedback); err != nil {
		return false
	}
	handler, exists := r.handler(uint16(udp.DstPort))
	if !exists {
		return false
	}

	destAddr := packet.Dst()
	_, local := r.LocalIFs[destAddr]
	if !local && !isMulticast(destAddr) {
		return false
	}
	// rip only talks port to port, anything else aimed at us is a closed port
	if local && udp.DstPort == RIP_PORT && udp.SrcPort != RIP_PORT {
		return false
	}

	handler.ReceivePacket(packet, &udp, in)
	return true
}

/*
	respond the way the destination host would:
	TCP/UDP get port unreachable, echo requests get a reply, anything else is dropped
*/
func (r *Router) answerLocally(packet *IPPacket, in *Interface) {
	switch packet.Header.Protocol {
	case layers.IPProtocolTCP, layers.IPProtocolUDP:
		r.sendICMPError(packet, in, ipv4.ICMPTypeDestinationUnreachable, ICMP_CODE_PORT_UNREACHABLE)
	case layers.IPProtocolICMPv4:
		r.sendEchoReply(packet, in)
	default:
		r.drop(packet, in, fmt.Sprintf("unsupported protocol %d", packet.Header.Protocol))
	}
}

func (r *Router) transmit(out *Interface, frame []byte) error {
	if err := out.Send(frame); err != nil {
		return fmt.Errorf("send on %s: %w", out.Name, err)
	}
	return nil
}

func (r *Router) drop(packet *IPPacket, in *Interface, reason string) {
	r.Stats.Dropped.Inc()
	if !r.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	fields := logrus.Fields{"iface": in.Name}
	if packet != nil {
		fields["src"] = packet.Header.SrcIP.String()
		fields["dst"] = packet.Header.DstIP.String()
		fields["proto"] = packet.Header.Protocol.String()
	}
	r.log.WithFields(fields).Debugf("dropping packet: %s", reason)
}

/*
	functions to down/up a specific interface
	a downed interface neither sends nor accepts frames
*/
func (r *Router) DownInterface(name string) error {
	iface := r.InterfaceByName(name)
	if iface == nil {
		return fmt.Errorf("no interface named %s", name)
	}
	if !iface.IsUp() {
		return fmt.Errorf("interface %s is already down", name)
	}
	iface.Disable()
	r.log.WithField("iface", name).Info("interface is now down")
	return nil
}

func (r *Router) UpInterface(name string) error {
	iface := r.InterfaceByName(name)
	if iface == nil {
		return fmt.Errorf("no interface named %s", name)
	}
	if iface.IsUp() {
		return fmt.Errorf("interface %s is already up", name)
	}
	iface.Enable()
	r.log.WithField("iface", name).Info("interface is back up")
	return nil
}

/*
	router's main loop: one reader per link feeding a single packet
	consumer, plus whatever background work the handlers need.
	returns once ctx is cancelled and every link is closed
*/
func (r *Router) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, iface := range r.interfaces {
		iface := iface
		g.Go(func() error { return r.listen(ctx, iface) })
	}
	g.Go(func() error { return r.readFromLinkLayer(ctx) })

	r.handlerLock.RLock()
	for _, handler := range r.HandlerRegistry {
		if runner, ok := handler.(Runner); ok {
			g.Go(func() error { return runner.Run(ctx) })
		}
	}
	r.handlerLock.RUnlock()

	g.Go(func() error {
		<-ctx.Done()
		for _, iface := range r.interfaces {
			iface.Link.Close()
		}
		return nil
	})

	r.log.WithField("interfaces", len(r.interfaces)).Info("router started")
	return g.Wait()
}

func (r *Router) listen(ctx context.Context, iface *Interface) error {
	backoff := readRetryMin
	for {
		frame, err := iface.Link.ReadFrame()
		if err != nil {
			if errors.Is(err, link.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			r.log.WithError(err).WithFields(logrus.Fields{"iface": iface.Name, "retry": backoff}).Warn("link read failed")

			// back off so a broken socket can't spin this loop
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff = min(2*backoff, readRetryMax)
			continue
		}
		backoff = readRetryMin

		select {
		case r.PacketChannel <- inboundFrame{frame: frame, iface: iface}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Router) readFromLinkLayer(ctx context.Context) error {
	for {
		select {
		case in := <-r.PacketChannel:
			r.HandlePacket(in.frame, in.iface)
		case <-ctx.Done():
			return nil
		}
	}
}
