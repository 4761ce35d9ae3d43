package ip

import (
	"context"

	"github.com/google/gopacket/layers"
)

// A Handler serves one UDP port on the router. Datagrams reach it before TTL
// processing when they are addressed to one of our interfaces or to a
// multicast group.
type Handler interface {
	ReceivePacket(packet *IPPacket, udp *layers.UDP, in *Interface)
}

// Handlers with background work also implement Runner; Router.Run starts
// them and cancels ctx at shutdown.
type Runner interface {
	Run(ctx context.Context) error
}
