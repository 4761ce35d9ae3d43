package ip

import (
	"context"
	"net"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	UPDATE_FREQ = 10 * time.Second
	SWEEP_FREQ  = 5 * time.Second
	TIMEOUT     = 30 * time.Second
)

// RipHandler runs the distance vector protocol on UDP port 520. Requests and
// responses arrive through the router's packet path; periodic updates and
// expiry run on their own tickers.
type RipHandler struct {
	router *Router
	Table  *RIPTable

	UpdateFreq time.Duration
	SweepFreq  time.Duration
	Timeout    time.Duration
	Now        func() time.Time

	log *logrus.Entry
}

/*
	create the handler and claim the RIP port on the router
*/
func NewRipHandler(r *Router) *RipHandler {
	h := &RipHandler{
		router:     r,
		Table:      NewRIPTable(r.RoutingTable),
		UpdateFreq: UPDATE_FREQ,
		SweepFreq:  SWEEP_FREQ,
		Timeout:    TIMEOUT,
		Now:        time.Now,
		log:        r.log.WithField("proto", "rip"),
	}
	r.RegisterHandler(RIP_PORT, h)
	return h
}

/*
	seed the tables with our own networks, then ask every neighbor for theirs
*/
func (h *RipHandler) Start() {
	now := h.Now()
	for _, iface := range h.router.Interfaces() {
		h.Table.AddConnected(iface, now)
	}
	h.broadcast(RIP_REQUEST)
}

func (h *RipHandler) ReceivePacket(packet *IPPacket, udp *layers.UDP, in *Interface) {
	logger := h.log.WithFields(logrus.Fields{"iface": in.Name, "from": packet.Header.SrcIP.String()})
	if udp.SrcPort != RIP_PORT {
		h.router.drop(packet, in, "rip datagram not sent from the rip port")
		return
	}

	msg, err := UnmarshalRIPMessage(udp.Payload)
	if err != nil {
		h.router.Stats.Dropped.Inc()
		logger.WithError(err).Debug("dropping rip packet")
		return
	}
	h.router.Stats.RIPReceived.Inc()

	switch msg.Command {
	case RIP_REQUEST:
		// unicast the whole table straight back to whoever asked
		h.send(in, packet.Eth.SrcMAC, packet.Src(), RIP_RESPONSE, h.Table.entries())
	case RIP_RESPONSE:
		changes := h.Table.Learn(msg.Entries, packet.Src(), in, h.Now())
		for _, change := range changes {
			if change.Action == RouteReplaced {
				h.router.Stats.RoutesReplaced.Inc()
			} else {
				h.router.Stats.RoutesLearned.Inc()
			}
			logger.WithFields(logrus.Fields{
				"network": FormatAddr(change.Record.Address),
				"mask":    MaskLen(change.Record.Mask),
				"metric":  change.Record.Metric,
				"gateway": FormatAddr(change.Gateway),
			}).Infof("route %s", change.Action)
		}
	}
}

// SendUpdates advertises every record out of every interface.
func (h *RipHandler) SendUpdates() {
	h.broadcast(RIP_RESPONSE)
}

/*
	drop whatever hasn't been refreshed within the timeout
*/
func (h *RipHandler) Sweep() {
	for _, record := range h.Table.Expire(h.Now(), h.Timeout) {
		h.router.Stats.RoutesExpired.Inc()
		h.log.WithFields(logrus.Fields{
			"network": FormatAddr(record.Address),
			"mask":    MaskLen(record.Mask),
			"age":     h.Now().Sub(record.Updated).Round(time.Second),
		}).Info("route expired")
	}

	if err := h.Table.Verify(); err != nil {
		h.log.WithError(err).Error("rip table out of step with routing table")
	}
}

/*
	seeds the tables, then runs the periodic update and the expiry sweep
	until ctx is cancelled
*/
func (h *RipHandler) Run(ctx context.Context) error {
	h.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tick(ctx, h.UpdateFreq, h.SendUpdates)
	})
	g.Go(func() error {
		return tick(ctx, h.SweepFreq, h.Sweep)
	})
	return g.Wait()
}

func tick(ctx context.Context, every time.Duration, fn func()) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *RipHandler) broadcast(command uint8) {
	entries := h.Table.entries()
	for _, iface := range h.router.Interfaces() {
		h.send(iface, BroadcastMAC, RIP_MULTICAST_ADDR, command, entries)
	}
}

/*
	send entries to dst out of iface, split into as many messages as needed
	called with no table lock held
*/
func (h *RipHandler) send(iface *Interface, dstMAC net.HardwareAddr, dst uint32, command uint8, entries []RIPEntry) {
	for _, msg := range SplitRIPMessages(command, entries) {
		payload, err := msg.Marshal()
		if err != nil {
			h.log.WithError(err).Warn("could not marshal rip message")
			return
		}

		frame, err := buildUDPFrame(iface.MAC, dstMAC, iface.IPAddress, dst, RIP_PORT, RIP_PORT, payload)
		if err != nil {
			h.log.WithError(err).Warn("could not build rip frame")
			return
		}
		if err := h.router.transmit(iface, frame); err != nil {
			h.log.WithError(err).WithField("iface", iface.Name).Debug("rip message not sent")
			continue
		}
		h.router.Stats.RIPSent.Inc()
	}
}
