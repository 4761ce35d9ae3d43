package main

import (
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"vrouter/pkg/config"
	"vrouter/pkg/ip"
	"vrouter/pkg/link"
)

type Node struct {
	Router *ip.Router
	Rip    *ip.RipHandler // nil when running from a static table
	Config *config.Router
	Log    *logrus.Logger
}

/*
	build the router described by cfg: bind every interface's link,
	fill the arp cache, then either start RIP or load the static table
*/
func InitNode(cfg *config.Router, logger *logrus.Logger) (*Node, error) {
	router := ip.NewRouter(cfg.Name, logger)
	router.AnswerSameLink = cfg.AnswersSameLink()
	node := &Node{Router: router, Config: cfg, Log: logger}

	for _, ifCfg := range cfg.Interfaces {
		iface, err := newInterface(ifCfg)
		if err != nil {
			node.closeLinks()
			return nil, errors.Wrapf(err, "interface %s", ifCfg.Name)
		}
		if err := router.AddInterface(iface); err != nil {
			iface.Link.Close()
			node.closeLinks()
			return nil, err
		}
	}

	if err := node.loadTables(); err != nil {
		node.closeLinks()
		return nil, err
	}

	if cfg.RIPEnabled() {
		node.Rip = ip.NewRipHandler(router)
	}
	return node, nil
}

func newInterface(cfg config.Interface) (*ip.Interface, error) {
	addr, err := cfg.Addr()
	if err != nil {
		return nil, err
	}
	mask, err := cfg.Netmask()
	if err != nil {
		return nil, err
	}
	mac, err := cfg.HardwareAddr()
	if err != nil {
		return nil, err
	}

	l, err := link.NewUDPLink(cfg.Local, cfg.Remote)
	if err != nil {
		return nil, err
	}
	return ip.NewInterface(cfg.Name, addr, mask, mac, l), nil
}

func (n *Node) loadTables() error {
	if n.Config.ArpCache != "" {
		entries, err := config.LoadArpCache(n.Config.ArpCache)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			n.Router.ArpCache.Insert(ip.IPToNum(entry.IP), entry.MAC)
		}
		n.Log.WithField("entries", len(entries)).Info("loaded arp cache")
	}

	if n.Config.RIPEnabled() {
		return nil
	}

	// without RIP our own subnets still need routes
	for _, iface := range n.Router.Interfaces() {
		n.Router.RoutingTable.Insert(iface.Network(), iface.Mask, 0, iface)
	}
	if n.Config.RouteTable == "" {
		return nil
	}

	routes, err := config.LoadRouteTable(n.Config.RouteTable)
	if err != nil {
		return err
	}
	for _, route := range routes {
		iface := n.Router.InterfaceByName(route.Interface)
		if iface == nil {
			return errors.Errorf("%s: route to %s uses unknown interface %s",
				n.Config.RouteTable, route.Destination, route.Interface)
		}
		n.Router.RoutingTable.Insert(ip.IPToNum(route.Destination), ip.IPToNum(net.IP(route.Mask)),
			ip.IPToNum(route.Gateway), iface)
	}
	n.Log.WithField("routes", len(routes)).Info("loaded static route table")
	return nil
}

func (n *Node) closeLinks() {
	for _, iface := range n.Router.Interfaces() {
		iface.Link.Close()
	}
}
