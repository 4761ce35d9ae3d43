package config

import (
	"net"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Interface describes one router port and the UDP socket pair that emulates
// its ethernet segment.
type Interface struct {
	Name   string `yaml:"name"`
	IP     string `yaml:"ip"`
	Mask   string `yaml:"mask"`
	MAC    string `yaml:"mac"`
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
}

type Router struct {
	Name           string      `yaml:"name"`
	LogLevel       string      `yaml:"log_level"`
	RIP            *bool       `yaml:"rip"`
	AnswerSameLink *bool       `yaml:"answer_same_link"`
	RouteTable     string      `yaml:"route_table"`
	ArpCache       string      `yaml:"arp_cache"`
	Interfaces     []Interface `yaml:"interfaces"`
}

// RIPEnabled is true unless turned off explicitly or a static table is given.
func (r *Router) RIPEnabled() bool {
	if r.RIP != nil {
		return *r.RIP && r.RouteTable == ""
	}
	return r.RouteTable == ""
}

func (r *Router) AnswersSameLink() bool {
	return r.AnswerSameLink == nil || *r.AnswerSameLink
}

func Load(path string) (*Router, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading router config")
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

func Parse(data []byte) (*Router, error) {
	cfg := &Router{LogLevel: "info"}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing router config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *Router) Validate() error {
	if r.Name == "" {
		return errors.New("router name is required")
	}
	if len(r.Interfaces) == 0 {
		return errors.New("at least one interface is required")
	}

	names := make(map[string]bool)
	addrs := make(map[string]bool)
	for i, iface := range r.Interfaces {
		if iface.Name == "" {
			return errors.Errorf("interface %d has no name", i)
		}
		if names[iface.Name] {
			return errors.Errorf("interface %s defined twice", iface.Name)
		}
		names[iface.Name] = true

		if _, err := iface.Addr(); err != nil {
			return errors.Wrapf(err, "interface %s", iface.Name)
		}
		if addrs[iface.IP] {
			return errors.Errorf("interface %s reuses address %s", iface.Name, iface.IP)
		}
		addrs[iface.IP] = true

		if _, err := iface.Netmask(); err != nil {
			return errors.Wrapf(err, "interface %s", iface.Name)
		}
		if _, err := iface.HardwareAddr(); err != nil {
			return errors.Wrapf(err, "interface %s", iface.Name)
		}
		if iface.Local == "" || iface.Remote == "" {
			return errors.Errorf("interface %s needs both local and remote link addresses", iface.Name)
		}
	}
	return nil
}

func (i Interface) Addr() (net.IP, error) {
	return ParseIPv4(i.IP)
}

func (i Interface) Netmask() (net.IPMask, error) {
	return ParseMask(i.Mask)
}

func (i Interface) HardwareAddr() (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(i.MAC)
	if err != nil {
		return nil, errors.Wrap(err, "bad mac")
	}
	if len(mac) != 6 {
		return nil, errors.Errorf("bad mac %q: not an ethernet address", i.MAC)
	}
	return mac, nil
}

func ParseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, errors.Errorf("bad ipv4 address %q", s)
	}
	return ip, nil
}

// ParseMask accepts dotted quads only, and only contiguous masks.
func ParseMask(s string) (net.IPMask, error) {
	ip, err := ParseIPv4(s)
	if err != nil {
		return nil, errors.Errorf("bad mask %q", s)
	}
	mask := net.IPMask(ip)
	if ones, bits := mask.Size(); ones == 0 && bits == 0 {
		return nil, errors.Errorf("mask %q is not contiguous", s)
	}
	return mask, nil
}
