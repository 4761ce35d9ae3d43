package config

import (
	"bufio"
	"io"
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Route is one line of a static route table file:
//
//	<destination> <gateway> <mask> <interface>
type Route struct {
	Destination net.IP
	Gateway     net.IP
	Mask        net.IPMask
	Interface   string
}

// ArpEntry is one line of an ARP cache file: <ip> <mac>
type ArpEntry struct {
	IP  net.IP
	MAC net.HardwareAddr
}

func LoadRouteTable(path string) ([]Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening route table")
	}
	defer f.Close()

	routes, err := ParseRouteTable(f)
	return routes, errors.Wrapf(err, "%s", path)
}

func ParseRouteTable(r io.Reader) ([]Route, error) {
	routes := make([]Route, 0)
	err := eachLine(r, func(lineNum int, fields []string) error {
		if len(fields) != 4 {
			return errors.Errorf("line %d: want 4 fields, got %d", lineNum, len(fields))
		}
		dest, err := ParseIPv4(fields[0])
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNum)
		}
		gateway, err := ParseIPv4(fields[1])
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNum)
		}
		mask, err := ParseMask(fields[2])
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNum)
		}

		routes = append(routes, Route{Destination: dest, Gateway: gateway, Mask: mask, Interface: fields[3]})
		return nil
	})
	return routes, err
}

func LoadArpCache(path string) ([]ArpEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening arp cache")
	}
	defer f.Close()

	entries, err := ParseArpCache(f)
	return entries, errors.Wrapf(err, "%s", path)
}

func ParseArpCache(r io.Reader) ([]ArpEntry, error) {
	entries := make([]ArpEntry, 0)
	err := eachLine(r, func(lineNum int, fields []string) error {
		if len(fields) != 2 {
			return errors.Errorf("line %d: want 2 fields, got %d", lineNum, len(fields))
		}
		ip, err := ParseIPv4(fields[0])
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNum)
		}
		mac, err := Interface{MAC: fields[1]}.HardwareAddr()
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNum)
		}

		entries = append(entries, ArpEntry{IP: ip, MAC: mac})
		return nil
	})
	return entries, err
}

// eachLine hands fn the whitespace separated fields of every line that is
// not blank or a # comment.
func eachLine(r io.Reader, fn func(lineNum int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := fn(lineNum, fields); err != nil {
			return err
		}
	}
	return scanner.Err()
}
