package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleConfig = `
name: r1
log_level: debug
arp_cache: r1.arp
interfaces:
  - name: eth0
    ip: 10.0.1.1
    mask: 255.255.255.0
    mac: "02:00:00:00:01:01"
    local: 127.0.0.1:5001
    remote: 127.0.0.1:5002
  - name: eth1
    ip: 10.0.2.1
    mask: 255.255.255.0
    mac: "02:00:00:00:02:01"
    local: 127.0.0.1:5003
    remote: 127.0.0.1:5004
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	want := &Router{
		Name:     "r1",
		LogLevel: "debug",
		ArpCache: "r1.arp",
		Interfaces: []Interface{
			{Name: "eth0", IP: "10.0.1.1", Mask: "255.255.255.0", MAC: "02:00:00:00:01:01", Local: "127.0.0.1:5001", Remote: "127.0.0.1:5002"},
			{Name: "eth1", IP: "10.0.2.1", Mask: "255.255.255.0", MAC: "02:00:00:00:02:01", Local: "127.0.0.1:5003", Remote: "127.0.0.1:5004"},
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
	if !cfg.RIPEnabled() || !cfg.AnswersSameLink() {
		t.Errorf("defaults: rip %t, answer same link %t", cfg.RIPEnabled(), cfg.AnswersSameLink())
	}
}

func TestRIPEnabled(t *testing.T) {
	no, yes := false, true
	tests := []struct {
		rip        *bool
		routeTable string
		want       bool
	}{
		{rip: nil, want: true},
		{rip: &yes, want: true},
		{rip: &no, want: false},
		{rip: nil, routeTable: "r1.rtable", want: false},
		{rip: &yes, routeTable: "r1.rtable", want: false},
	}
	for _, tc := range tests {
		cfg := Router{RIP: tc.rip, RouteTable: tc.routeTable}
		if got := cfg.RIPEnabled(); got != tc.want {
			t.Errorf("RIPEnabled(rip=%v, table=%q) = %t, want %t", tc.rip, tc.routeTable, got, tc.want)
		}
	}
}

func TestParseRejects(t *testing.T) {
	iface := func(mutate func(*Interface)) string {
		i := Interface{Name: "eth0", IP: "10.0.1.1", Mask: "255.255.255.0", MAC: "02:00:00:00:01:01",
			Local: "127.0.0.1:5001", Remote: "127.0.0.1:5002"}
		mutate(&i)
		return "name: r1\ninterfaces:\n  - {name: '" + i.Name + "', ip: '" + i.IP + "', mask: '" + i.Mask +
			"', mac: '" + i.MAC + "', local: '" + i.Local + "', remote: '" + i.Remote + "'}\n"
	}

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "no name", data: "interfaces: []\n", wantErr: "name is required"},
		{name: "no interfaces", data: "name: r1\n", wantErr: "at least one interface"},
		{name: "unknown key", data: "name: r1\nbogus: 1\n", wantErr: "bogus"},
		{name: "bad ip", data: iface(func(i *Interface) { i.IP = "10.0.1" }), wantErr: "bad ipv4 address"},
		{name: "ipv6", data: iface(func(i *Interface) { i.IP = "fe80::1" }), wantErr: "bad ipv4 address"},
		{name: "holey mask", data: iface(func(i *Interface) { i.Mask = "255.0.255.0" }), wantErr: "not contiguous"},
		{name: "bad mac", data: iface(func(i *Interface) { i.MAC = "02:00" }), wantErr: "bad mac"},
		{name: "no link", data: iface(func(i *Interface) { i.Remote = "" }), wantErr: "local and remote"},
		{name: "duplicate", data: iface(func(*Interface) {}) + "  - {name: eth0, ip: 10.0.2.1}\n", wantErr: "defined twice"},
	}
	for _, tc := range tests {
		_, err := Parse([]byte(tc.data))
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: err = %v, want it to mention %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestParseRouteTable(t *testing.T) {
	input := `
# destination   gateway     mask            iface
10.0.1.0        0.0.0.0     255.255.255.0   eth0
0.0.0.0         10.0.1.254  0.0.0.0         eth0   # default

172.16.0.0      10.0.2.2    255.255.0.0     eth1
`
	routes, err := ParseRouteTable(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	want := []Route{
		{Destination: net.IPv4(10, 0, 1, 0).To4(), Gateway: net.IPv4zero.To4(), Mask: net.CIDRMask(24, 32), Interface: "eth0"},
		{Destination: net.IPv4zero.To4(), Gateway: net.IPv4(10, 0, 1, 254).To4(), Mask: net.CIDRMask(0, 32), Interface: "eth0"},
		{Destination: net.IPv4(172, 16, 0, 0).To4(), Gateway: net.IPv4(10, 0, 2, 2).To4(), Mask: net.CIDRMask(16, 32), Interface: "eth1"},
	}
	if diff := cmp.Diff(want, routes); diff != "" {
		t.Errorf("ParseRouteTable() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRouteTableErrors(t *testing.T) {
	tests := []struct {
		input   string
		wantErr string
	}{
		{input: "10.0.1.0 0.0.0.0 255.255.255.0\n", wantErr: "line 1: want 4 fields"},
		{input: "\n10.0.1.x 0.0.0.0 255.255.255.0 eth0\n", wantErr: "line 2"},
		{input: "10.0.1.0 0.0.0.0 255.0.255.0 eth0\n", wantErr: "not contiguous"},
	}
	for _, tc := range tests {
		_, err := ParseRouteTable(strings.NewReader(tc.input))
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("ParseRouteTable(%q) err = %v, want %q", tc.input, err, tc.wantErr)
		}
	}
}

func TestLoadArpCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r1.arp")
	data := "10.0.1.10 02:00:00:00:01:0a\n10.0.2.10 02:00:00:00:02:0a\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadArpCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[1].IP.String() != "10.0.2.10" || entries[1].MAC.String() != "02:00:00:00:02:0a" {
		t.Errorf("second entry = %v %v", entries[1].IP, entries[1].MAC)
	}

	if _, err := ParseArpCache(strings.NewReader("10.0.1.10\n")); err == nil {
		t.Error("short arp line accepted")
	}
	if _, err := LoadArpCache(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r1.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "r1" || len(cfg.Interfaces) != 2 {
		t.Errorf("Load() = %+v", cfg)
	}
}
